//go:build !linux && !darwin && !freebsd && !windows

package resolver

import "time"

func birthTime(string) (time.Time, bool) { return time.Time{}, false }
