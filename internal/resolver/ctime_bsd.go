//go:build darwin || freebsd

package resolver

import (
	"time"

	"golang.org/x/sys/unix"
)

func birthTime(path string) (time.Time, bool) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return time.Time{}, false
	}
	if st.Btim.Sec == 0 && st.Btim.Nsec == 0 {
		return time.Time{}, false
	}
	return time.Unix(st.Btim.Unix()), true
}
