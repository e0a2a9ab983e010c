package process

import "time"

// startSkew tolerates clock-tick rounding between our start timestamp and
// the one the OS reports.
const startSkew = 2 * time.Second

// SameProcess reports whether pid still refers to the process we started at
// startedAt. It guards forced kills by raw pid against pid reuse. When the OS
// start time is unavailable the answer is based on liveness alone.
func SameProcess(pid int, startedAt time.Time) bool {
	if pid <= 0 || !processExists(pid) {
		return false
	}
	osStart := procStartUnix(pid)
	if osStart == 0 {
		return true
	}
	d := time.Unix(osStart, 0).Sub(startedAt.Truncate(time.Second))
	if d < 0 {
		d = -d
	}
	return d <= startSkew
}
