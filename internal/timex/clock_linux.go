//go:build linux

package timex

import (
	"time"

	"golang.org/x/sys/unix"
)

// monotonicNow reads CLOCK_BOOTTIME, which keeps counting through suspend so
// that a sleeping laptop does not look like a forward clock jump.
func monotonicNow() time.Duration {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return time.Since(processStart)
	}
	return time.Duration(ts.Nano())
}
