//go:build !linux

package timex

import "time"

func monotonicNow() time.Duration {
	return time.Since(processStart)
}
