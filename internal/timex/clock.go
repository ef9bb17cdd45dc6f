package timex

import (
	"sync"
	"time"
)

// Clock supplies the two time sources used for tamper detection.
//
// Now is the wall clock and is attacker-controlled. Monotonic is a
// non-decreasing reading that system clock edits cannot move; it is only
// comparable with readings taken since the same boot (see MonotonicEpoch).
type Clock interface {
	Now() time.Time
	Monotonic() time.Duration
}

// SystemClock reads the real wall clock and the platform monotonic source.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Monotonic() time.Duration { return monotonicNow() }

// processStart backs the fallback monotonic source on platforms without a
// system-wide uptime clock. time.Since uses Go's monotonic reading.
var processStart = time.Now()

// FakeClock is a manually driven Clock for tests and simulations.
type FakeClock struct {
	mu   sync.Mutex
	wall time.Time
	mono time.Duration
}

// NewFakeClock returns a FakeClock with the given wall time and monotonic reading.
func NewFakeClock(wall time.Time, mono time.Duration) *FakeClock {
	return &FakeClock{wall: wall, mono: mono}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wall
}

func (c *FakeClock) Monotonic() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mono
}

// Advance moves both clocks forward by d, as real time passing would.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wall = c.wall.Add(d)
	c.mono += d
}

// SetWall moves only the wall clock, simulating a manual clock change.
func (c *FakeClock) SetWall(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wall = t
}

// SetMonotonic overrides the monotonic reading, e.g. to simulate a reboot.
func (c *FakeClock) SetMonotonic(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mono = d
}
