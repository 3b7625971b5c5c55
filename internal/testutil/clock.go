package testutil

import (
	"sync"
	"time"
)

// ReferenceDate is the day license fixtures are written against.
var ReferenceDate = time.Date(2023, 12, 1, 9, 0, 0, 0, time.UTC)

// Clock is a settable time source. Its Now method fits any
// func() time.Time clock option.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock at at, or at ReferenceDate when at is zero.
func NewClock(at time.Time) *Clock {
	if at.IsZero() {
		at = ReferenceDate
	}
	return &Clock{now: at}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock by d, which may be negative.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// AddDays moves the clock by n calendar days, keeping the time of day.
func (c *Clock) AddDays(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.AddDate(0, 0, n)
}
