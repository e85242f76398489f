package testfixtures

import (
	"sync"
	"time"
)

// Clock is a settable time source shared by the services under test.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock returns a clock set to start, or to ReferenceTime when start is
// the zero value.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now returns the instant the clock points at.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc exposes Now for constructor injection.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

// At moves the clock to hour:minute on the given YYYY-MM-DD date, keeping
// the clock's location.
func (c *Clock) At(date string, hour, minute int) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	day, err := time.ParseInLocation("2006-01-02", date, c.current.Location())
	if err != nil {
		panic("testfixtures: bad date " + date)
	}
	c.current = day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
	return c.current
}
