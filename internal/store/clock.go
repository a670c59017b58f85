// Package store holds what the session and message stores share.
package store

import (
	"sync"
	"time"
)

// Resolution is the precision timestamps are stored with.
const Resolution = time.Microsecond

// Clock hands out strictly increasing timestamps. Two calls never return
// the same instant, even when the wall clock stalls or steps backwards, so
// createdAt alone totally orders the messages of a session.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewClock returns a Clock reading from now, or time.Now when nil.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Seed raises the floor below which Next will not go. Stores call it on
// open with the newest persisted timestamp.
func (c *Clock) Seed(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.last) {
		c.last = t.UTC().Truncate(Resolution)
	}
}

// Next returns a timestamp later than every previous one.
func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(Resolution)
	if !t.After(c.last) {
		t = c.last.Add(Resolution)
	}
	c.last = t
	return t
}
