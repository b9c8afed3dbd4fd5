package engine

// Clock is the monotonic logical clock stamping a run's trace events.
//
// Every Run owns a fresh Clock, so seq restarts at 1 for each run and a
// replay of the same program produces the same seq values. The engine is
// single-threaded within a run; Clock is not safe for concurrent use.
type Clock struct {
	seq int64
}

// NewClock creates a new clock starting at 0. The first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	c.seq++
	return c.seq
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq
}
