package notify

import "sync/atomic"

// Clock hands out the Seq stamped on each ChangeEvent. Values start at 1 and
// strictly increase, so listeners can detect reordering across goroutines.
type Clock struct {
	last atomic.Int64
}

func NewClock() *Clock {
	return &Clock{}
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Last is the most recent value returned by Next, or 0 before the first call.
func (c *Clock) Last() int64 {
	return c.last.Load()
}
