package engine

import "sync/atomic"

// Clock stamps dispatches and replies with a strictly increasing seq. The log
// is ordered by seq, never by wall time, which keeps content-addressed IDs
// reproducible across runs.
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock whose first Next is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt returns a clock whose first Next is start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new seq.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last seq handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// AdvanceTo raises the clock to seq after recovery. A lower seq is ignored.
func (c *Clock) AdvanceTo(seq int64) {
	for cur := c.seq.Load(); cur < seq; cur = c.seq.Load() {
		if c.seq.CompareAndSwap(cur, seq) {
			return
		}
	}
}
