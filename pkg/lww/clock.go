package lww

import (
	"math"
	"sync"
	"time"
)

// Timestamp is a wall-clock reading in fractional Unix seconds. It is a float
// so envelopes stay readable by nodes that speak the same JSON payload.
type Timestamp float64

func FromTime(t time.Time) Timestamp {
	return Timestamp(float64(t.UnixNano()) / 1e9)
}

func (t Timestamp) Time() time.Time {
	sec, frac := math.Modf(float64(t))
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Clock hands out strictly increasing timestamps. Two calls on the same
// replica never return equal values, even if the wall clock stalls or steps back.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last Timestamp
}

// NewClock returns a clock reading from now, or time.Now when now is nil.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

func (c *Clock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := FromTime(c.now())
	if ts <= c.last {
		ts = Timestamp(math.Nextafter(float64(c.last), math.Inf(1)))
	}
	c.last = ts
	return ts
}
