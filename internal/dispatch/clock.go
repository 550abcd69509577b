package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/your-org/fdsender/internal/retry"
)

// SendClock records the last successful submission. It is set by every
// dispatcher worker and read by callers pacing their UI assertions.
type SendClock struct {
	last atomic.Int64 // unix nanoseconds, 0 = never
}

func (c *SendClock) Mark(t time.Time) {
	n := t.UnixNano()
	for {
		cur := c.last.Load()
		if cur >= n || c.last.CompareAndSwap(cur, n) {
			return
		}
	}
}

// Last returns the zero time when nothing was sent yet.
func (c *SendClock) Last() time.Time {
	n := c.last.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Pacer hands out batch timestamps at least interval apart, sleeping when
// batches come faster than that. Timestamps have one second resolution.
// Seconds claimed by explicitly stamped batches are skipped.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	last     int64
	taken    map[int64]bool
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewPacer(interval time.Duration) *Pacer {
	if interval < time.Second {
		interval = time.Second
	}
	return &Pacer{
		interval: interval,
		taken:    make(map[int64]bool),
		now:      time.Now,
		sleep:    retry.Sleep,
	}
}

// SetClock swaps the time source and the sleep function.
func (p *Pacer) SetClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
	p.sleep = sleep
}

// Observe records a timestamp the caller chose, so no later auto-stamped
// batch lands on the same second.
func (p *Pacer) Observe(ts int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ts > p.last {
		p.taken[ts] = true
	}
}

// Next returns the timestamp for the next auto-stamped batch.
func (p *Pacer) Next(ctx context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	step := int64((p.interval + time.Second - 1) / time.Second)
	now := p.now()
	ts := now.Unix()
	if p.last != 0 {
		ts = max(ts, p.last+step)
	}
	ts = p.skipTaken(ts)

	if ts > now.Unix() {
		if err := p.sleep(ctx, time.Unix(ts, 0).Sub(now)); err != nil {
			return 0, err
		}
		ts = p.skipTaken(max(p.now().Unix(), ts))
	}

	p.last = ts
	for t := range p.taken {
		if t <= ts {
			delete(p.taken, t)
		}
	}
	return ts, nil
}

func (p *Pacer) skipTaken(ts int64) int64 {
	for p.taken[ts] {
		ts++
	}
	return ts
}
