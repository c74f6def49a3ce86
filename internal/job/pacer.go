package job

import (
	"context"
	"math/rand/v2"
	"time"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Pacer spaces out external calls with a uniformly random delay.
type Pacer struct {
	min   time.Duration
	max   time.Duration
	rand  func(n int64) int64
	sleep SleepFunc
}

// NewPacer returns a pacer drawing delays from [minDelay, maxDelay]. Inverted bounds are swapped.
func NewPacer(minDelay, maxDelay time.Duration) *Pacer {
	if maxDelay < minDelay {
		minDelay, maxDelay = maxDelay, minDelay
	}
	if minDelay < 0 {
		minDelay = 0
	}
	if maxDelay < 0 {
		maxDelay = 0
	}
	return &Pacer{min: minDelay, max: maxDelay, rand: rand.Int64N, sleep: sleepContext}
}

// WithSleep replaces the blocking function, mainly for tests.
func (p *Pacer) WithSleep(fn SleepFunc) *Pacer {
	if fn != nil {
		p.sleep = fn
	}
	return p
}

// WithRand replaces the random source. fn must return a value in [0, n).
func (p *Pacer) WithRand(fn func(n int64) int64) *Pacer {
	if fn != nil {
		p.rand = fn
	}
	return p
}

// Bounds returns the configured delay range.
func (p *Pacer) Bounds() (time.Duration, time.Duration) {
	return p.min, p.max
}

// Delay draws the next delay.
func (p *Pacer) Delay() time.Duration {
	span := int64(p.max - p.min)
	if span <= 0 {
		return p.min
	}
	return p.min + time.Duration(p.rand(span+1))
}

// Wait sleeps for a freshly drawn delay and returns it. Cancellation cuts the
// sleep short and returns the context error.
func (p *Pacer) Wait(ctx context.Context) (time.Duration, error) {
	d := p.Delay()
	if d <= 0 {
		return 0, ctx.Err()
	}
	return d, p.sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
