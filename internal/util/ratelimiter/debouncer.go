package ratelimiter

import (
	"context"
	"sync"
	"time"
)

// Debouncer collapses bursts of Notify calls into single runs of fn. A run
// starts once no Notify arrived for the quiet period, and never sooner than
// the limiter interval after the previous run. Notify calls during a run
// schedule exactly one follow-up run.
type Debouncer struct {
	quiet   time.Duration
	limiter *Limiter
	fn      func(ctx context.Context)

	notify chan struct{}
	wg     sync.WaitGroup
}

// NewDebouncer creates a debouncer for fn. Run must be called to start it.
func NewDebouncer(quiet, minInterval time.Duration, fn func(ctx context.Context)) *Debouncer {
	return &Debouncer{
		quiet:   quiet,
		limiter: New(minInterval),
		fn:      fn,
		notify:  make(chan struct{}, 1),
	}
}

// Notify records that something changed. It never blocks.
func (d *Debouncer) Notify() {
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Run processes notifications until ctx is done.
func (d *Debouncer) Run(ctx context.Context) {
	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		running bool
		pending bool
		done    = make(chan struct{}, 1)
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		d.wg.Wait()
	}()

	arm := func(delay time.Duration) {
		if timer == nil {
			timer = time.NewTimer(delay)
		} else {
			timer.Stop()
			timer.Reset(delay)
		}
		timerC = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-d.notify:
			if running {
				pending = true
				continue
			}
			arm(d.quiet)

		case <-timerC:
			timerC = nil
			if ok, wait := d.limiter.Allow(); !ok {
				arm(wait)
				continue
			}
			running = true
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.fn(ctx)
				done <- struct{}{}
			}()

		case <-done:
			running = false
			if pending {
				pending = false
				arm(d.quiet)
			}
		}
	}
}
