package replicate

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Gate admits at most one event per interval and drops the rest. It never
// queues: an event inside the cooldown is simply discarded.
type Gate struct {
	limiter *rate.Limiter
	now     func() time.Time
}

// NewGate returns a gate admitting perSecond events per second.
func NewGate(perSecond float64) *Gate {
	return &Gate{
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		now:     time.Now,
	}
}

// Allow reports whether an event arriving now may pass.
func (g *Gate) Allow() bool {
	return g.limiter.AllowN(g.now(), 1)
}

// Debouncer runs the most recently triggered function once the triggers
// have been quiet for the delay.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
}

// NewDebouncer returns a debouncer with the given quiet period.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Trigger (re)starts the quiet period; fn runs on a timer goroutine.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}

// Stop cancels a pending run.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
