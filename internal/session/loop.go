package session

import (
	"context"
	"sync"
	"sync/atomic"
)

// loop is an unbounded queue of closures drained by one goroutine. Posting
// never blocks, so transport callbacks can hand work over from any goroutine.
type loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	handled atomic.Int64
}

func newLoop() *loop {
	return &loop{wake: make(chan struct{}, 1)}
}

func (l *loop) post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *loop) run(ctx context.Context) error {
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			fn()
			l.handled.Add(1)
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// call runs fn on the loop and waits for it.
func (l *loop) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.post(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *loop) pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}
