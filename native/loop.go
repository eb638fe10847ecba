package native

import (
	"context"
	"sync"
)

// Loop is the dispatch loop that delivers completions. Every callback
// posted to it runs on the goroutine executing Run, one at a time.
//
// A completion posted while no Run is active waits in the queue until the
// next Run or Iterate. Tearing the loop down for good with operations still
// in flight leaves their continuations registered forever; callers must let
// outstanding operations complete first.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	quit  bool
	wake  chan struct{}
}

// NewLoop creates an idle loop.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post schedules fn to run on the loop. Safe from any goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Quit makes the innermost Run return after the current callback.
func (l *Loop) Quit() {
	l.mu.Lock()
	l.quit = true
	l.mu.Unlock()
	l.signal()
}

// next pops one callback, or reports a pending quit.
func (l *Loop) next() (fn func(), quit bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.quit {
		l.quit = false
		return nil, true
	}
	if len(l.queue) == 0 {
		return nil, false
	}
	fn = l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, false
}

// Run dispatches callbacks until Quit is called or ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		fn, quit := l.next()
		if quit {
			return nil
		}
		if fn != nil {
			fn()
			continue
		}
		select {
		case <-l.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Iterate runs every callback queued at the time of the call without
// blocking. It reports whether anything ran.
func (l *Loop) Iterate() bool {
	l.mu.Lock()
	n := len(l.queue)
	l.mu.Unlock()

	ran := false
	for i := 0; i < n; i++ {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			break
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()
		fn()
		ran = true
	}
	return ran
}

// Pending reports the number of queued callbacks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}
