// Package native is the callback-based secret service that the secret
// package wraps.
//
// Every asynchronous call takes an AsyncReadyCallback and an opaque
// userData word. The request runs on the library's worker against its
// vault.Store, and the callback is posted to the Loop exactly once with
// an AsyncResult. The callback passes that result to the matching Finish
// function to obtain the payload or the error.
//
// Strings handed to a call (attribute tables, labels, passwords) are not
// copied: they must stay alive until the callback has run. Payloads handed
// back (strings, lists, attribute tables) are owned by the receiver.
package native

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/benaskins/secretkit/vault"
)

// AsyncReadyCallback receives the completion of an asynchronous call.
type AsyncReadyCallback func(source any, res *AsyncResult, userData uintptr)

// AsyncResult carries the outcome of one asynchronous call until it is
// finished.
type AsyncResult struct {
	source   any
	tag      string
	value    any
	err      *Error
	finished atomic.Bool
}

// Source returns the object the call was made on, if any.
func (r *AsyncResult) Source() any { return r.source }

// propagate hands out the outcome once.
func (r *AsyncResult) propagate(source any, tag string) (any, error) {
	if r == nil {
		return nil, newError(ErrorProtocol, "%s: nil result", tag)
	}
	if r.tag != tag {
		return nil, newError(ErrorProtocol, "result of %s finished as %s", r.tag, tag)
	}
	if source != nil && r.source != source {
		return nil, newError(ErrorProtocol, "%s: result finished against the wrong object", tag)
	}
	if !r.finished.CompareAndSwap(false, true) {
		return nil, newError(ErrorProtocol, "%s: result already finished", tag)
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.value, nil
}

type request struct {
	source   any
	tag      string
	callback AsyncReadyCallback
	userData uintptr
	work     func(ctx context.Context) (any, error)
}

// Library is a connection to the secret service.
type Library struct {
	loop   *Loop
	store  vault.Store
	alloc  Allocator
	logger *slog.Logger
	calls  atomic.Int64

	requests chan request
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	// mu orders enqueues against Close: once closed is set no request
	// reaches the channel, so serve's final drain sees every queued one.
	mu     sync.RWMutex
	closed bool
}

// Option configures a Library.
type Option func(*Library)

// WithLogger sets the library logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Library) {
		l.logger = logger
	}
}

// New starts a library serving requests from store and delivering
// completions on loop.
func New(loop *Loop, store vault.Store, opts ...Option) *Library {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Library{
		loop:     loop,
		store:    store,
		logger:   slog.With("component", "native"),
		requests: make(chan request, 64),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.serve()
	return l
}

// Allocator returns the allocator backing every buffer this library hands out.
func (l *Library) Allocator() *Allocator { return &l.alloc }

// Calls returns the number of asynchronous calls issued so far.
func (l *Library) Calls() int64 { return l.calls.Load() }

// Loop returns the loop completions are delivered on.
func (l *Library) Loop() *Loop { return l.loop }

// Close stops the worker. Requests still queued complete with
// ErrorUnavailable; the store is not closed.
func (l *Library) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.cancel()
	close(l.done)
}

func (l *Library) submit(source any, tag string, cb AsyncReadyCallback, userData uintptr, work func(ctx context.Context) (any, error)) {
	l.calls.Add(1)
	req := request{source: source, tag: tag, callback: cb, userData: userData, work: work}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.fail(req)
		return
	}
	// serve keeps draining until closed is set, which needs this read lock
	// released, so a full channel only blocks until the worker catches up.
	l.requests <- req
}

func (l *Library) serve() {
	for {
		select {
		case req := <-l.requests:
			l.run(req)
		case <-l.done:
			for {
				select {
				case req := <-l.requests:
					l.fail(req)
				default:
					return
				}
			}
		}
	}
}

func (l *Library) run(req request) {
	value, err := req.work(l.ctx)
	res := &AsyncResult{source: req.source, tag: req.tag, value: value}
	if err != nil {
		res.err = fromStore(err)
		l.logger.Debug("native call failed", "call", req.tag, "error", err)
	}
	l.loop.Post(func() { req.callback(req.source, res, req.userData) })
}

func (l *Library) fail(req request) {
	res := &AsyncResult{source: req.source, tag: req.tag, err: newError(ErrorUnavailable, "secret service closed")}
	l.loop.Post(func() { req.callback(req.source, res, req.userData) })
}
