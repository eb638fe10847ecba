// Package bridge carries Go continuations across the native callback API.
//
// Each dispatched operation is boxed and registered under an opaque handle.
// The handle and the bridge's trampoline are the only things the native call
// sees. When the native side completes, the trampoline looks the box up,
// removes it, finishes and decodes the native result, invokes the
// continuation and releases the call-scoped buffers. A handle is removed
// before anything else happens, so a continuation can never run twice.
package bridge

import (
	"log/slog"
	"sync"

	"github.com/benaskins/secretkit/native"
	"github.com/prometheus/client_golang/prometheus"
)

// Releaser frees call-scoped native memory.
type Releaser interface {
	Release()
}

// ReleaseFunc adapts a function to Releaser.
type ReleaseFunc func()

func (f ReleaseFunc) Release() { f() }

// completer is a boxed operation awaiting its native completion.
type completer interface {
	complete(b *Bridge, res *native.AsyncResult)
}

// Bridge owns every in-flight operation.
type Bridge struct {
	mu     sync.Mutex
	next   uintptr
	boxes  map[uintptr]completer
	logger *slog.Logger
	mapErr func(error) error

	dispatched *prometheus.CounterVec
	completed  *prometheus.CounterVec
	inFlight   prometheus.Gauge
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithErrorMapper converts native errors before they reach a continuation.
func WithErrorMapper(fn func(error) error) Option {
	return func(b *Bridge) {
		b.mapErr = fn
	}
}

// WithRegisterer registers the bridge metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(b *Bridge) {
		b.dispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secretkit",
			Subsystem: "bridge",
			Name:      "operations_dispatched_total",
			Help:      "Total number of operations handed to the native service",
		}, []string{"operation"})
		b.completed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secretkit",
			Subsystem: "bridge",
			Name:      "operations_completed_total",
			Help:      "Total number of completed operations by status",
		}, []string{"operation", "status"})
		b.inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "secretkit",
			Subsystem: "bridge",
			Name:      "operations_in_flight",
			Help:      "Number of operations awaiting a native completion",
		})
		reg.MustRegister(b.dispatched, b.completed, b.inFlight)
	}
}

// New creates a bridge.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		boxes:  make(map[uintptr]completer),
		logger: slog.With("component", "bridge"),
		mapErr: func(err error) error { return err },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Pending returns the number of operations still awaiting completion.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.boxes)
}

func (b *Bridge) register(c completer) uintptr {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.boxes[b.next] = c
	if b.inFlight != nil {
		b.inFlight.Inc()
	}
	return b.next
}

// take removes the box registered under handle.
func (b *Bridge) take(handle uintptr) (completer, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.boxes[handle]
	if !ok {
		return nil, false
	}
	delete(b.boxes, handle)
	if b.inFlight != nil {
		b.inFlight.Dec()
	}
	return c, true
}

// trampoline is the single native completion entry point.
func (b *Bridge) trampoline(source any, res *native.AsyncResult, handle uintptr) {
	c, ok := b.take(handle)
	if !ok {
		b.logger.Warn("completion for unknown operation dropped", "handle", handle)
		return
	}
	c.complete(b, res)
}

func (b *Bridge) record(name, status string) {
	if b.completed != nil {
		b.completed.WithLabelValues(name, status).Inc()
	}
}

// operation boxes one dispatched call. P is the native payload, T the
// decoded result.
type operation[P, T any] struct {
	name   string
	finish func(*native.AsyncResult) (P, error)
	decode func(P) (T, error)
	cont   func(T, error)
	scope  []Releaser
}

func (op *operation[P, T]) complete(b *Bridge, res *native.AsyncResult) {
	defer op.release()

	var zero T
	payload, err := op.finish(res)
	if err != nil {
		b.record(op.name, "error")
		b.logger.Debug("operation failed", "operation", op.name, "error", err)
		op.cont(zero, b.mapErr(err))
		return
	}
	value, err := op.decode(payload)
	if err != nil {
		b.record(op.name, "decode_error")
		b.logger.Warn("operation result could not be decoded", "operation", op.name, "error", err)
		op.cont(zero, err)
		return
	}
	b.record(op.name, "ok")
	op.cont(value, nil)
}

func (op *operation[P, T]) release() {
	for _, r := range op.scope {
		r.Release()
	}
	op.scope = nil
}

// Dispatch boxes cont and issues call with the bridge trampoline and the
// box handle. finish extracts the native payload inside the trampoline and
// decode converts it. Buffers in scope are released after the continuation
// returns, on every path.
//
// The continuation runs at most once. It runs at all only if the native
// side completes the call.
func Dispatch[P, T any](
	b *Bridge,
	name string,
	call func(cb native.AsyncReadyCallback, userData uintptr),
	finish func(*native.AsyncResult) (P, error),
	decode func(P) (T, error),
	cont func(T, error),
	scope ...Releaser,
) {
	handle := b.register(&operation[P, T]{
		name:   name,
		finish: finish,
		decode: decode,
		cont:   cont,
		scope:  scope,
	})
	if b.dispatched != nil {
		b.dispatched.WithLabelValues(name).Inc()
	}
	call(b.trampoline, handle)
}

// Identity is the decode step for payloads that need no conversion.
func Identity[T any](v T) (T, error) { return v, nil }
