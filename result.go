package arbor

import (
	"sync"
	"sync/atomic"

	"github.com/vmihailenco/msgpack/v5"
)

// Result is a value that may not be available yet. Now blocks until it is and
// returns the same outcome on every call.
type Result[T any] interface {
	Now() (T, error)
}

// Deferred is the standard Result: a computation that runs on the first call
// to Now, exactly once, no matter how many goroutines ask.
//
// A Deferred is a handle on work in progress and cannot be serialized. Wrap
// it in a ListView or MapView, or resolve it and send the value instead.
type Deferred[T any] struct {
	once     sync.Once
	fn       func() (T, error)
	resolved atomic.Bool
	value    T
	err      error
}

var (
	_ Result[int]           = (*Deferred[int])(nil)
	_ msgpack.CustomEncoder = (*Deferred[int])(nil)
)

func Defer[T any](fn func() (T, error)) *Deferred[T] {
	return &Deferred[T]{fn: fn}
}

// Resolved returns a Deferred that already holds v.
func Resolved[T any](v T) *Deferred[T] {
	d := &Deferred[T]{value: v}
	d.once.Do(func() {})
	d.resolved.Store(true)
	return d
}

// Failed returns a Deferred that already holds err.
func Failed[T any](err error) *Deferred[T] {
	d := &Deferred[T]{err: err}
	d.once.Do(func() {})
	d.resolved.Store(true)
	return d
}

// Now resolves d. A panic in the computation becomes a *PanicError, cached
// like any other failure.
func (d *Deferred[T]) Now() (T, error) {
	d.once.Do(d.resolve)
	return d.value, d.err
}

func (d *Deferred[T]) resolve() {
	defer d.resolved.Store(true)
	defer func() {
		if p := recover(); p != nil {
			var zero T
			d.value, d.err = zero, &PanicError{p}
		}
	}()
	fn := d.fn
	d.fn = nil
	if fn == nil {
		d.err = errZeroDeferred
		return
	}
	d.value, d.err = fn()
}

// Must returns the value or panics with the failure.
func (d *Deferred[T]) Must() T {
	return must(d.Now())
}

// IsResolved reports whether Now would return without blocking.
func (d *Deferred[T]) IsResolved() bool {
	return d.resolved.Load()
}

func (d *Deferred[T]) notTransportable() error {
	return &NotTransportableError{What: "deferred result"}
}

func (d *Deferred[T]) MarshalJSON() ([]byte, error) {
	return nil, d.notTransportable()
}

func (d *Deferred[T]) EncodeMsgpack(enc *msgpack.Encoder) error {
	return d.notTransportable()
}

func (d *Deferred[T]) GobEncode() ([]byte, error) {
	return nil, d.notTransportable()
}

// Then derives a Result that applies f to the value of r. f runs at most once,
// on first resolution, and never if r fails.
func Then[T, U any](r Result[T], f func(v T) (U, error)) *Deferred[U] {
	return Defer(func() (U, error) {
		v, err := r.Now()
		if err != nil {
			var zero U
			return zero, err
		}
		return f(v)
	})
}
