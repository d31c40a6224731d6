package arbor

import (
	"context"
)

// Async is a handle on backend work running in its own goroutine.
type Async[T any] struct {
	done  chan struct{}
	value T
	err   error
}

var _ Result[int] = (*Async[int])(nil)

// Go runs f in a new goroutine. Callers never need to wait for the result,
// but the goroutine lives until f returns, so f must honor ctx.
func Go[T any](ctx context.Context, f func(ctx context.Context) (T, error)) *Async[T] {
	a := &Async[T]{done: make(chan struct{})}
	go func() {
		defer close(a.done)
		if err := ctx.Err(); err != nil {
			a.err = err
			return
		}
		a.value, a.err = f(ctx)
	}()
	return a
}

// Completed returns an Async that has already finished.
func Completed[T any](v T, err error) *Async[T] {
	a := &Async[T]{done: make(chan struct{}), value: v, err: err}
	close(a.done)
	return a
}

// Wait blocks until the work finishes. Any number of goroutines may wait.
func (a *Async[T]) Wait() (T, error) {
	<-a.done
	return a.value, a.err
}

func (a *Async[T]) Now() (T, error) {
	return a.Wait()
}

// Done is closed when the work finishes.
func (a *Async[T]) Done() <-chan struct{} {
	return a.done
}
