//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package gosocket

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// PromiseState is the lifecycle state of a [Promise].
type PromiseState int

// Promise states. Cancellation is terminal and independent of fulfilment:
// a promise that has been cancelled never transitions to Fulfilled or
// Rejected, and one that has settled never transitions to Cancelled.
const (
	Pending PromiseState = iota
	Fulfilled
	Rejected
	Cancelled
)

// String implements [fmt.Stringer].
func (s PromiseState) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Fulfilled:
		return "Fulfilled"
	case Rejected:
		return "Rejected"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// ErrCancelled is the error returned by [Promise.Wait] when a promise was
// cancelled rather than fulfilled or rejected.
var ErrCancelled = errors.New("gosocket: promise cancelled")

// Promise is a minimal future: exactly one of Fulfilled, Rejected, or
// Cancelled, reached at most once.
//
// Unlike a JavaScript promise, a [Promise] does not run on a shared
// microtask queue: [Then] and [Catch] each spawn a goroutine that blocks on
// the parent's settlement, consistent with this module's context-
// transparent design (see doc.go). There is no hidden global scheduler.
//
// Construct a root promise with [NewPromise]; construct derived promises
// with [Then], [Catch], [All], or [Race].
type Promise[T any] struct {
	mu       sync.Mutex
	state    PromiseState
	value    T
	err      error
	done     chan struct{}
	onCancel func()
}

// NewPromise returns a new pending [Promise] together with the resolve and
// reject functions that settle it. onCancel, if non-nil, is invoked exactly
// once, synchronously on the cancelling goroutine, when [Promise.Cancel] is
// called on a still-pending promise. Register resource cleanup (timers,
// readiness watchers, in-flight dial attempts) there.
func NewPromise[T any](onCancel func()) (p *Promise[T], resolve func(T), reject func(error)) {
	p = &Promise[T]{done: make(chan struct{}), onCancel: onCancel}
	return p, p.resolve, p.reject
}

func (p *Promise[T]) settle(state PromiseState, value T, err error) bool {
	p.mu.Lock()
	if p.state != Pending {
		p.mu.Unlock()
		return false
	}
	p.state = state
	p.value = value
	p.err = err
	close(p.done)
	p.mu.Unlock()
	return true
}

func (p *Promise[T]) resolve(value T) {
	p.settle(Fulfilled, value, nil)
}

func (p *Promise[T]) reject(err error) {
	var zero T
	p.settle(Rejected, zero, err)
}

// Cancel transitions a pending promise to Cancelled and runs its cancel
// handler. Cancelling an already-settled promise is a no-op.
func (p *Promise[T]) Cancel() {
	p.mu.Lock()
	if p.state != Pending {
		p.mu.Unlock()
		return
	}
	var zero T
	p.state = Cancelled
	p.value = zero
	p.err = ErrCancelled
	close(p.done)
	handler := p.onCancel
	p.mu.Unlock()

	if handler != nil {
		handler()
	}
}

// State returns the promise's current state.
func (p *Promise[T]) State() PromiseState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsCancelled reports whether the promise was cancelled.
func (p *Promise[T]) IsCancelled() bool {
	return p.State() == Cancelled
}

// Wait blocks until the promise settles or ctx is done, whichever comes
// first, and returns the fulfilment value or the settlement error
// ([ErrCancelled] for a cancelled promise).
func (p *Promise[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		value, err := p.value, p.err
		p.mu.Unlock()
		return value, err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then chains a fulfilment handler onto p, returning a new promise.
//
// If p fulfils, onFulfilled runs and its result settles the child. If p
// rejects, the rejection propagates to the child untouched. If p is
// cancelled, the child is cancelled too. Cancelling the child cancels p:
// in this module promise chains are always linear, so there is never more
// than one dependent to consider.
func Then[T, R any](p *Promise[T], onFulfilled func(T) (R, error)) *Promise[R] {
	child, resolve, reject := NewPromise[R](p.Cancel)
	go func() {
		<-p.done
		p.mu.Lock()
		state, value, err := p.state, p.value, p.err
		p.mu.Unlock()

		switch state {
		case Fulfilled:
			r, ferr := onFulfilled(value)
			if ferr != nil {
				reject(ferr)
				return
			}
			resolve(r)
		case Rejected:
			reject(err)
		case Cancelled:
			child.Cancel()
		}
	}()
	return child
}

// Catch chains a rejection handler onto p, returning a new promise.
//
// If p rejects, onRejected runs and its result settles the child. A
// fulfilment or cancellation of p propagates to the child untouched.
func Catch[T any](p *Promise[T], onRejected func(error) (T, error)) *Promise[T] {
	child, resolve, reject := NewPromise[T](p.Cancel)
	go func() {
		<-p.done
		p.mu.Lock()
		state, value, err := p.state, p.value, p.err
		p.mu.Unlock()

		switch state {
		case Fulfilled:
			resolve(value)
		case Rejected:
			v, rerr := onRejected(err)
			if rerr != nil {
				reject(rerr)
				return
			}
			resolve(v)
		case Cancelled:
			child.Cancel()
		}
	}()
	return child
}

// All waits for every promise in promises to fulfil, returning their values
// in order. It rejects as soon as any promise rejects, cancelling the rest,
// and propagates cancellation of the returned promise to every input.
//
// The first-rejection-cancels-the-rest semantics are implemented with
// [errgroup.Group], the same combinator the pack otherwise has no
// equivalent for.
func All[T any](ctx context.Context, promises []*Promise[T]) *Promise[[]T] {
	cancelAll := func() {
		for _, p := range promises {
			p.Cancel()
		}
	}
	result, resolve, reject := NewPromise[[]T](cancelAll)

	if len(promises) == 0 {
		resolve(nil)
		return result
	}

	go func() {
		g, gctx := errgroup.WithContext(ctx)
		values := make([]T, len(promises))

		for i, p := range promises {
			i, p := i, p
			g.Go(func() error {
				v, err := p.Wait(gctx)
				if err != nil {
					cancelAll()
					return err
				}
				values[i] = v
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			reject(err)
			return
		}
		resolve(values)
	}()

	return result
}

// Race settles as soon as any promise in promises settles (fulfilled or
// rejected), cancelling the rest. Cancellation of the returned promise
// cancels every input.
func Race[T any](ctx context.Context, promises []*Promise[T]) *Promise[T] {
	cancelOthers := func(except *Promise[T]) {
		for _, p := range promises {
			if p != except {
				p.Cancel()
			}
		}
	}
	result, resolve, reject := NewPromise[T](func() { cancelOthers(nil) })

	if len(promises) == 0 {
		return result
	}

	var once sync.Once
	for _, p := range promises {
		p := p
		go func() {
			v, err := p.Wait(ctx)
			once.Do(func() {
				cancelOthers(p)
				if err != nil {
					reject(err)
					return
				}
				resolve(v)
			})
		}()
	}

	return result
}
