// SPDX-License-Identifier: GPL-3.0-or-later

package gosocket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A freshly constructed promise is Pending.
func TestNewPromiseIsPending(t *testing.T) {
	p, _, _ := NewPromise[int](nil)
	assert.Equal(t, Pending, p.State())
	assert.False(t, p.IsCancelled())
}

// Resolving settles the promise as Fulfilled and Wait returns the value.
func TestPromiseResolve(t *testing.T) {
	p, resolve, _ := NewPromise[int](nil)
	resolve(42)

	assert.Equal(t, Fulfilled, p.State())
	v, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

// Rejecting settles the promise as Rejected and Wait returns the error.
func TestPromiseReject(t *testing.T) {
	wantErr := errors.New("boom")
	p, _, reject := NewPromise[int](nil)
	reject(wantErr)

	assert.Equal(t, Rejected, p.State())
	_, err := p.Wait(context.Background())
	assert.ErrorIs(t, err, wantErr)
}

// A second resolve/reject after settlement is a no-op.
func TestPromiseSettleOnce(t *testing.T) {
	p, resolve, reject := NewPromise[int](nil)
	resolve(1)
	resolve(2)
	reject(errors.New("ignored"))

	v, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

// Cancel transitions a pending promise to Cancelled and runs onCancel.
func TestPromiseCancelRunsHandler(t *testing.T) {
	called := false
	p, _, _ := NewPromise[int](func() { called = true })

	p.Cancel()

	assert.True(t, p.IsCancelled())
	assert.True(t, called)

	_, err := p.Wait(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
}

// Cancelling an already-settled promise is a no-op: onCancel does not run.
func TestPromiseCancelAfterSettleIsNoop(t *testing.T) {
	called := false
	p, resolve, _ := NewPromise[int](func() { called = true })
	resolve(7)

	p.Cancel()

	assert.Equal(t, Fulfilled, p.State())
	assert.False(t, called)
}

// Wait returns the context error when the context is done before settlement.
func TestPromiseWaitContextCancelled(t *testing.T) {
	p, _, _ := NewPromise[int](nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// Then runs the fulfilment handler and settles the child with its result.
func TestThenOnFulfilled(t *testing.T) {
	p, resolve, _ := NewPromise[int](nil)
	child := Then(p, func(v int) (string, error) {
		return "value-is-" + string(rune('0'+v)), nil
	})

	resolve(5)

	v, err := child.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "value-is-5", v)
}

// Then propagates rejection to the child without running onFulfilled.
func TestThenPropagatesRejection(t *testing.T) {
	wantErr := errors.New("upstream failed")
	p, _, reject := NewPromise[int](nil)
	called := false
	child := Then(p, func(v int) (int, error) {
		called = true
		return v, nil
	})

	reject(wantErr)

	_, err := child.Wait(context.Background())
	assert.ErrorIs(t, err, wantErr)
	assert.False(t, called)
}

// Cancelling the child of Then cancels the parent.
func TestThenCancelPropagatesToParent(t *testing.T) {
	p, _, _ := NewPromise[int](nil)
	child := Then(p, func(v int) (int, error) { return v, nil })

	child.Cancel()

	assert.Eventually(t, func() bool { return p.IsCancelled() }, time.Second, 5*time.Millisecond)
}

// Catch runs the rejection handler and can recover into a fulfilment.
func TestCatchRecoversRejection(t *testing.T) {
	p, _, reject := NewPromise[int](nil)
	child := Catch(p, func(err error) (int, error) {
		return 99, nil
	})

	reject(errors.New("boom"))

	v, err := child.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 99, v)
}

// Catch leaves a fulfilment untouched.
func TestCatchPassesThroughFulfilment(t *testing.T) {
	p, resolve, _ := NewPromise[int](nil)
	child := Catch(p, func(err error) (int, error) {
		t.Fatal("onRejected should not run")
		return 0, nil
	})

	resolve(3)

	v, err := child.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

// All waits for every promise to fulfil and returns values in order.
func TestAllFulfils(t *testing.T) {
	p1, resolve1, _ := NewPromise[int](nil)
	p2, resolve2, _ := NewPromise[int](nil)

	all := All(context.Background(), []*Promise[int]{p1, p2})

	resolve2(2)
	resolve1(1)

	v, err := all.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, v)
}

// All rejects as soon as any promise rejects and cancels the rest.
func TestAllRejectsAndCancelsRest(t *testing.T) {
	p1, _, reject1 := NewPromise[int](nil)
	p2, _, _ := NewPromise[int](nil)

	all := All(context.Background(), []*Promise[int]{p1, p2})

	wantErr := errors.New("p1 failed")
	reject1(wantErr)

	_, err := all.Wait(context.Background())
	assert.ErrorIs(t, err, wantErr)
	assert.Eventually(t, func() bool { return p2.IsCancelled() }, time.Second, 5*time.Millisecond)
}

// All on an empty slice resolves immediately with a nil slice.
func TestAllEmpty(t *testing.T) {
	all := All[int](context.Background(), nil)
	v, err := all.Wait(context.Background())
	require.NoError(t, err)
	assert.Nil(t, v)
}

// Race settles with the first promise to settle and cancels the rest.
func TestRaceFirstWins(t *testing.T) {
	p1, resolve1, _ := NewPromise[int](nil)
	p2, _, _ := NewPromise[int](nil)

	race := Race(context.Background(), []*Promise[int]{p1, p2})

	resolve1(11)

	v, err := race.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 11, v)
	assert.Eventually(t, func() bool { return p2.IsCancelled() }, time.Second, 5*time.Millisecond)
}

// PromiseState.String covers every named state.
func TestPromiseStateString(t *testing.T) {
	assert.Equal(t, "Pending", Pending.String())
	assert.Equal(t, "Fulfilled", Fulfilled.String())
	assert.Equal(t, "Rejected", Rejected.String())
	assert.Equal(t, "Cancelled", Cancelled.String())
	assert.Equal(t, "Unknown", PromiseState(99).String())
}
