package steps

// Package steps provides a small cancellable future abstraction: a Step
// starts asynchronous work and hands back a StepResult whose channel yields
// the outcome. Cancellation is cooperative: Cancel cancels the step's
// context, and a result that arrives after cancellation is for the consumer
// to disregard.

import (
	"context"
	"sync"

	"github.com/go-go-golems/grillo/pkg/helpers"
)

// Step represents one asynchronous computation from A to B.
type Step[A, B any] interface {
	// Start begins the computation and returns immediately; the outcome is
	// delivered on the StepResult's channel.
	Start(ctx context.Context, input A) (*StepResult[B], error)
}

// StepResult is a handle on an in-flight computation. The channel yields the
// single outcome and is then closed.
type StepResult[T any] struct {
	ch <-chan helpers.Result[T]

	cancelOnce sync.Once
	cancel     context.CancelFunc
}

func NewStepResult[T any](ch <-chan helpers.Result[T], cancel context.CancelFunc) *StepResult[T] {
	return &StepResult[T]{
		ch:     ch,
		cancel: cancel,
	}
}

func (r *StepResult[T]) GetChannel() <-chan helpers.Result[T] {
	return r.ch
}

// Cancel cancels the underlying context. Safe to call multiple times; it does
// not guarantee the work stops, only that the context is done.
func (r *StepResult[T]) Cancel() {
	r.cancelOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
	})
}

// Return drains the channel and collects all results.
func (r *StepResult[T]) Return() []helpers.Result[T] {
	res := []helpers.Result[T]{}
	for v := range r.ch {
		res = append(res, v)
	}
	return res
}

// Resolve returns an already-completed successful result.
func Resolve[T any](value T) *StepResult[T] {
	c := make(chan helpers.Result[T], 1)
	c <- helpers.NewValueResult(value)
	close(c)
	return &StepResult[T]{ch: c}
}

// Reject returns an already-completed failed result.
func Reject[T any](err error) *StepResult[T] {
	c := make(chan helpers.Result[T], 1)
	c <- helpers.NewErrorResult[T](err)
	close(c)
	return &StepResult[T]{ch: c}
}

// LambdaStep wraps a plain function as a Step, running it in a goroutine
// under a cancellable context.
type LambdaStep[A, B any] struct {
	f func(ctx context.Context, input A) (B, error)
}

var _ Step[string, string] = (*LambdaStep[string, string])(nil)

func NewLambdaStep[A, B any](f func(ctx context.Context, input A) (B, error)) *LambdaStep[A, B] {
	return &LambdaStep[A, B]{f: f}
}

func (s *LambdaStep[A, B]) Start(ctx context.Context, input A) (*StepResult[B], error) {
	ctx, cancel := context.WithCancel(ctx)
	c := make(chan helpers.Result[B], 1)

	go func() {
		defer close(c)
		defer cancel()

		v, err := s.f(ctx, input)
		if err != nil {
			c <- helpers.NewErrorResult[B](err)
			return
		}
		c <- helpers.NewValueResult(v)
	}()

	return NewStepResult(c, cancel), nil
}
