// Package concurrency runs a list of jobs through a worker with a bounded
// number of invocations in flight.
package concurrency

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidLimit is returned when the concurrency limit is less than 1.
var ErrInvalidLimit = errors.New("concurrency limit should be at least 1")

// Result is the outcome of one job. Err is the worker's error, a recovered
// panic, or the context error for jobs that were never started.
type Result[T any] struct {
	Value T
	Err   error
}

// PanicError wraps a value recovered from a panicking worker.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker panicked: %v", e.Value)
}

// DoWithMaxConcurrency applies worker to every job with at most limit calls in
// flight and returns one result per job, in input order. A failing job does not
// stop the others. Once ctx is done no new job is started.
func DoWithMaxConcurrency[J, T any](ctx context.Context, limit int, jobs []J, worker func(ctx context.Context, job J) (T, error)) ([]Result[T], error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidLimit, limit)
	}

	results := make([]Result[T], len(jobs))
	if len(jobs) == 0 {
		return results, nil
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for i := range jobs {
		// a slot is taken only when one frees up
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i] = run(ctx, jobs[i], worker)
			return nil
		})
	}

	_ = g.Wait()
	return results, nil
}

func run[J, T any](ctx context.Context, job J, worker func(ctx context.Context, job J) (T, error)) (result Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			result = Result[T]{Err: &PanicError{Value: r}}
		}
	}()

	value, err := worker(ctx, job)
	return Result[T]{Value: value, Err: err}
}
