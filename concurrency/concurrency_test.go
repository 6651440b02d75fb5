package concurrency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inFlightRecorder records the highest number of concurrent worker calls.
type inFlightRecorder struct {
	current atomic.Int32
	max     atomic.Int32
}

func (r *inFlightRecorder) enter() {
	n := r.current.Add(1)
	for {
		m := r.max.Load()
		if n <= m || r.max.CompareAndSwap(m, n) {
			return
		}
	}
}

func (r *inFlightRecorder) leave() {
	r.current.Add(-1)
}

func TestDoWithMaxConcurrency_LimitAndAlignment(t *testing.T) {
	tests := []struct {
		limit int
		jobs  int
	}{
		{limit: 1, jobs: 10},
		{limit: 3, jobs: 10},
		{limit: 10, jobs: 3},
		{limit: 20, jobs: 20},
		{limit: 4, jobs: 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("N=%d M=%d", tt.limit, tt.jobs), func(t *testing.T) {
			jobs := make([]int, tt.jobs)
			for i := range jobs {
				jobs[i] = i
			}

			var recorder inFlightRecorder
			results, err := DoWithMaxConcurrency(context.Background(), tt.limit, jobs, func(ctx context.Context, job int) (int, error) {
				recorder.enter()
				defer recorder.leave()

				// later jobs finish first
				time.Sleep(time.Duration(tt.jobs-job) * time.Millisecond)
				if job%3 == 1 {
					return 0, fmt.Errorf("job %d failed", job)
				}
				return job * 10, nil
			})
			require.NoError(t, err)
			require.Len(t, results, tt.jobs)

			for i, result := range results {
				if i%3 == 1 {
					assert.EqualError(t, result.Err, fmt.Sprintf("job %d failed", i))
					continue
				}
				assert.NoError(t, result.Err)
				assert.Equal(t, i*10, result.Value)
			}

			want := tt.limit
			if tt.jobs < want {
				want = tt.jobs
			}
			assert.LessOrEqual(t, int(recorder.max.Load()), want)
		})
	}
}

func TestDoWithMaxConcurrency_AllStartWhenLimitCoversJobs(t *testing.T) {
	const jobs = 5
	var started sync.WaitGroup
	started.Add(jobs)
	release := make(chan struct{})

	done := make(chan []Result[struct{}])
	go func() {
		results, _ := DoWithMaxConcurrency(context.Background(), jobs, make([]int, jobs), func(ctx context.Context, _ int) (struct{}, error) {
			started.Done()
			<-release
			return struct{}{}, nil
		})
		done <- results
	}()

	// every worker must be in flight at the same time, otherwise this blocks
	started.Wait()
	close(release)
	assert.Len(t, <-done, jobs)
}

func TestDoWithMaxConcurrency_CompletionFreesSlot(t *testing.T) {
	first := make(chan struct{})
	var secondStarted atomic.Bool

	results, err := DoWithMaxConcurrency(context.Background(), 1, []int{1, 2}, func(ctx context.Context, job int) (int, error) {
		if job == 1 {
			assert.False(t, secondStarted.Load())
			close(first)
			return 0, errors.New("failed")
		}
		<-first
		secondStarted.Store(true)
		return job, nil
	})
	require.NoError(t, err)
	assert.Error(t, results[0].Err)
	assert.Equal(t, 2, results[1].Value)
}

func TestDoWithMaxConcurrency_NoJobs(t *testing.T) {
	called := false
	results, err := DoWithMaxConcurrency(context.Background(), 2, []string{}, func(ctx context.Context, job string) (string, error) {
		called = true
		return job, nil
	})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.False(t, called)
}

func TestDoWithMaxConcurrency_InvalidLimit(t *testing.T) {
	for _, limit := range []int{0, -1} {
		_, err := DoWithMaxConcurrency(context.Background(), limit, []int{1}, func(ctx context.Context, job int) (int, error) {
			return job, nil
		})
		assert.True(t, errors.Is(err, ErrInvalidLimit))
	}
}

func TestDoWithMaxConcurrency_RecoversPanics(t *testing.T) {
	results, err := DoWithMaxConcurrency(context.Background(), 2, []int{1, 2, 3}, func(ctx context.Context, job int) (int, error) {
		if job == 2 {
			panic("boom")
		}
		return job, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, results[0].Value)
	assert.Equal(t, 3, results[2].Value)

	var panicErr *PanicError
	require.True(t, errors.As(results[1].Err, &panicErr))
	assert.Equal(t, "boom", panicErr.Value)
}

func TestDoWithMaxConcurrency_StopsDispatchingWhenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	results, err := DoWithMaxConcurrency(ctx, 1, []int{1, 2, 3, 4}, func(ctx context.Context, job int) (int, error) {
		calls.Add(1)
		if job == 2 {
			cancel()
		}
		return job, nil
	})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, int32(2), calls.Load())
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.True(t, errors.Is(results[2].Err, context.Canceled))
	assert.True(t, errors.Is(results[3].Err, context.Canceled))
}
