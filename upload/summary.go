package upload

import (
	"context"
	"time"

	"github.com/kloudfuse/go-uploadutils/concurrency"
)

// Summary counts job outcomes of a batch.
type Summary struct {
	Success int
	Failure int
	Skipped int
	Elapsed time.Duration

	// Attempts is the number of requests sent, Retries the part of them that
	// repeated an earlier failed request.
	Attempts int
	Retries  int
	// BytesSent is the encoded body size consumed by the transport.
	BytesSent int64
}

// Total ...
func (s Summary) Total() int {
	return s.Success + s.Failure + s.Skipped
}

// Summarize reduces per-job statuses into a Summary.
func Summarize(statuses []Status, elapsed time.Duration) Summary {
	summary := Summary{Elapsed: elapsed}
	for _, status := range statuses {
		switch status {
		case StatusSuccess:
			summary.Success++
		case StatusFailure:
			summary.Failure++
		case StatusSkipped:
			summary.Skipped++
		}
	}
	return summary
}

// BatchOptions ...
type BatchOptions struct {
	MaxConcurrency int
}

// RunBatch uploads jobs with at most MaxConcurrency in flight. The only error
// is an invalid concurrency limit; per-job problems end up in the summary.
// Jobs that could not run to completion, because ctx was done before they
// started or because they panicked, count as failures.
func RunBatch(ctx context.Context, opts BatchOptions, uploader *Uploader, jobs []Job) (Summary, []Status, error) {
	start := time.Now()
	before := uploader.Stats().Snapshot()

	results, err := concurrency.DoWithMaxConcurrency(ctx, opts.MaxConcurrency, jobs, func(ctx context.Context, job Job) (Status, error) {
		return uploader.Upload(ctx, job), nil
	})
	if err != nil {
		return Summary{}, nil, err
	}

	statuses := make([]Status, len(results))
	for i, result := range results {
		if result.Err != nil {
			uploader.Observer().OnError(jobs[i], result.Err)
			statuses[i] = StatusFailure
			continue
		}
		statuses[i] = result.Value
	}

	summary := Summarize(statuses, time.Since(start))
	transferred := uploader.Stats().Snapshot().Since(before)
	summary.Attempts = transferred.Attempts
	summary.Retries = transferred.Retries
	summary.BytesSent = transferred.BytesSent
	return summary, statuses, nil
}
