package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Job is one independent unit of work for Dispatch. Label identifies the
// unit in failure reporting; Payload is handed to invoke; Context is handed
// to onResult alongside the invocation result.
type Job[P, C any] struct {
	Label   string
	Payload P
	Context C
}

// Dispatch fans jobs out across a bounded worker pool and streams each
// result, in completion order, to onResult on the calling goroutine.
// onResult owns persistence (including ledger recording) and returns how
// many items it wrote.
//
// A failed invoke or onResult records the job's label and moves on; siblings
// are never affected and nothing is rolled back. Dispatch returns once every
// job has completed or failed. It imposes no batch timeout; per-job deadlines
// are whatever invoke enforces through ctx.
func Dispatch[P, C, R any](
	ctx context.Context,
	jobs []Job[P, C],
	invoke func(context.Context, P) (R, error),
	onResult func(R, C) (int, error),
	maxConcurrency int,
) (int, []string) {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	type outcome struct {
		label  string
		jobCtx C
		result R
		err    error
	}

	results := make(chan outcome)
	go func() {
		var g errgroup.Group
		g.SetLimit(maxConcurrency)
		for _, job := range jobs {
			g.Go(func() error {
				r, err := invoke(ctx, job.Payload)
				results <- outcome{label: job.Label, jobCtx: job.Context, result: r, err: err}
				return nil
			})
		}
		g.Wait()
		close(results)
	}()

	total := 0
	var failed []string
	for o := range results {
		if o.err != nil {
			failed = append(failed, o.label)
			continue
		}
		n, err := onResult(o.result, o.jobCtx)
		if err != nil {
			failed = append(failed, o.label)
			continue
		}
		total += n
	}
	return total, failed
}
