package upload

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Task is a unit of work scheduled by RunAll.
type Task[T any] func(ctx context.Context) (T, error)

// RunAll runs tasks in submission order with at most limit of them in flight.
//
// The first task failure stops new tasks from starting and is returned.
// Cancelling ctx also stops new tasks from starting, but tasks already in
// flight run to completion: their context is not derived from ctx cancellation.
// Results are returned in submission order.
func RunAll[T any](ctx context.Context, limit int, tasks []Task[T]) ([]T, error) {
	if limit < 1 {
		limit = 1
	}
	results := make([]T, len(tasks))
	sem := semaphore.NewWeighted(int64(limit))
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))

	var launchErr error
	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			launchErr = err
			break
		}
		if err := sem.Acquire(gctx, 1); err != nil {
			// A task failed.
			break
		}
		if ctx.Err() != nil || gctx.Err() != nil {
			sem.Release(1)
			launchErr = ctx.Err()
			break
		}
		i, task := i, task
		g.Go(func() error {
			defer sem.Release(1)
			res, err := task(gctx)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, launchErr
}
