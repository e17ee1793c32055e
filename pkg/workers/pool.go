// Package workers runs independent tasks on a bounded set of goroutines and
// collects their results in submission order.
package workers

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Map calls fn for every task using at most n goroutines and returns the
// results in the order the tasks were given. The first error cancels the
// context passed to the remaining calls and is returned with no results.
// n < 1 runs tasks one at a time.
func Map[T, R any](ctx context.Context, n int, tasks []T, fn func(ctx context.Context, task T) (R, error)) ([]R, error) {
	if n < 1 {
		n = 1
	}

	results := make([]R, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n)

	for i, task := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := fn(gctx, task)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
