package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type job[T any] struct {
	item  T
	index int
}

type result struct {
	err   error
	index int
}

// Batch runs fn for every item on a fixed number of workers.
// All items are attempted unless ctx is cancelled; the errors of failed
// items are joined in item order.
func Batch[T any](ctx context.Context, workers int, items []T, fn func(ctx context.Context, i int, item T) error) error {
	if len(items) == 0 {
		return nil
	}
	workers = max(min(workers, len(items)), 1)

	jobs := make(chan job[T], len(items))
	results := make(chan result, len(items))

	go func() {
		for i, it := range items {
			jobs <- job[T]{index: i, item: it}
		}
		close(jobs)
	}()

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{index: j.index, err: err}
					continue
				}
				results <- result{index: j.index, err: fn(ctx, j.index, j.item)}
			}
		}()
	}
	wg.Wait()
	close(results)

	errs := make([]error, len(items))
	for res := range results {
		if res.err != nil {
			errs[res.index] = fmt.Errorf("item %d: %w", res.index, res.err)
		}
	}
	return errors.Join(errs...)
}
