package worker

import (
	"context"
	"sync"
)

// PanicHandler turns a panic raised while processing item into that item's result.
type PanicHandler[T, R any] func(item T, recovered any) R

// Run feeds items to at most workers goroutines and collects one result per processed item.
// Once ctx is done no further items are handed out; items already taken run to completion
// with ctx and report their result. The second return value is the number of items dispatched.
// When onPanic is non-nil a panicking item is recovered and reported through it, so the
// remaining items still run; a nil onPanic lets the panic propagate.
func Run[T, R any](ctx context.Context, workers int, items []T, fn func(context.Context, T) R, onPanic PanicHandler[T, R]) ([]R, int) {
	if workers < 1 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	jobs := make(chan T)
	results := make(chan R, len(items))

	wg := sync.WaitGroup{}
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for item := range jobs {
				results <- call(ctx, item, fn, onPanic)
			}
		}()
	}

	dispatched := 0
dispatch:
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- item:
			dispatched++
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)

	wg.Wait()
	close(results)

	out := make([]R, 0, dispatched)
	for r := range results {
		out = append(out, r)
	}
	return out, dispatched
}

func call[T, R any](ctx context.Context, item T, fn func(context.Context, T) R, onPanic PanicHandler[T, R]) (result R) {
	if onPanic != nil {
		defer func() {
			if r := recover(); r != nil {
				result = onPanic(item, r)
			}
		}()
	}
	return fn(ctx, item)
}
