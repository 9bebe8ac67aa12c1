package async

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"
)

// SafeGo runs fn in its own goroutine with a timeout-bound context and
// panic recovery. Failures are logged, not returned; callers that need
// the error should run the work inline.
func SafeGo(parent context.Context, timeout time.Duration, task string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log.Printf("async: panic in %s: %v\n%s", task, r, debug.Stack())
			}
		}()

		if err := fn(ctx); err != nil {
			log.Printf("async: %s: %v", task, err)
		}
	}()
}

// Batch runs fn over items with at most workers goroutines. Each call
// gets a timeout-bound context and panic recovery; the returned slice
// holds every error encountered, in no particular order. Items remaining
// after the parent context is cancelled fail with the context error.
func Batch[T any](ctx context.Context, items []T, workers int, task string, timeout time.Duration, fn func(context.Context, T) error) []error {
	if len(items) == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}

	workCh := make(chan T)
	errCh := make(chan error, len(items))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workCh {
				if err := ctx.Err(); err != nil {
					errCh <- err
					continue
				}
				errCh <- runTask(ctx, task, timeout, item, fn)
			}
		}()
	}

	for _, item := range items {
		workCh <- item
	}
	close(workCh)
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func runTask[T any](parent context.Context, task string, timeout time.Duration, item T, fn func(context.Context, T) error) (err error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", task, r)
		}
	}()

	return fn(ctx, item)
}
