// Package worker runs batches of independent tasks on a bounded number of
// goroutines.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/stock-programmer/limit-up-review/internal/common"
)

// Task processes item i of a batch.
type Task func(ctx context.Context, i int) error

// Pool runs the items of a batch on a fixed number of workers
type Pool struct {
	logger     arbor.ILogger
	numWorkers int
}

// NewPool creates a pool. numWorkers below 1 is treated as 1.
func NewPool(logger arbor.ILogger, numWorkers int) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Pool{logger: logger, numWorkers: numWorkers}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.numWorkers
}

// Run executes task for every index in [0, n) and returns once all of them
// have finished. errs[i] holds the error of item i. A panicking item is
// recovered and reported in errs; other items are unaffected. Items not yet
// started when ctx is cancelled report ctx.Err().
func (p *Pool) Run(ctx context.Context, name string, n int, task Task) []error {
	errs := make([]error, n)
	if n == 0 {
		return errs
	}

	workers := p.numWorkers
	if workers > n {
		workers = n
	}

	p.logger.Debug().
		Str("batch", name).
		Int("items", n).
		Int("num_workers", workers).
		Msg("Starting batch")

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				if err := ctx.Err(); err != nil {
					errs[i] = err
					continue
				}
				unit := fmt.Sprintf("%s[%d]", name, i)
				errs[i] = common.SafeCall(p.logger, unit, func() error {
					return task(ctx, i)
				})
			}
		}()
	}

	for i := 0; i < n; i++ {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	p.logger.Debug().
		Str("batch", name).
		Int("items", n).
		Int("failed", failed).
		Msg("Batch complete")

	return errs
}
