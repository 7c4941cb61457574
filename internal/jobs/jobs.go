// Package jobs runs batches of independent work items on a fixed pool
// of goroutines. The pipeline uses it to combine frame groups and
// correct light frames in parallel while keeping stage barriers: a
// batch does not return until every started job has finished.
package jobs

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
)

// Job is a single unit of work. Jobs in one batch must not depend on
// each other; the pool gives no ordering guarantee between them.
type Job func(ctx context.Context) error

// JobError pairs a failed job with its position in the batch.
type JobError struct {
	Index int
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %d: %v", e.Index, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// Pool executes batches of jobs on Workers goroutines.
type Pool struct {
	// Workers is the number of concurrent goroutines. Zero or
	// negative means runtime.NumCPU().
	Workers int

	// OnDone, if set, is called after each job finishes with the
	// number of completed jobs and the batch size. It may be called
	// from multiple goroutines.
	OnDone func(done, total int)
}

// Run executes every job in the batch and waits for all of them.
// Failures are collected rather than short-circuiting: one bad frame
// group must not stop unrelated groups from combining. The returned
// slice is ordered by job index so callers can map failures back to
// their inputs deterministically.
//
// A canceled context stops the pool from starting further jobs; jobs
// already running finish normally. In that case Run returns ctx.Err()
// alongside whatever failures were collected.
func (p *Pool) Run(ctx context.Context, batch []Job) ([]JobError, error) {
	if len(batch) == 0 {
		return nil, ctx.Err()
	}
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(batch) {
		workers = len(batch)
	}

	var (
		mu       sync.Mutex
		failures []JobError
		done     int
	)
	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				err := batch[i](ctx)
				mu.Lock()
				if err != nil {
					failures = append(failures, JobError{Index: i, Err: err})
				}
				done++
				n := done
				mu.Unlock()
				if p.OnDone != nil {
					p.OnDone(n, len(batch))
				}
			}
		}()
	}

feed:
	for i := range batch {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case indexes <- i:
		}
	}
	close(indexes)
	wg.Wait()

	sort.Slice(failures, func(i, j int) bool { return failures[i].Index < failures[j].Index })
	return failures, ctx.Err()
}
