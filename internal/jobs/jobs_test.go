package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunExecutesEveryJob(t *testing.T) {
	var ran atomic.Int64
	batch := make([]Job, 20)
	for i := range batch {
		batch[i] = func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}
	}

	pool := &Pool{Workers: 4}
	failures, err := pool.Run(context.Background(), batch)
	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Equal(t, int64(20), ran.Load())
}

func TestRunCollectsFailuresInIndexOrder(t *testing.T) {
	bad := map[int]bool{3: true, 7: true, 11: true}
	batch := make([]Job, 12)
	for i := range batch {
		batch[i] = func(ctx context.Context) error {
			if bad[i] {
				return fmt.Errorf("job %d broke", i)
			}
			return nil
		}
	}

	pool := &Pool{Workers: 5}
	failures, err := pool.Run(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, failures, 3)
	assert.Equal(t, 3, failures[0].Index)
	assert.Equal(t, 7, failures[1].Index)
	assert.Equal(t, 11, failures[2].Index)
	assert.EqualError(t, failures[1].Err, "job 7 broke")
}

func TestRunFailureDoesNotStopOtherJobs(t *testing.T) {
	var ran atomic.Int64
	batch := make([]Job, 10)
	for i := range batch {
		batch[i] = func(ctx context.Context) error {
			ran.Add(1)
			if i == 0 {
				return errors.New("first job fails")
			}
			return nil
		}
	}

	pool := &Pool{Workers: 2}
	failures, err := pool.Run(context.Background(), batch)
	require.NoError(t, err)
	assert.Len(t, failures, 1)
	assert.Equal(t, int64(10), ran.Load(), "remaining jobs should still run")
}

func TestRunCanceledContextStartsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int64
	batch := []Job{
		func(ctx context.Context) error { ran.Add(1); return nil },
		func(ctx context.Context) error { ran.Add(1); return nil },
	}

	pool := &Pool{Workers: 2}
	failures, err := pool.Run(ctx, batch)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, failures)
	assert.Equal(t, int64(0), ran.Load())
}

func TestRunSingleWorkerPreservesOrder(t *testing.T) {
	var mu sync.Mutex
	var order []int
	batch := make([]Job, 8)
	for i := range batch {
		batch[i] = func(ctx context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}
	}

	pool := &Pool{Workers: 1}
	_, err := pool.Run(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, order)
}

func TestRunReportsProgress(t *testing.T) {
	var mu sync.Mutex
	var counts []int
	pool := &Pool{
		Workers: 3,
		OnDone: func(done, total int) {
			mu.Lock()
			counts = append(counts, done)
			mu.Unlock()
			assert.Equal(t, 9, total)
		},
	}

	batch := make([]Job, 9)
	for i := range batch {
		batch[i] = func(ctx context.Context) error { return nil }
	}
	_, err := pool.Run(context.Background(), batch)
	require.NoError(t, err)

	require.Len(t, counts, 9)
	seen := make(map[int]bool, len(counts))
	for _, c := range counts {
		seen[c] = true
	}
	for want := 1; want <= 9; want++ {
		assert.True(t, seen[want], "missing progress count %d", want)
	}
}

func TestRunEmptyBatch(t *testing.T) {
	pool := &Pool{Workers: 4}
	failures, err := pool.Run(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, failures)
}
