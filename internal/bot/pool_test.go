package bot

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolRunsSubmittedJobs(t *testing.T) {
	pool := NewPool(3, nil)
	pool.Start(context.Background())

	var ran atomic.Int64
	for i := 0; i < 10; i++ {
		pool.Submit(func(context.Context) { ran.Add(1) })
	}
	pool.Stop()
	pool.Wait()

	assert.Equal(t, int64(10), ran.Load())
}

func TestPoolSubmitBlocksWhenWorkersBusy(t *testing.T) {
	pool := NewPool(1, nil)
	pool.Start(context.Background())
	defer func() {
		pool.Stop()
		pool.Wait()
	}()

	gate := make(chan struct{})
	pool.Submit(func(context.Context) { <-gate })

	submitted := make(chan struct{})
	go func() {
		pool.Submit(func(context.Context) {})
		close(submitted)
	}()

	select {
	case <-submitted:
		t.Fatal("Submit returned while the only worker was busy")
	case <-time.After(50 * time.Millisecond):
	}
	close(gate)

	select {
	case <-submitted:
	case <-time.After(time.Second):
		t.Fatal("Submit never unblocked after the worker freed up")
	}
}

func TestPoolRecoversFromPanic(t *testing.T) {
	pool := NewPool(1, nil)
	pool.Start(context.Background())

	var ran atomic.Bool
	pool.Submit(func(context.Context) { panic("boom") })
	pool.Submit(func(context.Context) { ran.Store(true) })
	pool.Stop()
	pool.Wait()

	assert.True(t, ran.Load(), "worker must survive a panicking job")
}

func TestPoolStopIsIdempotent(t *testing.T) {
	pool := NewPool(2, nil)
	pool.Start(context.Background())
	pool.Stop()
	pool.Stop()
	pool.Wait()
}

func TestPoolIgnoresNilJobs(t *testing.T) {
	pool := NewPool(1, nil)
	pool.Start(context.Background())
	pool.Submit(nil)
	pool.Stop()
	pool.Wait()
}

func TestHumanPoints(t *testing.T) {
	cases := map[int]string{
		0:       "0",
		100:     "100",
		1000:    "1 000",
		12345:   "12 345",
		1000000: "1 000 000",
	}
	for in, want := range cases {
		assert.Equal(t, want, humanPoints(in))
	}
}
