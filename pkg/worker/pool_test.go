package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolRejectsBadSizes(t *testing.T) {
	_, err := NewPool(0, 10, nil)
	assert.Error(t, err)
	_, err = NewPool(1, 0, nil)
	assert.Error(t, err)
}

func TestPoolRunsAllTasks(t *testing.T) {
	p, err := NewPool(4, 16, nil)
	require.NoError(t, err)

	var n atomic.Int32
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) { n.Add(1) }))
	}
	p.Close()
	assert.Equal(t, int32(100), n.Load())
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p, err := NewPool(2, 16, nil)
	require.NoError(t, err)

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {
			defer wg.Done()
			cur := running.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		}))
	}
	wg.Wait()
	p.Close()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPoolRecoversPanics(t *testing.T) {
	var recovered atomic.Value
	p, err := NewPool(1, 4, func(v interface{}, _ []byte) { recovered.Store(v) })
	require.NoError(t, err)

	done := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive panic")
	}
	p.Close()
	assert.Equal(t, "boom", recovered.Load())
}

func TestSubmitAfterClose(t *testing.T) {
	p, err := NewPool(1, 1, nil)
	require.NoError(t, err)
	p.Close()
	p.Close()

	err = p.Submit(context.Background(), func(ctx context.Context) {})
	assert.True(t, errors.Is(err, ErrPoolClosed))
}

func TestSubmitHonoursContextWhenFull(t *testing.T) {
	p, err := NewPool(1, 1, nil)
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = p.Submit(ctx, func(ctx context.Context) {})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	close(release)
	p.Close()
}
