package duckdb

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/pacemaker-logparser/internal/model"
)

func TestInsertBuffer_AppendAndStop(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, buf.Append(ctx, rec(time.Duration(i)*time.Second, "node1", "c", "m")))
	}

	// Stop should flush all pending records
	require.NoError(t, buf.Stop())

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), count)
}

func TestInsertBuffer_BatchThreshold(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store, InsertBufferConfig{BatchSize: 100, FlushQueueSize: 1})
	ctx := context.Background()

	for i := 0; i < 2100; i++ {
		require.NoError(t, buf.Append(ctx, rec(0, "node1", "c", "batch test")))
	}
	require.NoError(t, buf.Stop())

	got, err := store.QueryRange(ctx, model.Window{})
	require.NoError(t, err)
	require.Len(t, got, 2100)
	for i, r := range got {
		assert.Equal(t, uint64(i+1), r.Seq)
	}
}

func TestInsertBuffer_SequenceIsAppendOrder(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store, InsertBufferConfig{BatchSize: 3, FlushInterval: time.Millisecond})
	ctx := context.Background()

	first := rec(time.Minute, "node1", "c", "first")
	second := rec(time.Minute, "node2", "c", "second")
	require.NoError(t, buf.Append(ctx, first, nil, second))
	require.NoError(t, buf.Stop())

	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)

	got, err := store.QueryRange(ctx, model.Window{})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, payloads(got))
}

func TestInsertBuffer_ConcurrentAppend(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store, InsertBufferConfig{BatchSize: 50})
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				_ = buf.Append(ctx, rec(0, "node", "c", "concurrent"))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, buf.Stop())

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), count)
}

func TestInsertBuffer_AppendAfterStop(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)
	require.NoError(t, buf.Stop())
	require.NoError(t, buf.Stop())

	err := buf.Append(context.Background(), rec(0, "n", "c", "late"))
	assert.ErrorIs(t, err, ErrBufferStopped)
}

func TestInsertBuffer_AppendRacingStop(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store, InsertBufferConfig{BatchSize: 1, FlushQueueSize: 1})
	ctx := context.Background()

	var accepted atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if err := buf.Append(ctx, rec(0, "node", "c", "racing")); err != nil {
					assert.ErrorIs(t, err, ErrBufferStopped)
					return
				}
				accepted.Add(1)
			}
		}()
	}
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, buf.Stop())
	wg.Wait()

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, accepted.Load(), count)
}
