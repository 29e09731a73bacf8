package duckdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tinytelemetry/pacemaker-logparser/internal/model"
)

// DefaultFlushQueueSize is the number of batches that can be queued for async flushing.
const DefaultFlushQueueSize = 64

// ErrBufferStopped is returned by Append after Stop.
var ErrBufferStopped = errors.New("duckdb: insert buffer stopped")

// InsertBuffer batches records and flushes them to DuckDB asynchronously.
// Sequence numbers are assigned in Append, so the order in which batches reach
// the database never changes the (Timestamp, Seq) order seen by queries.
type InsertBuffer struct {
	store         *Store
	appendMu      sync.RWMutex // held shared by Append, exclusively by Stop
	mu            sync.Mutex
	pending       []*model.LogRecord
	flushChan     chan []*model.LogRecord // async flush queue
	maxBatch      int
	flushInterval time.Duration
	done          chan struct{}
	stopped       atomic.Bool
	stopOnce      sync.Once
	wg            sync.WaitGroup
	tickWg        sync.WaitGroup // separate WaitGroup for tickLoop

	errMu    sync.Mutex
	firstErr error

	// backpressureCount tracks inline flushes for throttled logging.
	backpressureCount atomic.Int64
	lastBPLog         atomic.Int64 // unix timestamp of last backpressure log
}

var _ model.RecordWriter = (*InsertBuffer)(nil)

// InsertBufferConfig holds tunable parameters for the insert buffer.
type InsertBufferConfig struct {
	BatchSize      int
	FlushInterval  time.Duration
	FlushQueueSize int
}

// NewInsertBuffer creates a new insert buffer that flushes to the store.
// The flush goroutine processes batches asynchronously so Append never blocks on IO.
func NewInsertBuffer(store *Store, conf ...InsertBufferConfig) *InsertBuffer {
	batchSize := 2000
	flushInterval := 100 * time.Millisecond
	flushQueueSize := DefaultFlushQueueSize
	if len(conf) > 0 {
		if conf[0].BatchSize > 0 {
			batchSize = conf[0].BatchSize
		}
		if conf[0].FlushInterval > 0 {
			flushInterval = conf[0].FlushInterval
		}
		if conf[0].FlushQueueSize > 0 {
			flushQueueSize = conf[0].FlushQueueSize
		}
	}

	b := &InsertBuffer{
		store:         store,
		pending:       make([]*model.LogRecord, 0, batchSize),
		flushChan:     make(chan []*model.LogRecord, flushQueueSize),
		maxBatch:      batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}

	b.wg.Add(1)
	go b.flushWorker()

	b.wg.Add(1)
	b.tickWg.Add(1)
	go b.tickLoop()

	return b
}

// tickLoop periodically drains the pending buffer.
func (b *InsertBuffer) tickLoop() {
	defer b.wg.Done()
	defer b.tickWg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.drainPending()
		case <-b.done:
			b.drainPending() // final drain
			return
		}
	}
}

// logBackpressure emits a throttled warning (at most once per 10 seconds) when
// the flush channel is full and an inline flush is triggered.
func (b *InsertBuffer) logBackpressure() {
	count := b.backpressureCount.Add(1)
	now := time.Now().Unix()
	last := b.lastBPLog.Load()
	if now-last >= 10 && b.lastBPLog.CompareAndSwap(last, now) {
		log.Warn().Int64("inline_flushes", count).Msg("duckdb: backpressure, flush channel full")
	}
}

// drainPending moves pending records to the flush channel without blocking on DuckDB.
func (b *InsertBuffer) drainPending() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = make([]*model.LogRecord, 0, b.maxBatch)
	b.mu.Unlock()

	b.enqueue(batch)
}

// enqueue sends a batch to the flush worker. If the channel is full the batch
// is flushed synchronously as a safety valve (DuckDB is falling behind).
func (b *InsertBuffer) enqueue(batch []*model.LogRecord) {
	select {
	case b.flushChan <- batch:
	default:
		b.logBackpressure()
		b.flush(batch)
	}
}

// flushWorker processes batches from the flush channel.
func (b *InsertBuffer) flushWorker() {
	defer b.wg.Done()
	for batch := range b.flushChan {
		b.flush(batch)
	}
}

func (b *InsertBuffer) flush(batch []*model.LogRecord) {
	if err := b.store.InsertLogBatch(batch); err != nil {
		log.Error().Err(err).Int("records", len(batch)).Msg("duckdb flush error")
		b.errMu.Lock()
		if b.firstErr == nil {
			b.firstErr = err
		}
		b.errMu.Unlock()
	}
}

// Append assigns sequence numbers and queues the records for batch insertion.
// It never blocks on DuckDB IO.
func (b *InsertBuffer) Append(_ context.Context, records ...*model.LogRecord) error {
	b.appendMu.RLock()
	defer b.appendMu.RUnlock()
	if b.stopped.Load() {
		return ErrBufferStopped
	}

	b.mu.Lock()
	n := 0
	for _, r := range records {
		if r != nil {
			n++
		}
	}
	if n == 0 {
		b.mu.Unlock()
		return nil
	}
	seq := b.store.reserveSeq(n)
	for _, r := range records {
		if r == nil {
			continue
		}
		r.Seq = seq
		seq++
		b.pending = append(b.pending, r)
	}
	var batch []*model.LogRecord
	if len(b.pending) >= b.maxBatch {
		batch = b.pending
		b.pending = make([]*model.LogRecord, 0, b.maxBatch)
	}
	b.mu.Unlock()

	if batch != nil {
		b.enqueue(batch)
	}
	return nil
}

// Stop flushes remaining records, waits for all writes to complete and
// returns the first flush error, if any.
func (b *InsertBuffer) Stop() error {
	b.stopOnce.Do(func() {
		// Wait out in-flight Appends; later ones see stopped and never
		// touch pending or flushChan again.
		b.appendMu.Lock()
		b.stopped.Store(true)
		b.appendMu.Unlock()
		close(b.done)
		// Wait for tickLoop to finish its final drain before closing flushChan,
		// ensuring all pending records are sent to the flush channel.
		b.tickWg.Wait()
		close(b.flushChan)
		b.wg.Wait()
	})

	b.errMu.Lock()
	defer b.errMu.Unlock()
	return b.firstErr
}

// Append inserts records synchronously, assigning consecutive sequence numbers.
func (s *Store) Append(_ context.Context, records ...*model.LogRecord) error {
	batch := make([]*model.LogRecord, 0, len(records))
	for _, r := range records {
		if r != nil {
			batch = append(batch, r)
		}
	}
	if len(batch) == 0 {
		return nil
	}
	seq := s.reserveSeq(len(batch))
	for _, r := range batch {
		r.Seq = seq
		seq++
	}
	return s.InsertLogBatch(batch)
}

// InsertLogBatch writes records that already carry sequence numbers in a
// single transaction.
func (s *Store) InsertLogBatch(records []*model.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := s.queryCtx(context.Background())
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertBatchTx(ctx, records)
}

// insertBatchTx inserts records in a single transaction.
func (s *Store) insertBatchTx(ctx context.Context, records []*model.LogRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (seq, ts, node, component, payload, source) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(
			ctx,
			int64(r.Seq), r.Timestamp.UTC(), r.Node, r.Component, r.Payload, r.Source,
		); err != nil {
			return fmt.Errorf("record insert seq=%d: %w", r.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
