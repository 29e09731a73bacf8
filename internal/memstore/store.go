// Package memstore is an in-process, append-only record store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/tinytelemetry/pacemaker-logparser/internal/model"
)

// Store keeps records in insertion order behind a RWMutex.
type Store struct {
	mu      sync.RWMutex
	records []model.LogRecord
	nextSeq uint64
}

var _ model.RecordStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{nextSeq: 1}
}

// Append stores copies of records, assigning consecutive sequence numbers.
// The assigned Seq is written back to each argument.
func (s *Store) Append(_ context.Context, records ...*model.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if r == nil {
			continue
		}
		r.Seq = s.nextSeq
		s.nextSeq++
		s.records = append(s.records, *r)
	}
	return nil
}

// QueryRange returns records strictly inside w ordered by (Timestamp, Seq).
func (s *Store) QueryRange(ctx context.Context, w model.Window) ([]model.LogRecord, error) {
	s.mu.RLock()
	out := make([]model.LogRecord, 0, len(s.records))
	for _, r := range s.records {
		if w.Contains(r.Timestamp) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// records are already in Seq order, so a stable sort by timestamp yields
	// (Timestamp, Seq) order.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// DistinctNodes returns each node name once, sorted.
func (s *Store) DistinctNodes(_ context.Context) ([]string, error) {
	return s.distinct(func(r model.LogRecord) string { return r.Node }), nil
}

// DistinctComponents returns each component name once, sorted.
func (s *Store) DistinctComponents(_ context.Context) ([]string, error) {
	return s.distinct(func(r model.LogRecord) string { return r.Component }), nil
}

func (s *Store) distinct(field func(model.LogRecord) string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, r := range s.records {
		v := field(r)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of stored records.
func (s *Store) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

// Close releases the records.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return nil
}
