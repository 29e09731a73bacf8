package duckdb

import (
	"context"
	"strings"

	"github.com/tinytelemetry/pacemaker-logparser/internal/model"
)

// windowFilter returns a WHERE clause and args for the open interval w.
func windowFilter(w model.Window) (clause string, args []interface{}) {
	var conds []string
	if !w.Begin.IsZero() {
		conds = append(conds, "ts > ?")
		args = append(args, w.Begin.UTC())
	}
	if !w.End.IsZero() {
		conds = append(conds, "ts < ?")
		args = append(args, w.End.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// QueryRange returns records strictly inside w ordered by (ts, seq).
func (s *Store) QueryRange(ctx context.Context, w model.Window) ([]model.LogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	where, args := windowFilter(w)
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, ts, node, component, payload, source FROM records `+where+` ORDER BY ts, seq`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.LogRecord
	for rows.Next() {
		var (
			r   model.LogRecord
			seq int64
		)
		if err := rows.Scan(&seq, &r.Timestamp, &r.Node, &r.Component, &r.Payload, &r.Source); err != nil {
			return nil, err
		}
		r.Seq = uint64(seq)
		r.Timestamp = r.Timestamp.UTC()
		results = append(results, r)
	}
	return results, rows.Err()
}

// DistinctNodes returns each node name once, sorted.
func (s *Store) DistinctNodes(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, `SELECT DISTINCT node FROM records ORDER BY node`)
}

// DistinctComponents returns each component name once, sorted.
func (s *Store) DistinctComponents(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, `SELECT DISTINCT component FROM records ORDER BY component`)
}

func (s *Store) distinct(ctx context.Context, query string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&count)
	return count, err
}
