package model

import "context"

// RecordWriter provides append operations for normalized records.
// Append assigns consecutive sequence numbers in argument order.
type RecordWriter interface {
	Append(ctx context.Context, records ...*LogRecord) error
}

// RecordReader provides the read-side query contract.
type RecordReader interface {
	// QueryRange returns records strictly inside w ordered by (Timestamp, Seq).
	QueryRange(ctx context.Context, w Window) ([]LogRecord, error)
	DistinctNodes(ctx context.Context) ([]string, error)
	DistinctComponents(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int64, error)
}

// RecordStore is the full record store contract.
type RecordStore interface {
	RecordWriter
	RecordReader
	Close() error
}
