// Package ingest turns log sources into stored records.
package ingest

import "github.com/tinytelemetry/pacemaker-logparser/internal/model"

// RecordSink receives records produced by a processor, in line order.
type RecordSink interface {
	Add(record *model.LogRecord)
}

// EnvelopeProcessor consumes source-tagged ingest lines and emits records.
type EnvelopeProcessor interface {
	ProcessEnvelope(model.IngestEnvelope) *ProcessResult
	Stats() Stats
}

// sliceSink collects records for one source.
type sliceSink struct {
	records []*model.LogRecord
}

func (s *sliceSink) Add(record *model.LogRecord) {
	s.records = append(s.records, record)
}
