package ingest

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/tinytelemetry/pacemaker-logparser/internal/logparse"
	"github.com/tinytelemetry/pacemaker-logparser/internal/model"
)

// ErrLineTooLong reports a line its source discarded for exceeding the
// maximum line size.
var ErrLineTooLong = errors.New("line exceeds max line size")

// Stats counts what happened to the lines of one source.
type Stats struct {
	Lines       int
	Records     int
	NoKeyword   int
	NoTimestamp int
	Malformed   int
}

// Dropped is the number of lines that produced no record.
func (s Stats) Dropped() int { return s.Lines - s.Records }

func (s *Stats) add(o Stats) {
	s.Lines += o.Lines
	s.Records += o.Records
	s.NoKeyword += o.NoKeyword
	s.NoTimestamp += o.NoTimestamp
	s.Malformed += o.Malformed
}

// ProcessResult holds the result of processing a log line. Record is nil
// when the line was dropped, with Err naming the reason.
type ProcessResult struct {
	Record *model.LogRecord
	Err    error
}

// Processor parses lines of one source and routes records to a sink.
// It is not safe for concurrent use; create one per source.
type Processor struct {
	parser     *logparse.Parser
	sink       RecordSink
	sourceName string
	stats      Stats
}

var _ EnvelopeProcessor = (*Processor)(nil)

// NewProcessor creates a new log processor.
func NewProcessor(parser *logparse.Parser, sink RecordSink, sourceName string) *Processor {
	if parser == nil {
		parser = logparse.NewParser(nil)
	}
	return &Processor{
		parser:     parser,
		sink:       sink,
		sourceName: sourceName,
	}
}

// ProcessEnvelope parses one source-tagged line. Dropped lines are counted
// and logged at debug level.
func (p *Processor) ProcessEnvelope(env model.IngestEnvelope) *ProcessResult {
	if env.Line == "" && !env.Oversized {
		return nil
	}
	p.stats.Lines++

	source := env.Source
	if source == "" {
		source = p.sourceName
	}

	if env.Oversized {
		p.stats.Malformed++
		log.Debug().Str("source", source).Msg("oversized line dropped")
		return &ProcessResult{Err: ErrLineTooLong}
	}

	record, err := p.parser.ParseLine(env.Line, env.Tag)
	if err != nil {
		p.countDrop(err)
		// Keyword misses are the common case and not worth a log line.
		if !errors.Is(err, logparse.ErrNoKeyword) {
			log.Debug().Err(err).Str("source", source).Str("line", env.Line).Msg("line dropped")
		}
		return &ProcessResult{Err: err}
	}
	record.Source = source
	p.stats.Records++

	if p.sink != nil {
		p.sink.Add(record)
	}
	return &ProcessResult{Record: record}
}

func (p *Processor) countDrop(err error) {
	switch {
	case errors.Is(err, logparse.ErrNoKeyword):
		p.stats.NoKeyword++
	case errors.Is(err, logparse.ErrNoTimestamp):
		p.stats.NoTimestamp++
	default:
		p.stats.Malformed++
	}
}

// Stats returns the counters accumulated so far.
func (p *Processor) Stats() Stats { return p.stats }
