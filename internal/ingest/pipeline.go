package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/pacemaker-logparser/internal/logparse"
	"github.com/tinytelemetry/pacemaker-logparser/internal/logsource"
	"github.com/tinytelemetry/pacemaker-logparser/internal/model"
)

// DefaultWorkers is the default number of sources parsed at once.
const DefaultWorkers = 4

// Job opens one log source.
type Job struct {
	Name string
	Open func(ctx context.Context) (logsource.LogSource, error)
}

// SourceReport is the outcome of one job.
type SourceReport struct {
	Name     string
	Stats    Stats
	Duration time.Duration
	Err      error
}

// Summary is the outcome of a pipeline run.
type Summary struct {
	Sources []SourceReport
	Total   Stats
}

// Err combines the per-source errors.
func (s *Summary) Err() error {
	var err error
	for _, src := range s.Sources {
		err = multierr.Append(err, src.Err)
	}
	return err
}

// Pipeline parses sources in parallel and appends their records to a store
// in job order, so sequence numbers do not depend on scheduling.
type Pipeline struct {
	parser  *logparse.Parser
	store   model.RecordWriter
	workers int
}

// NewPipeline creates a pipeline. workers <= 0 uses DefaultWorkers.
func NewPipeline(parser *logparse.Parser, store model.RecordWriter, workers int) *Pipeline {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if parser == nil {
		parser = logparse.NewParser(nil)
	}
	return &Pipeline{parser: parser, store: store, workers: workers}
}

// Run parses every job and appends the records. Per-source failures are
// reported in the Summary and do not stop the run; a store failure or a
// cancelled context is returned as an error.
func (p *Pipeline) Run(ctx context.Context, jobs []Job) (*Summary, error) {
	records := make([][]*model.LogRecord, len(jobs))
	reports := make([]SourceReport, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, job := range jobs {
		g.Go(func() error {
			start := time.Now()
			recs, stats, err := p.parse(gctx, job)
			records[i] = recs
			reports[i] = SourceReport{Name: job.Name, Stats: stats, Duration: time.Since(start), Err: err}
			if err != nil {
				log.Error().Err(err).Str("source", job.Name).Msg("source failed")
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &Summary{Sources: reports}
	for i := range jobs {
		summary.Total.add(reports[i].Stats)
		if len(records[i]) == 0 {
			continue
		}
		if err := p.store.Append(ctx, records[i]...); err != nil {
			return nil, fmt.Errorf("store records from %s: %w", jobs[i].Name, err)
		}
	}
	return summary, nil
}

// parse drains one source through a private processor.
func (p *Pipeline) parse(ctx context.Context, job Job) ([]*model.LogRecord, Stats, error) {
	src, err := job.Open(ctx)
	if err != nil {
		return nil, Stats{}, err
	}
	defer src.Stop()

	log.Info().Str("source", src.Name()).Msg("parsing")
	sink := &sliceSink{}
	proc := NewProcessor(p.parser, sink, src.Name())
	for {
		select {
		case <-ctx.Done():
			return nil, proc.Stats(), ctx.Err()
		case env, ok := <-src.Lines():
			if !ok {
				return sink.records, proc.Stats(), src.Err()
			}
			proc.ProcessEnvelope(env)
		}
	}
}
