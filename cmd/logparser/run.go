package main

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"github.com/tinytelemetry/pacemaker-logparser/internal/duckdb"
	"github.com/tinytelemetry/pacemaker-logparser/internal/httpserver"
	"github.com/tinytelemetry/pacemaker-logparser/internal/ingest"
	"github.com/tinytelemetry/pacemaker-logparser/internal/logparse"
	"github.com/tinytelemetry/pacemaker-logparser/internal/memstore"
	"github.com/tinytelemetry/pacemaker-logparser/internal/model"
	"github.com/tinytelemetry/pacemaker-logparser/internal/report"
	"github.com/tinytelemetry/pacemaker-logparser/internal/rules"
	"github.com/tinytelemetry/pacemaker-logparser/internal/timestamp"
)

// runResult is what a finished run reports back to main and tests.
type runResult struct {
	Meta       report.Meta
	Ingest     *ingest.Summary
	Events     *rules.Result
	Output     string
	SourceErrs error
}

// openStore creates the configured record store. The returned writer is
// what ingestion appends to; flush must succeed before the store is queried.
func openStore(cfg appConfig) (store model.RecordStore, writer model.RecordWriter, flush func() error, err error) {
	switch cfg.Store {
	case storeDuckDB:
		s, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize DuckDB: %w", err)
		}
		buf := duckdb.NewInsertBuffer(s, duckdb.InsertBufferConfig{
			BatchSize:     cfg.InsertBatchSize,
			FlushInterval: cfg.InsertFlushInterval,
		})
		return s, buf, buf.Stop, nil
	default:
		s := memstore.New()
		return s, s, func() error { return nil }, nil
	}
}

// analyze ingests the configured sources, classifies them and writes the
// report. The store is returned open so the caller can serve it.
func analyze(ctx context.Context, cfg appConfig) (*runResult, model.RecordStore, error) {
	log.Info().Msg("Starting the log parser.")

	store, writer, flush, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	fail := func(err error) (*runResult, model.RecordStore, error) {
		_ = flush()
		_ = store.Close()
		return nil, nil, err
	}

	parser := logparse.NewParser(timestamp.NewNormalizer(timestamp.WithYear(cfg.Year)))

	jobs, planErr := ingest.Plan(cfg.inputs())
	summary, err := ingest.NewPipeline(parser, writer, cfg.Workers).Run(ctx, jobs)
	if err != nil {
		return fail(fmt.Errorf("ingest: %w", err))
	}
	if err := flush(); err != nil {
		return fail(fmt.Errorf("flush records: %w", err))
	}

	res, err := rules.NewEngine().Query(ctx, store, cfg.window)
	if err != nil {
		return fail(err)
	}

	meta := report.NewMeta(cfg.window)
	if err := report.WriteFile(cfg.Output, cfg.format, meta, res); err != nil {
		return fail(err)
	}
	log.Info().Str("output", cfg.Output).Int("events", len(res.Events)).Msg("Please check output in file.")

	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		logDimensions(ctx, store)
	}

	return &runResult{
		Meta:       meta,
		Ingest:     summary,
		Events:     res,
		Output:     cfg.Output,
		SourceErrs: multierr.Append(planErr, summary.Err()),
	}, store, nil
}

// run is the whole command: analyze, summarise, optionally open the report
// and serve the API until ctx is done.
func run(ctx context.Context, cfg appConfig, stderr io.Writer) (*runResult, error) {
	res, store, err := analyze(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	printSummary(stderr, cfg, res)

	if cfg.Open {
		if err := openViewer(cfg.Output); err != nil {
			log.Error().Err(err).Str("output", cfg.Output).Msg("cannot open output file")
		}
	}

	if cfg.Serve {
		apiServer := httpserver.NewServer(cfg.APIAddr, store, res.Meta.RunID, cfg.window)
		if err := apiServer.Start(); err != nil {
			return res, fmt.Errorf("failed to start API server: %w", err)
		}
		log.Info().Str("addr", apiServer.Addr()).Msg("serving results, press Ctrl+C to stop")
		<-ctx.Done()
		if err := apiServer.Stop(); err != nil {
			log.Error().Err(err).Msg("API server shutdown")
		}
	}
	return res, nil
}

func logDimensions(ctx context.Context, store model.RecordReader) {
	components, err := store.DistinctComponents(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Error generating debug info")
		return
	}
	log.Debug().Msg("All components parsed:")
	for _, c := range components {
		log.Debug().Msgf("  %s", c)
	}

	nodes, err := store.DistinctNodes(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Error generating debug info")
		return
	}
	log.Debug().Msg("All nodes parsed:")
	for _, n := range nodes {
		log.Debug().Msgf("  %s", n)
	}
}

// openViewer hands path to the platform's default application.
func openViewer(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	return cmd.Start()
}
