package logsource

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tinytelemetry/pacemaker-logparser/internal/model"
)

const (
	// DefaultBufferSize is the default channel buffer size for lines.
	DefaultBufferSize = 4096

	// DefaultMaxLineSize is the default maximum size (in bytes) of a single line.
	DefaultMaxLineSize = 1024 * 1024 // 1MB
)

// Config holds tunable parameters for reader-backed sources.
type Config struct {
	BufferSize  int
	MaxLineSize int
}

// ReaderSource streams the lines of an io.ReadCloser, closing it when done.
type ReaderSource struct {
	name   string
	tag    model.SourceTag
	ch     chan model.IngestEnvelope
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

var _ LogSource = (*ReaderSource)(nil)

// NewReaderSource creates a ReaderSource that reads r in a background goroutine.
// Every line is tagged with tag.
func NewReaderSource(ctx context.Context, name string, tag model.SourceTag, r io.ReadCloser, conf ...Config) *ReaderSource {
	bufferSize := DefaultBufferSize
	maxLineSize := DefaultMaxLineSize
	if len(conf) > 0 {
		if conf[0].BufferSize > 0 {
			bufferSize = conf[0].BufferSize
		}
		if conf[0].MaxLineSize > 0 {
			maxLineSize = conf[0].MaxLineSize
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &ReaderSource{
		name:   name,
		tag:    tag,
		ch:     make(chan model.IngestEnvelope, bufferSize),
		cancel: cancel,
	}
	go s.read(ctx, r, maxLineSize)
	return s
}

func (s *ReaderSource) read(ctx context.Context, r io.ReadCloser, maxLineSize int) {
	defer close(s.ch)

	br := bufio.NewReaderSize(r, 64*1024)

	// Use a single goroutine for blocking reads with a done channel to
	// detect context cancellation without spawning a goroutine per line.
	results := make(chan model.IngestEnvelope)
	go func() {
		defer close(results)
		defer func() { _ = r.Close() }()
		for {
			line, oversized, err := readLine(br, maxLineSize)
			var env model.IngestEnvelope
			switch {
			case oversized:
				log.Warn().Str("source", s.name).Int("max_line_size", maxLineSize).Msg("line exceeded max size, skipped")
				env = model.IngestEnvelope{Source: s.name, Tag: s.tag, Oversized: true}
			case len(line) > 0:
				env = model.IngestEnvelope{Source: s.name, Tag: s.tag, Line: string(line)}
			}
			if env.Oversized || env.Line != "" {
				select {
				case results <- env:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					s.setErr(fmt.Errorf("read %s: %w", s.name, err))
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-results:
			if !ok {
				return
			}
			select {
			case s.ch <- env:
			case <-ctx.Done():
				return
			}
		}
	}
}

// readLine returns the next line without its "\n" or "\r\n" terminator.
// A line longer than maxLineSize is consumed up to its terminator and
// reported as oversized with no content. err is io.EOF after the last line.
func readLine(br *bufio.Reader, maxLineSize int) (line []byte, oversized bool, err error) {
	for {
		var chunk []byte
		chunk, err = br.ReadSlice('\n')
		if !oversized {
			line = append(line, chunk...)
			if len(line) > maxLineSize+2 {
				line, oversized = nil, true
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		line = bytes.TrimSuffix(line, []byte("\n"))
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) > maxLineSize {
			line, oversized = nil, true
		}
		return line, oversized, err
	}
}

func (s *ReaderSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Err returns the read error that ended the source, if any.
func (s *ReaderSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *ReaderSource) Lines() <-chan model.IngestEnvelope { return s.ch }
func (s *ReaderSource) Stop()                              { s.cancel() }
func (s *ReaderSource) Name() string                       { return s.name }
