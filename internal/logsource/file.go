package logsource

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/tinytelemetry/pacemaker-logparser/internal/archive"
	"github.com/tinytelemetry/pacemaker-logparser/internal/model"
)

// StdinPath selects standard input in place of a file path.
const StdinPath = "-"

// NewFileSource opens path and streams its lines. StdinPath reads stdin.
func NewFileSource(ctx context.Context, path string, tag model.SourceTag, conf ...Config) (*ReaderSource, error) {
	if path == StdinPath {
		return NewReaderSource(ctx, "stdin", tag, io.NopCloser(os.Stdin), conf...), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return NewReaderSource(ctx, path, tag, f, conf...), nil
}

// NewMemberSource streams the lines of one archive member.
func NewMemberSource(ctx context.Context, a *archive.Archive, m Member, conf ...Config) (*ReaderSource, error) {
	rc, err := a.OpenMember(m.Name)
	if err != nil {
		return nil, err
	}
	return NewReaderSource(ctx, a.Path()+":"+m.Name, m.Tag, rc, conf...), nil
}
