package logsource

import "github.com/tinytelemetry/pacemaker-logparser/internal/model"

// LogSource is a unified interface for all log inputs (file, stdin, archive member).
type LogSource interface {
	Lines() <-chan model.IngestEnvelope // read-only channel of log lines
	Stop()                              // graceful shutdown
	Name() string                       // file path, "stdin" or "archive:member"
	Err() error                         // read error, valid once Lines is closed
}
