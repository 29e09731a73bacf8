// Package report writes classified events to the output file.
package report

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tinytelemetry/pacemaker-logparser/internal/logparse"
	"github.com/tinytelemetry/pacemaker-logparser/internal/model"
	"github.com/tinytelemetry/pacemaker-logparser/internal/rules"
)

const (
	defaultFileMode = 0644
	defaultDirMode  = 0755

	// DefaultOutput is the report file used when none is configured.
	DefaultOutput = "logparser.out"
)

// Format selects the report encoding.
type Format string

const (
	FormatText  Format = "text"
	FormatJSONL Format = "jsonl"
)

// ErrUnknownFormat is returned for a format other than text or jsonl.
var ErrUnknownFormat = errors.New("unknown report format")

// ParseFormat validates a configured format name. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSONL:
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Meta describes the run a report belongs to.
type Meta struct {
	RunID       string
	GeneratedAt time.Time
	Window      model.Window
}

// NewMeta starts the metadata of a new run.
func NewMeta(w model.Window) Meta {
	return Meta{RunID: uuid.NewString(), GeneratedAt: time.Now(), Window: w}
}

// Write encodes res to w in the given format.
func Write(w io.Writer, format Format, meta Meta, res *rules.Result) error {
	bw := bufio.NewWriter(w)
	var err error
	switch format {
	case FormatText, "":
		err = writeText(bw, res)
	case FormatJSONL:
		err = writeJSONL(bw, meta, res)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return err
	}
	return bw.Flush()
}

// WriteFile writes the report to path. The file is written next to its
// final location and renamed into place, so a failed run never leaves a
// truncated report behind.
func WriteFile(path string, format Format, meta Meta, res *rules.Result) error {
	if strings.TrimSpace(path) == "" {
		path = DefaultOutput
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, defaultDirMode); err != nil {
		return fmt.Errorf("report: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("report: create: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := Write(tmp, format, meta, res); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("report: write: %w", err)
	}
	if err := tmp.Chmod(defaultFileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("report: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("report: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("report: rename: %w", err)
	}
	return nil
}

// writeText emits "timestamp node component payload", one event per line.
func writeText(w *bufio.Writer, res *rules.Result) error {
	for _, ev := range res.Events {
		f := ev.Fields()
		if _, err := w.WriteString(strings.Join(f[:], " ")); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return nil
}

type header struct {
	Type        string         `json:"type"`
	RunID       string         `json:"run_id"`
	GeneratedAt string         `json:"generated_at"`
	Begin       string         `json:"begin,omitempty"`
	End         string         `json:"end,omitempty"`
	Scanned     int            `json:"scanned"`
	Events      int            `json:"events"`
	RuleCounts  map[string]int `json:"rule_counts"`
}

type eventLine struct {
	Type      string   `json:"type"`
	Timestamp string   `json:"ts"`
	Node      string   `json:"node"`
	Component string   `json:"component"`
	Payload   string   `json:"payload"`
	Severity  string   `json:"severity"`
	Rules     []string `json:"rules"`
	Source    string   `json:"source,omitempty"`
}

// writeJSONL emits one header object followed by one object per event.
func writeJSONL(w *bufio.Writer, meta Meta, res *rules.Result) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	h := header{
		Type:        "run",
		RunID:       meta.RunID,
		GeneratedAt: meta.GeneratedAt.UTC().Format(time.RFC3339),
		Scanned:     res.Scanned,
		Events:      len(res.Events),
		RuleCounts:  make(map[string]int, len(res.Counts)),
	}
	if !meta.Window.Begin.IsZero() {
		h.Begin = meta.Window.Begin.Format(model.TimestampLayout)
	}
	if !meta.Window.End.IsZero() {
		h.End = meta.Window.End.Format(model.TimestampLayout)
	}
	for _, c := range res.Counts {
		h.RuleCounts[c.Rule.ID] = c.Count
	}
	if err := enc.Encode(h); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, ev := range res.Events {
		line := eventLine{
			Type:      "event",
			Timestamp: ev.Timestamp.Format(model.TimestampLayout),
			Node:      ev.Node,
			Component: ev.Component,
			Payload:   ev.Payload,
			Severity:  logparse.ExtractSeverityFromPayload(ev.Payload),
			Rules:     ev.Rules,
			Source:    ev.Source,
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
	}
	return nil
}
