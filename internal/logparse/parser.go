package logparse

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tinytelemetry/pacemaker-logparser/internal/model"
	"github.com/tinytelemetry/pacemaker-logparser/internal/timestamp"
)

// Reasons a line produces no record.
var (
	ErrUnknownTag  = errors.New("unknown source tag")
	ErrNoKeyword   = errors.New("no keyword cue")
	ErrNoTimestamp = errors.New("no timestamp")
	ErrMalformed   = errors.New("too few fields")
	ErrNoLayout    = errors.New("no layout for timestamp grammar")
)

// pidToken matches PID-style decoration such as "[1234]".
var pidToken = regexp.MustCompile(`\[\d*\]`)

// Parser turns raw cluster log lines into LogRecords.
type Parser struct {
	normalizer *timestamp.Normalizer
}

// NewParser creates a Parser. A nil normalizer uses the default clock.
func NewParser(n *timestamp.Normalizer) *Parser {
	if n == nil {
		n = timestamp.NewNormalizer()
	}
	return &Parser{normalizer: n}
}

// ParseLine converts one line into a record. A nil record is always paired
// with an error naming why the line was dropped; no partial record is built.
// The returned record has no sequence number yet.
func (p *Parser) ParseLine(line string, tag model.SourceTag) (*model.LogRecord, error) {
	if !tag.Valid() {
		return nil, ErrUnknownTag
	}
	if !MatchesKeywords(line, tag) {
		return nil, ErrNoKeyword
	}

	line = stripPID(line)
	ts := p.normalizer.Normalize(line)
	if !ts.Found {
		return nil, ErrNoTimestamp
	}
	layout, ok := Layouts[ts.Kind]
	if !ok {
		return nil, ErrNoLayout
	}

	if !utf8.ValidString(line) {
		line = strings.ToValidUTF8(line, "�")
	}
	line = strings.TrimLeft(strings.TrimRight(line, "\r\n"), " \t")
	node, component, payload, ok := layout.split(line)
	if !ok {
		return nil, ErrMalformed
	}

	return &model.LogRecord{
		Timestamp: ts.Timestamp,
		Node:      node,
		Component: strings.TrimRight(component, ":/"),
		Payload:   payload,
	}, nil
}

func stripPID(line string) string {
	loc := pidToken.FindStringIndex(line)
	if loc == nil {
		return line
	}
	return line[:loc[0]] + line[loc[1]:]
}
