package logparse

import (
	"regexp"

	"github.com/tinytelemetry/pacemaker-logparser/internal/timestamp"
)

// Layout describes how a line is cut into fields once its timestamp grammar
// is known. Splits is the number of leading whitespace runs that separate
// fields; the remainder after the last split is one field.
type Layout struct {
	Kind           timestamp.Kind
	Splits         int
	NodeField      int
	ComponentField int
	PayloadField   int
}

// Layouts maps each timestamp grammar to its field layout. Syslog lines
// spend three fields on "Mon DD HH:MM:SS"; ISO lines spend one.
var Layouts = map[timestamp.Kind]Layout{
	timestamp.KindSyslog: {Kind: timestamp.KindSyslog, Splits: 5, NodeField: 3, ComponentField: 4, PayloadField: 5},
	timestamp.KindISO:    {Kind: timestamp.KindISO, Splits: 3, NodeField: 1, ComponentField: 2, PayloadField: 3},
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// split cuts line into at most Splits+1 fields. ok is false when the line
// has fewer fields than the layout needs.
func (l Layout) split(line string) (node, component, payload string, ok bool) {
	parts := whitespaceRun.Split(line, l.Splits+1)
	if len(parts) <= l.Splits {
		return "", "", "", false
	}
	return parts[l.NodeField], parts[l.ComponentField], parts[l.PayloadField], true
}
