package rules

import (
	"context"
	"fmt"

	"github.com/tinytelemetry/pacemaker-logparser/internal/model"
)

// Event is a record that matched at least one rule.
type Event struct {
	model.LogRecord
	Rules []string // IDs of every matching rule, in table order
}

// RuleCount is how many records a rule matched. A record matching several
// rules is counted once per rule.
type RuleCount struct {
	Rule  Rule
	Count int
}

// Result is the outcome of one classification query.
type Result struct {
	Events  []Event
	Counts  []RuleCount
	Scanned int
}

// Engine evaluates a rule table over a record store.
type Engine struct {
	rules []Rule
}

// NewEngine creates an engine over the fixed rule table.
func NewEngine() *Engine {
	return &Engine{rules: Rules}
}

// Classify returns the IDs of every rule the record satisfies.
func (e *Engine) Classify(rec model.LogRecord) []string {
	v := newView(rec)
	var ids []string
	for _, r := range e.rules {
		if r.match(&v) {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// Query returns the records inside w that match any rule, each once, in
// (Timestamp, Seq) order. Store failures are returned wrapped; callers must
// not report partial results.
func (e *Engine) Query(ctx context.Context, store model.RecordReader, w model.Window) (*Result, error) {
	records, err := store.QueryRange(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	counts := make([]int, len(e.rules))
	res := &Result{Scanned: len(records)}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v := newView(rec)
		var ids []string
		for i, r := range e.rules {
			if r.match(&v) {
				ids = append(ids, r.ID)
				counts[i]++
			}
		}
		if len(ids) > 0 {
			res.Events = append(res.Events, Event{LogRecord: rec, Rules: ids})
		}
	}

	res.Counts = make([]RuleCount, len(e.rules))
	for i, r := range e.rules {
		res.Counts[i] = RuleCount{Rule: r, Count: counts[i]}
	}
	return res, nil
}

// Records returns the plain records of the matched events.
func (r *Result) Records() []model.LogRecord {
	out := make([]model.LogRecord, len(r.Events))
	for i, ev := range r.Events {
		out[i] = ev.LogRecord
	}
	return out
}
