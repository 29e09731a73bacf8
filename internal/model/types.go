package model

import "time"

// LogRecord is one normalized cluster log line.
// It is the canonical type for storage, classification, reporting and the HTTP API.
type LogRecord struct {
	Timestamp time.Time // second resolution, zone-naive (stored as UTC)
	Node      string
	Component string
	Payload   string
	Seq       uint64 // store insertion sequence, assigned on append
	Source    string // file or archive member the line came from
}

// Fields returns the four reported fields with the timestamp rendered in
// TimestampLayout.
func (r LogRecord) Fields() [4]string {
	return [4]string{r.Timestamp.Format(TimestampLayout), r.Node, r.Component, r.Payload}
}

// TimestampLayout is the canonical rendering of a record timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// Before reports whether r sorts before o in report order: timestamp first,
// then insertion sequence.
func (r LogRecord) Before(o LogRecord) bool {
	if !r.Timestamp.Equal(o.Timestamp) {
		return r.Timestamp.Before(o.Timestamp)
	}
	return r.Seq < o.Seq
}

// SourceTag selects the keyword pattern applied to a line.
type SourceTag string

const (
	TagPacemaker SourceTag = "pacemaker"
	TagSystem    SourceTag = "system"
)

// Valid reports whether t is a known tag.
func (t SourceTag) Valid() bool {
	return t == TagPacemaker || t == TagSystem
}

// Window is an optional open interval (Begin, End). A zero bound is unset.
type Window struct {
	Begin time.Time
	End   time.Time
}

// Contains reports whether ts lies strictly inside the window.
func (w Window) Contains(ts time.Time) bool {
	if !w.Begin.IsZero() && !ts.After(w.Begin) {
		return false
	}
	if !w.End.IsZero() && !ts.Before(w.End) {
		return false
	}
	return true
}

// IsZero reports whether neither bound is set.
func (w Window) IsZero() bool {
	return w.Begin.IsZero() && w.End.IsZero()
}

// DimensionCount is a value with its number of occurrences.
type DimensionCount struct {
	Value string
	Count int64
}
