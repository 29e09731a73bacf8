package timestamp

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind identifies which timestamp grammar matched a line.
type Kind int

const (
	KindNone   Kind = iota
	KindSyslog      // "Nov 22 00:00:00", year-less
	KindISO         // "2020-11-22T00:00:00"
)

func (k Kind) String() string {
	switch k {
	case KindSyslog:
		return "syslog"
	case KindISO:
		return "iso8601"
	default:
		return "none"
	}
}

// ErrBadBound is returned by ParseBound for input that is not a valid
// YYYY-MM-DD or YYYY-MM-DD-HH:MM timestamp.
var ErrBadBound = errors.New("timestamp format needs to be YYYY-MM-DD-HH:MM or YYYY-MM-DD")

// Result holds the outcome of searching a line for a timestamp.
type Result struct {
	Timestamp time.Time
	Kind      Kind
	Found     bool
}

type grammar struct {
	kind    Kind
	pattern *regexp.Regexp
	build   func(n *Normalizer, m []string) (time.Time, bool)
}

// grammars are tried in order; the first whose pattern occurs in the line
// decides the outcome, valid or not.
var grammars = []grammar{
	{
		kind:    KindSyslog,
		pattern: regexp.MustCompile(`(\w{3})\s+(\d+)\s(\d\d):(\d\d):(\d\d)`),
		build:   buildSyslog,
	},
	{
		kind:    KindISO,
		pattern: regexp.MustCompile(`(\d{4})-(\d\d)-(\d\d)T(\d\d):(\d\d):(\d\d)`),
		build:   buildISO,
	},
}

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// Normalizer recognises the syslog and ISO-8601 timestamp grammars.
// Syslog timestamps carry no year; the current calendar year at parse time is
// assumed unless a fixed year is configured.
type Normalizer struct {
	now  func() time.Time
	year int
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock sets the clock used to pick the year of syslog timestamps.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// WithYear pins the year of syslog timestamps. Zero keeps the clock year.
func WithYear(year int) Option {
	return func(n *Normalizer) { n.year = year }
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize searches line for a timestamp. A grammar match with out-of-range
// values yields Found == false.
func (n *Normalizer) Normalize(line string) Result {
	for _, g := range grammars {
		m := g.pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ts, ok := g.build(n, m)
		if !ok {
			return Result{}
		}
		return Result{Timestamp: ts, Kind: g.kind, Found: true}
	}
	return Result{}
}

func (n *Normalizer) syslogYear() int {
	if n.year > 0 {
		return n.year
	}
	return n.now().Year()
}

func buildSyslog(n *Normalizer, m []string) (time.Time, bool) {
	month, ok := months[strings.ToLower(m[1])]
	if !ok {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, false
	}
	return assemble(n.syslogYear(), month, day, m[3], m[4], m[5])
}

func buildISO(_ *Normalizer, m []string) (time.Time, bool) {
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	month, err := strconv.Atoi(m[2])
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(m[3])
	if err != nil {
		return time.Time{}, false
	}
	return assemble(year, time.Month(month), day, m[4], m[5], m[6])
}

// assemble builds a UTC time and rejects any component time.Date would
// normalise into a neighbouring unit.
func assemble(year int, month time.Month, day int, hh, mm, ss string) (time.Time, bool) {
	hour, err1 := strconv.Atoi(hh)
	min, err2 := strconv.Atoi(mm)
	sec, err3 := strconv.Atoi(ss)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if year < 1 || hour > 23 || min > 59 || sec > 59 {
		return time.Time{}, false
	}
	ts := time.Date(year, month, day, hour, min, sec, 0, time.UTC)
	if ts.Month() != month || ts.Day() != day {
		return time.Time{}, false
	}
	return ts, true
}

var boundLayouts = []struct {
	pattern *regexp.Regexp
	layout  string
}{
	{regexp.MustCompile(`^\d{4}-\d\d-\d\d-\d\d:\d\d$`), "2006-01-02-15:04"},
	{regexp.MustCompile(`^\d{4}-\d\d-\d\d$`), "2006-01-02"},
}

// ParseBound parses a time-window bound given as YYYY-MM-DD or
// YYYY-MM-DD-HH:MM. The result is zone-naive (UTC).
func ParseBound(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, b := range boundLayouts {
		if !b.pattern.MatchString(s) {
			continue
		}
		ts, err := time.ParseInLocation(b.layout, s, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("timestamp %s formatting failed: %w", s, ErrBadBound)
		}
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("%q: %w", s, ErrBadBound)
}
