// Package rules holds the fixed table of critical cluster-event rules and the
// engine that evaluates it over a record store.
package rules

import "github.com/tinytelemetry/pacemaker-logparser/internal/model"

// Rule is one named predicate over a record.
type Rule struct {
	ID          string
	Name        string
	Description string
	match       func(v *view) bool
}

// Match reports whether the record satisfies the rule.
func (r Rule) Match(rec model.LogRecord) bool {
	v := newView(rec)
	return r.match(&v)
}

// view caches the lowercased fields a rule inspects.
type view struct {
	component      string // as stored, for exact comparisons
	componentLower string
	payloadLower   string
}

func newView(rec model.LogRecord) view {
	return view{
		component:      rec.Component,
		componentLower: asciiLower(rec.Component),
		payloadLower:   asciiLower(rec.Payload),
	}
}

// fencingAgents are resource-agent components whose errors are critical on
// their own.
var fencingAgents = map[string]struct{}{
	"stonith-ng":       {},
	"gcp:stonith":      {},
	"gcp:alias":        {},
	"gcp-vpc-move-vip": {},
	"fence_gce":        {},
}

var (
	r1Patterns = []like{
		contains("*", "FENCE"),
		contains("remote_op_done", "Operation"),
		contains("monitor", "Timer", "expired"),
	}
	r2Patterns = []like{
		contains("notice", "LogAction"),
		contains("(LogAction)"),
		contains("crit:"),
		contains("Forcing", "away"),
		contains("cannot", "run", "anywhere"),
		contains("attrd_peer_update", "INFINITY"),
		contains("CPU", "detected"),
	}
	r3Topic    = contains("TOTEM")
	r3Patterns = []like{
		contains("failed"),
		contains("membership"),
		contains("Retransmit"),
	}
	r4Topic    = contains("Result", "of", "operation")
	r4Excluded = []like{
		contains("ok"),
		contains("Cancelled"),
		contains("probe"),
	}
	r5Instance = prefix("SAPInstance")
	r5Patterns = []like{
		contains("ERROR"),
		contains("Failed"),
	}
	r6Component = prefix("SAPHana")
	r6Patterns  = []like{
		contains("ERROR:"),
		contains("WARNING:"),
		contains("ACT", "SFAIL"),
	}
	r7Patterns = []like{
		contains("cib-bootstrap-options-maintenance-mode", "value"),
		contains("cib_perform_op", "nodes-", "-maintenance"),
		contains("cib_perform_op", "nodes-", "-standby"),
		contains("cib_perform_op", "meta_attributes-"),
	}
	r8Patterns = []like{
		contains("cli-ban"),
		contains("cli-prefer"),
	}
)

// Rules is the fixed, ordered rule table.
var Rules = []Rule{
	{
		ID:          "R1",
		Name:        "fencing",
		Description: "Fencing actions and results, stonith timeouts",
		match: func(v *view) bool {
			return anyOf(v.payloadLower, r1Patterns...)
		},
	},
	{
		ID:          "R2",
		Name:        "crm-actions",
		Description: "Pacemaker resource actions, critical logs, forced moves, high CPU load",
		match: func(v *view) bool {
			return anyOf(v.payloadLower, r2Patterns...)
		},
	},
	{
		ID:          "R3",
		Name:        "corosync",
		Description: "Corosync errors and membership changes",
		match: func(v *view) bool {
			return r3Topic.match(v.payloadLower) && anyOf(v.payloadLower, r3Patterns...)
		},
	},
	{
		ID:          "R4",
		Name:        "failed-operations",
		Description: "Resource operations with a result other than ok",
		match: func(v *view) bool {
			return r4Topic.match(v.payloadLower) && !anyOf(v.payloadLower, r4Excluded...)
		},
	},
	{
		ID:          "R5",
		Name:        "agent-errors",
		Description: "SAPInstance, stonith and GCP agent errors",
		match: func(v *view) bool {
			_, agent := fencingAgents[v.component]
			if !agent && !r5Instance.match(v.componentLower) {
				return false
			}
			return anyOf(v.payloadLower, r5Patterns...)
		},
	},
	{
		ID:          "R6",
		Name:        "saphana",
		Description: "SAPHana errors, warnings and SFAIL transitions",
		match: func(v *view) bool {
			return r6Component.match(v.componentLower) && anyOf(v.payloadLower, r6Patterns...)
		},
	},
	{
		ID:          "R7",
		Name:        "maintenance",
		Description: "Cluster, node and resource maintenance, standby or managed mode changes",
		match: func(v *view) bool {
			return anyOf(v.payloadLower, r7Patterns...)
		},
	},
	{
		ID:          "R8",
		Name:        "placement",
		Description: "cli-ban and cli-prefer location constraints from manual moves",
		match: func(v *view) bool {
			return anyOf(v.payloadLower, r8Patterns...)
		},
	},
}

// Lookup returns the rule with the given ID.
func Lookup(id string) (Rule, bool) {
	for _, r := range Rules {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}
