package logparse

import (
	"regexp"
	"strings"

	"github.com/tinytelemetry/pacemaker-logparser/internal/model"
)

// PacemakerCues are the substrings that make a pacemaker/corosync log line a
// candidate record.
var PacemakerCues = []string{
	"LogAction",
	"LogNodeActions",
	"stonith-ng",
	"pacemaker-fenced",
	"crit:",
	"check_migration_threshold",
	"corosync",
	"Result of",
	"reboot",
	"cannot run anywhere",
	"attrd_peer_update",
	"High CPU load detected",
	"cli-ban",
	"cli-prefer",
	"cib-bootstrap-options-maintenance-mode",
	"-is-managed",
	"-maintenance",
	"-standby",
}

// SystemCues are the substrings that make a system log (messages,
// journal.log) line a candidate record.
var SystemCues = []string{
	"SAPHana(",
	"SAPInstance(",
	"gcp-vpc-move-vip:",
	"gcp:alias:",
	"gcp:stonith",
	"fence_gce:",
	"corosync[",
	"Result of",
	// Kernel and systemd forms only. A bare "reboot" would admit pacemaker
	// fencing lines, which belong to the pacemaker logs.
	"reboot:",
	"rebooting",
}

var keywordPatterns = map[model.SourceTag]*regexp.Regexp{
	model.TagPacemaker: compileCues(PacemakerCues),
	model.TagSystem:    compileCues(SystemCues),
}

func compileCues(cues []string) *regexp.Regexp {
	quoted := make([]string, len(cues))
	for i, c := range cues {
		quoted[i] = regexp.QuoteMeta(c)
	}
	return regexp.MustCompile(strings.Join(quoted, "|"))
}

// MatchesKeywords reports whether line contains any cue for tag.
// Unknown tags match nothing.
func MatchesKeywords(line string, tag model.SourceTag) bool {
	re, ok := keywordPatterns[tag]
	if !ok {
		return false
	}
	return re.MatchString(line)
}
