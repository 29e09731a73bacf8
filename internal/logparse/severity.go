package logparse

import (
	"regexp"
	"strings"
)

// SeverityRegex matches the level prefix pacemaker and corosync write into
// their payloads ("notice:", "crit:", "[TOTEM ] ..." lines carry none).
var SeverityRegex = regexp.MustCompile(`(?i)\b(TRACE|DEBUG|INFO|NOTICE|WARNING|WARN|ERROR|ERR|CRIT|CRITICAL)\s*:`)

// NormalizeSeverity converts level spellings to consistent all caps short forms.
func NormalizeSeverity(severity string) string {
	normalized := strings.ToUpper(strings.TrimSpace(severity))

	switch normalized {
	case "TRACE":
		return "TRACE"
	case "DEBUG":
		return "DEBUG"
	case "INFO", "NOTICE":
		return "INFO"
	case "WARN", "WARNING":
		return "WARN"
	case "ERROR", "ERR":
		return "ERROR"
	case "CRIT", "CRITICAL":
		return "CRIT"
	default:
		return "INFO"
	}
}

// ExtractSeverityFromPayload returns the normalized level of a payload, INFO
// when it carries no recognised prefix.
func ExtractSeverityFromPayload(payload string) string {
	matches := SeverityRegex.FindStringSubmatch(payload)
	if len(matches) > 1 {
		return NormalizeSeverity(matches[1])
	}
	return "INFO"
}
