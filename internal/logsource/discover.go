package logsource

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tinytelemetry/pacemaker-logparser/internal/archive"
	"github.com/tinytelemetry/pacemaker-logparser/internal/model"
)

// ErrNoMembers is returned when an hb_report names no cluster nodes.
var ErrNoMembers = errors.New("no cluster nodes found")

// Member is one archive member selected for ingestion.
type Member struct {
	Name string
	Tag  model.SourceTag
	Node string // hb_report node directory, empty for sosreports
}

// candidate is an ordered list of alternates; the first present member wins.
type candidate struct {
	tag   model.SourceTag
	names []string
}

var hbReportCandidates = []candidate{
	{model.TagPacemaker, []string{"pacemaker.log", "corosync.log"}},
	{model.TagSystem, []string{"messages", "journal.log"}},
}

// sosreport log locations before and after the pacemaker 2 log move.
var (
	sosLegacyCandidates = []candidate{
		{model.TagSystem, []string{"var/log/messages"}},
		{model.TagPacemaker, []string{"var/log/cluster/corosync.log"}},
	}
	sosCurrentCandidates = []candidate{
		{model.TagSystem, []string{"var/log/messages"}},
		{model.TagPacemaker, []string{"var/log/pacemaker/pacemaker.log"}},
	}
)

// sosCurrentMajor is the first OS release that logs to var/log/pacemaker.
const sosCurrentMajor = 8

// HBReportMembers lists the log members of an hb_report, per node in the
// order the nodes are named. Nodes come from members.txt, or from the
// ring0_addr entries of corosync.conf when members.txt is absent or empty.
func HBReportMembers(a *archive.Archive) ([]Member, error) {
	nodes, err := hbReportNodes(a)
	if err != nil {
		return nil, err
	}

	var out []Member
	for _, node := range nodes {
		log.Info().Str("node", node).Str("archive", a.Path()).Msg("found cluster node")
		for _, c := range hbReportCandidates {
			names := make([]string, len(c.names))
			for i, n := range c.names {
				names[i] = a.Join(node, n)
			}
			if m, ok := pick(a, c.tag, names); ok {
				m.Node = node
				out = append(out, m)
				continue
			}
			log.Info().Str("node", node).Strs("candidates", c.names).Msg("no log found for node")
		}
	}
	return out, nil
}

func hbReportNodes(a *archive.Archive) ([]string, error) {
	data, err := a.ReadMember(a.Join("members.txt"))
	switch {
	case err == nil:
		firstLine, _, _ := strings.Cut(string(data), "\n")
		if nodes := strings.Fields(firstLine); len(nodes) > 0 {
			return nodes, nil
		}
	case errors.Is(err, archive.ErrMemberNotFound):
		log.Info().Str("archive", a.Path()).Msg("members.txt is missing")
	default:
		return nil, err
	}

	data, err = a.ReadMember(a.Join("corosync.conf"))
	if errors.Is(err, archive.ErrMemberNotFound) {
		return nil, fmt.Errorf("%s: corosync.conf is missing: %w", a.Path(), ErrNoMembers)
	}
	if err != nil {
		return nil, err
	}
	nodes := ring0Addrs(data)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%s: %w", a.Path(), ErrNoMembers)
	}
	return nodes, nil
}

// ring0Addrs extracts the values of "ring0_addr: <node>" lines.
func ring0Addrs(conf []byte) []string {
	var nodes []string
	sc := bufio.NewScanner(bytes.NewReader(conf))
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(line, "ring0_addr") {
			continue
		}
		value := line
		if i := strings.LastIndex(line, ": "); i >= 0 {
			value = line[i+2:]
		}
		if value = strings.TrimSpace(value); value != "" {
			nodes = append(nodes, value)
		}
	}
	return nodes
}

// SOSReportMembers lists the log members of a sosreport. The layout depends
// on the VERSION_ID in etc/os-release; a missing or unreadable version is
// treated as a pre-8 release.
func SOSReportMembers(a *archive.Archive) ([]Member, error) {
	version, err := osVersion(a)
	if err != nil {
		return nil, err
	}

	candidates := sosLegacyCandidates
	if version >= sosCurrentMajor {
		candidates = sosCurrentCandidates
	}

	var out []Member
	for _, c := range candidates {
		names := make([]string, len(c.names))
		for i, n := range c.names {
			names[i] = a.Join(n)
		}
		if m, ok := pick(a, c.tag, names); ok {
			out = append(out, m)
			continue
		}
		log.Info().Str("archive", a.Path()).Strs("candidates", c.names).Msg("log not found in sosreport")
	}
	return out, nil
}

func osVersion(a *archive.Archive) (float64, error) {
	data, err := a.ReadMember(a.Join("etc", "os-release"))
	if errors.Is(err, archive.ErrMemberNotFound) {
		log.Info().Str("archive", a.Path()).Msg("etc/os-release is missing")
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parseVersionID(data), nil
}

// parseVersionID returns the numeric VERSION_ID of an os-release file, or 0.
func parseVersionID(osRelease []byte) float64 {
	sc := bufio.NewScanner(bytes.NewReader(osRelease))
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok || key != "VERSION_ID" {
			continue
		}
		value = strings.Trim(value, `"'`)
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			// "8.4.1" style ids: keep major.minor.
			if major, rest, found := strings.Cut(value, "."); found {
				minor, _, _ := strings.Cut(rest, ".")
				v, err = strconv.ParseFloat(major+"."+minor, 64)
			}
		}
		if err != nil {
			log.Warn().Str("version_id", value).Msg("unparseable VERSION_ID")
			return 0
		}
		return v
	}
	return 0
}

func pick(a *archive.Archive, tag model.SourceTag, names []string) (Member, bool) {
	for _, name := range names {
		if a.Has(name) {
			return Member{Name: name, Tag: tag}, true
		}
	}
	return Member{}, false
}
