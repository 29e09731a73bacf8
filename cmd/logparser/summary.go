package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/multierr"
)

func printSummary(w io.Writer, cfg appConfig, res *runResult) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	warn := red.Render("●")
	dot := dim.Render("●")

	var lines []string
	lines = append(lines, "")
	lines = append(lines, bold.Render("    pacemaker-logparser")+" "+dim.Render("v"+version))
	lines = append(lines, "    "+dim.Render("run "+res.Meta.RunID))
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	// Sources
	lines = append(lines, bold.Render("    Sources"))
	lines = append(lines, "")
	for _, src := range res.Ingest.Sources {
		mark := check
		detail := fmt.Sprintf("%d records / %d lines", src.Stats.Records, src.Stats.Lines)
		if src.Err != nil {
			mark = warn
			detail = red.Render(src.Err.Error())
		}
		lines = append(lines, fmt.Sprintf("    %s  %-36s %s", mark, shortenPath(src.Name), detail))
	}
	// Source errors not tied to a job come from archives that could not be planned.
	if skipped := len(multierr.Errors(res.SourceErrs)) - failedSources(res); skipped > 0 {
		lines = append(lines, fmt.Sprintf("    %s  %s", warn, yellow.Render(fmt.Sprintf("%d archive(s) skipped", skipped))))
	}
	lines = append(lines, "")

	// Window
	lines = append(lines, bold.Render("    Window"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  Begin          %s", dot, boundOrOpen(cfg.Begin, cyan, dim)))
	lines = append(lines, fmt.Sprintf("    %s  End            %s", dot, boundOrOpen(cfg.End, cyan, dim)))
	lines = append(lines, "")

	// Rules
	lines = append(lines, bold.Render("    Critical events"))
	lines = append(lines, "")
	for _, rc := range res.Events.Counts {
		mark := dot
		count := dim.Render("0")
		if rc.Count > 0 {
			mark = check
			count = yellow.Render(fmt.Sprintf("%d", rc.Count))
		}
		lines = append(lines, fmt.Sprintf("    %s  %-3s %-18s %s", mark, rc.Rule.ID, rc.Rule.Name, count))
	}
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %d of %d records reported in %s",
		len(res.Events.Events), res.Events.Scanned, cyan.Render(shortenPath(res.Output))))
	lines = append(lines, "")

	fmt.Fprintln(w, strings.Join(lines, "\n"))
}

func failedSources(res *runResult) int {
	n := 0
	for _, src := range res.Ingest.Sources {
		if src.Err != nil {
			n++
		}
	}
	return n
}

func boundOrOpen(b string, set, unset lipgloss.Style) string {
	if b == "" {
		return unset.Render("open")
	}
	return set.Render(b)
}

// shortenPath keeps the last two path elements of long paths.
func shortenPath(p string) string {
	if len(p) <= 36 {
		return p
	}
	dir, file := filepath.Split(p)
	parent := filepath.Base(filepath.Clean(dir))
	return filepath.Join("…", parent, file)
}
