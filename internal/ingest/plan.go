package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"github.com/tinytelemetry/pacemaker-logparser/internal/archive"
	"github.com/tinytelemetry/pacemaker-logparser/internal/logsource"
	"github.com/tinytelemetry/pacemaker-logparser/internal/model"
)

// Inputs names the files of one run.
type Inputs struct {
	Syslog     []string
	Pacemaker  []string
	HBReport   string
	SOSReports []string
}

// Empty reports whether no input is named.
func (in Inputs) Empty() bool {
	return len(in.Syslog) == 0 && len(in.Pacemaker) == 0 && in.HBReport == "" && len(in.SOSReports) == 0
}

// Plan turns inputs into jobs in a fixed order: system logs, pacemaker logs,
// the hb_report members, then the sosreport members. Archives that cannot be
// opened or searched are skipped and their errors returned alongside the
// jobs that could be planned.
func Plan(in Inputs, conf ...logsource.Config) ([]Job, error) {
	var jobs []Job
	for _, p := range in.Syslog {
		jobs = append(jobs, FileJob(p, model.TagSystem, conf...))
	}
	for _, p := range in.Pacemaker {
		jobs = append(jobs, FileJob(p, model.TagPacemaker, conf...))
	}

	var errs error
	if in.HBReport != "" {
		archiveJobs, err := ArchiveJobs(in.HBReport, logsource.HBReportMembers, conf...)
		jobs = append(jobs, archiveJobs...)
		errs = multierr.Append(errs, err)
	}
	for _, p := range in.SOSReports {
		archiveJobs, err := ArchiveJobs(p, logsource.SOSReportMembers, conf...)
		jobs = append(jobs, archiveJobs...)
		errs = multierr.Append(errs, err)
	}
	return jobs, errs
}

// FileJob reads a plain log file.
func FileJob(path string, tag model.SourceTag, conf ...logsource.Config) Job {
	return Job{
		Name: path,
		Open: func(ctx context.Context) (logsource.LogSource, error) {
			return logsource.NewFileSource(ctx, path, tag, conf...)
		},
	}
}

// ArchiveJobs opens an archive, selects its members with discover and
// returns one job per member.
func ArchiveJobs(path string, discover func(*archive.Archive) ([]logsource.Member, error), conf ...logsource.Config) ([]Job, error) {
	a, err := archive.Open(path)
	if err != nil {
		log.Error().Err(err).Str("archive", path).Msg("cannot read archive, please extract the logs and parse them manually")
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	members, err := discover(a)
	if err != nil {
		log.Error().Err(err).Str("archive", path).Msg("cannot locate logs in archive")
		return nil, err
	}

	jobs := make([]Job, 0, len(members))
	for _, m := range members {
		jobs = append(jobs, Job{
			Name: a.Path() + ":" + m.Name,
			Open: func(ctx context.Context) (logsource.LogSource, error) {
				return logsource.NewMemberSource(ctx, a, m, conf...)
			},
		})
	}
	return jobs, nil
}
