package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/pacemaker-logparser/internal/httpserver"
	"github.com/tinytelemetry/pacemaker-logparser/internal/ingest"
	"github.com/tinytelemetry/pacemaker-logparser/internal/model"
	"github.com/tinytelemetry/pacemaker-logparser/internal/report"
	"github.com/tinytelemetry/pacemaker-logparser/internal/timestamp"
)

const (
	defaultQueryTimeout        = 30 * time.Second
	defaultInsertBatchSize     = 2000
	defaultInsertFlushInterval = 100 * time.Millisecond
	defaultStore               = storeMemory

	maxLogsPerKind  = 2
	maxSOSReports   = 2
	storeMemory     = "memory"
	storeDuckDB     = "duckdb"
	envPrefix       = "LOGPARSER"
	configDirName   = "pacemaker-logparser"
	defaultFileMode = 0644
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Pacemaker           []string      `mapstructure:"pacemaker" yaml:"pacemaker,omitempty"`
	Syslog              []string      `mapstructure:"syslog" yaml:"syslog,omitempty"`
	HBReport            string        `mapstructure:"hb-report" yaml:"hb-report,omitempty"`
	SOSReports          []string      `mapstructure:"sosreport" yaml:"sosreport,omitempty"`
	Begin               string        `mapstructure:"begin" yaml:"begin,omitempty"`
	End                 string        `mapstructure:"end" yaml:"end,omitempty"`
	Output              string        `mapstructure:"output" yaml:"output"`
	Format              string        `mapstructure:"format" yaml:"format"`
	Open                bool          `mapstructure:"open" yaml:"open"`
	Debug               bool          `mapstructure:"debug" yaml:"debug"`
	Year                int           `mapstructure:"year" yaml:"year"`
	Store               string        `mapstructure:"store" yaml:"store"`
	DBPath              string        `mapstructure:"db-path" yaml:"db-path,omitempty"`
	Workers             int           `mapstructure:"workers" yaml:"workers"`
	InsertBatchSize     int           `mapstructure:"insert-batch-size" yaml:"insert-batch-size"`
	InsertFlushInterval time.Duration `mapstructure:"insert-flush-interval" yaml:"insert-flush-interval"`
	QueryTimeout        time.Duration `mapstructure:"query-timeout" yaml:"query-timeout"`
	Serve               bool          `mapstructure:"serve" yaml:"serve"`
	APIAddr             string        `mapstructure:"api-addr" yaml:"api-addr"`
	ConfigPath          string        `mapstructure:"-" yaml:"-"` // not from config file

	window model.Window
	format report.Format
}

// newFlagSet declares the command-line flags. Every flag except config,
// version and write-config is also a config key.
func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("logparser", pflag.ContinueOnError)
	fs.SortFlags = false

	fs.StringSliceP("pacemaker", "p", nil, "pacemaker log file(s), at most two")
	fs.StringSliceP("syslog", "s", nil, "system log file(s) such as /var/log/messages, at most two")
	fs.String("hb-report", "", "hb_report archive (tar.bz2, tar.gz, tar.xz, tar.zst or tar)")
	fs.StringSlice("sosreport", nil, "sosreport archive(s), at most two")
	fs.StringP("begin", "b", "", "begin of the time window, YYYY-MM-DD or YYYY-MM-DD-HH:MM (exclusive)")
	fs.StringP("end", "e", "", "end of the time window, YYYY-MM-DD or YYYY-MM-DD-HH:MM (exclusive)")
	fs.StringP("output", "o", report.DefaultOutput, "output file")
	fs.String("format", string(report.FormatText), "output format: text or jsonl")
	fs.BoolP("open", "x", false, "open the output file with the default viewer")
	fs.BoolP("debug", "d", false, "log debug information, including all parsed nodes and components")
	fs.Int("year", 0, "year for syslog timestamps, which carry none (default current year)")
	fs.String("store", defaultStore, "record store: memory or duckdb")
	fs.String("db-path", "", "DuckDB scratch database file, emptied at start (default in-memory)")
	fs.Int("workers", ingest.DefaultWorkers, "number of log sources parsed in parallel")
	fs.Int("insert-batch-size", defaultInsertBatchSize, "DuckDB insert batch size")
	fs.Duration("insert-flush-interval", defaultInsertFlushInterval, "DuckDB insert flush interval")
	fs.Duration("query-timeout", defaultQueryTimeout, "DuckDB query timeout")
	fs.Bool("serve", false, "serve the results over HTTP after writing the report")
	fs.String("api-addr", httpserver.DefaultAddr, "HTTP API listen address")

	fs.String("config", "", "config file (default is $HOME/.config/"+configDirName+"/config.yml)")
	fs.Bool("version", false, "print version information")
	fs.String("write-config", "", "write the effective configuration as YAML to this path and exit")
	return fs
}

// loadConfig layers defaults, the config file, LOGPARSER_* environment
// variables and parsed flags, then validates the result.
func loadConfig(fs *pflag.FlagSet) (appConfig, error) {
	var cfg appConfig

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	fs.VisitAll(func(f *pflag.Flag) {
		switch f.Name {
		case "config", "version", "write-config":
			return
		}
		_ = v.BindPFlag(f.Name, f)
	})

	configPath, _ := fs.GetString("config")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.SetConfigFile(filepath.Join(home, ".config", configDirName, "config.yml"))
	}

	// Only the default location may be absent; an explicit --config must exist.
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &configFileNotFound) || errors.Is(err, os.ErrNotExist)
		if configPath != "" || !missing {
			return cfg, fmt.Errorf("read config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// validate checks limits and bounds and fills the derived fields.
func (c *appConfig) validate() error {
	c.Pacemaker = compact(c.Pacemaker)
	c.Syslog = compact(c.Syslog)
	c.SOSReports = compact(c.SOSReports)
	c.HBReport = strings.TrimSpace(c.HBReport)

	if c.inputs().Empty() {
		return errors.New("please specify at least one file to parse")
	}
	if len(c.Syslog) > maxLogsPerKind {
		return fmt.Errorf("please input at most %d system logs, got %d", maxLogsPerKind, len(c.Syslog))
	}
	if len(c.Pacemaker) > maxLogsPerKind {
		return fmt.Errorf("please input at most %d pacemaker logs, got %d", maxLogsPerKind, len(c.Pacemaker))
	}
	if len(c.SOSReports) > maxSOSReports {
		return fmt.Errorf("please input at most %d sosreports, got %d", maxSOSReports, len(c.SOSReports))
	}

	var err error
	if c.Begin != "" {
		if c.window.Begin, err = timestamp.ParseBound(c.Begin); err != nil {
			return fmt.Errorf("begin: %w", err)
		}
	}
	if c.End != "" {
		if c.window.End, err = timestamp.ParseBound(c.End); err != nil {
			return fmt.Errorf("end: %w", err)
		}
	}
	if !c.window.Begin.IsZero() && !c.window.End.IsZero() && !c.window.End.After(c.window.Begin) {
		return errors.New("begin time is equal to or later than end time")
	}

	if c.format, err = report.ParseFormat(c.Format); err != nil {
		return err
	}
	c.Format = string(c.format)

	switch c.Store {
	case storeMemory, storeDuckDB:
	default:
		return fmt.Errorf("invalid store %q, want %s or %s", c.Store, storeMemory, storeDuckDB)
	}
	if c.Year < 0 || c.Year > 9999 {
		return fmt.Errorf("invalid year: %d", c.Year)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("invalid workers: %d", c.Workers)
	}
	if c.Output == "" {
		c.Output = report.DefaultOutput
	}

	// Expand ~ in paths
	if home, err := os.UserHomeDir(); err == nil {
		c.Output = expandHome(home, c.Output)
		c.DBPath = expandHome(home, c.DBPath)
	}
	return nil
}

func (c *appConfig) inputs() ingest.Inputs {
	return ingest.Inputs{
		Syslog:     c.Syslog,
		Pacemaker:  c.Pacemaker,
		HBReport:   c.HBReport,
		SOSReports: c.SOSReports,
	}
}

// writeConfig stores cfg as YAML so it can be passed back with --config.
func writeConfig(path string, cfg appConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, defaultFileMode); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func compact(paths []string) []string {
	var out []string
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func expandHome(home, p string) string {
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}
