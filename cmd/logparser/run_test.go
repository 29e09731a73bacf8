package main

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stonithLine = "Jan 5 10:00:00 node1 stonith-ng: notice: remote_op_done: Operation 'reboot' targeting node2 by node1 for pacemaker-controld.1234@node1: OK"

func writeFile(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return p
}

func testConfig(t *testing.T, args ...string) appConfig {
	t.Helper()
	out := filepath.Join(t.TempDir(), "logparser.out")
	cfg, err := parseArgs(t, append([]string{"-o", out}, args...)...)
	require.NoError(t, err)
	return cfg
}

func readOutput(t *testing.T, cfg appConfig) []string {
	t.Helper()
	data, err := os.ReadFile(cfg.Output)
	require.NoError(t, err)
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func TestRunPacemakerLine(t *testing.T) {
	for _, store := range []string{storeMemory, storeDuckDB} {
		t.Run(store, func(t *testing.T) {
			log := writeFile(t, t.TempDir(), "pacemaker.log", stonithLine)
			cfg := testConfig(t, "-p", log, "--year", "2021", "--store", store)

			var stderr bytes.Buffer
			res, err := run(context.Background(), cfg, &stderr)
			require.NoError(t, err)
			assert.NoError(t, res.SourceErrs)

			lines := readOutput(t, cfg)
			require.Len(t, lines, 1)
			assert.True(t, strings.HasPrefix(lines[0], "2021-01-05 10:00:00 node1 stonith-ng notice: remote_op_done:"), lines[0])
			assert.Contains(t, stderr.String(), "R1")
		})
	}
}

func TestRunReusedDBPathReportsOnce(t *testing.T) {
	dir := t.TempDir()
	log := writeFile(t, dir, "pacemaker.log", stonithLine)
	db := filepath.Join(dir, "records.duckdb")

	for i := 0; i < 2; i++ {
		cfg := testConfig(t, "-p", log, "--store", storeDuckDB, "--db-path", db)
		_, err := run(context.Background(), cfg, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Len(t, readOutput(t, cfg), 1, "run %d", i+1)
	}
}

func TestRunSystemTagRejectsPacemakerLine(t *testing.T) {
	log := writeFile(t, t.TempDir(), "messages", stonithLine)
	cfg := testConfig(t, "-s", log)

	res, err := run(context.Background(), cfg, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Ingest.Total.Records)
	assert.Empty(t, readOutput(t, cfg))
}

func TestRunWindowIsOpen(t *testing.T) {
	log := writeFile(t, t.TempDir(), "pacemaker.log",
		"2020-12-31T00:00:00 node1 pacemaker-controld: crit: before",
		"2021-01-01T00:00:00 node1 pacemaker-controld: crit: at begin",
		"2021-01-01T12:00:00 node1 pacemaker-controld: crit: middle",
		"2021-01-02T00:00:00 node1 pacemaker-controld: crit: at end",
	)
	cfg := testConfig(t, "-p", log, "-b", "2021-01-01", "-e", "2021-01-02")

	_, err := run(context.Background(), cfg, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, []string{"2021-01-01 12:00:00 node1 pacemaker-controld crit: middle"}, readOutput(t, cfg))
}

func TestRunMergesNodesChronologically(t *testing.T) {
	dir := t.TempDir()
	node1 := writeFile(t, dir, "node1.log",
		"2021-03-01T10:00:00 node1 pacemaker-schedulerd: notice: LogAction: * Move rsc_vip ( node1 -> node2 )",
		"2021-03-01T10:00:05 node1 pacemaker-controld: notice: Result of stop operation for rsc_vip on node1: error",
	)
	node2 := writeFile(t, dir, "node2.log",
		"2021-03-01T10:00:02 node2 corosync[99]: [TOTEM ] A new membership (10.0.0.2:8) was formed",
		"2021-03-01T10:00:05 node2 pacemaker-controld: notice: Result of start operation for rsc_vip on node2: ok",
	)
	cfg := testConfig(t, "-p", node1, "-p", node2, "--store", storeDuckDB, "--insert-batch-size", "1")

	res, err := run(context.Background(), cfg, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Ingest.Total.Records)
	assert.Equal(t, []string{
		"2021-03-01 10:00:00 node1 pacemaker-schedulerd notice: LogAction: * Move rsc_vip ( node1 -> node2 )",
		"2021-03-01 10:00:02 node2 corosync [TOTEM ] A new membership (10.0.0.2:8) was formed",
		"2021-03-01 10:00:05 node1 pacemaker-controld notice: Result of stop operation for rsc_vip on node1: error",
	}, readOutput(t, cfg))
}

func TestRunMissingFileIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	log := writeFile(t, dir, "pacemaker.log", stonithLine)
	cfg := testConfig(t, "-p", log, "-s", filepath.Join(dir, "absent"))

	res, err := run(context.Background(), cfg, &bytes.Buffer{})
	require.NoError(t, err)
	assert.ErrorIs(t, res.SourceErrs, os.ErrNotExist)
	assert.Len(t, readOutput(t, cfg), 1)
}

func TestRunHBReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hb_report-node1.tar.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	tw := tar.NewWriter(zw)
	files := []struct{ name, body string }{
		{"hb_report-node1/members.txt", "node1 node2\n"},
		{"hb_report-node1/node1/pacemaker.log", "2021-03-01T10:00:00 node1 pacemaker-based: info: cib_perform_op: ++ <rsc_location id=\"cli-ban-rsc_vip-on-node1\"\n"},
		{"hb_report-node1/node2/messages", "2021-03-01T10:00:01 node2 SAPHana(rsc_SAPHana_HDB)[7]: ERROR: ACT: system replication failed\n"},
	}
	for _, file := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: file.name, Mode: 0o644, Size: int64(len(file.body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(file.body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	cfg := testConfig(t, "--hb-report", path, "--format", "jsonl")
	res, err := run(context.Background(), cfg, &bytes.Buffer{})
	require.NoError(t, err)
	require.NoError(t, res.SourceErrs)

	lines := readOutput(t, cfg)
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"run_id":"`+res.Meta.RunID+`"`)
	assert.Contains(t, lines[1], `"rules":["R8"]`)
	assert.Contains(t, lines[2], `"component":"SAPHana(rsc_SAPHana_HDB)"`)
	assert.Contains(t, lines[2], `"rules":["R6"]`)
}

func TestRunUnreadableArchiveIsSkipped(t *testing.T) {
	dir := t.TempDir()
	bogus := writeFile(t, dir, "sosreport.tar.xz", "garbage")
	log := writeFile(t, dir, "pacemaker.log", stonithLine)
	cfg := testConfig(t, "--sosreport", bogus, "-p", log)

	var stderr bytes.Buffer
	res, err := run(context.Background(), cfg, &stderr)
	require.NoError(t, err)
	assert.Error(t, res.SourceErrs)
	assert.Len(t, readOutput(t, cfg), 1)
	assert.Contains(t, stderr.String(), "1 archive(s) skipped")
}
