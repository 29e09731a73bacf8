package logsource

import (
	"archive/tar"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/pacemaker-logparser/internal/archive"
	"github.com/tinytelemetry/pacemaker-logparser/internal/model"
)

// writeTarGz writes files (name -> body) as a gzip-compressed tar in order.
func writeTarGz(t *testing.T, names []string, files map[string]string) *archive.Archive {
	t.Helper()
	p := filepath.Join(t.TempDir(), "bundle.tar.gz")
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	tw := tar.NewWriter(zw)
	for _, name := range names {
		body := files[name]
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	a, err := archive.Open(p)
	require.NoError(t, err)
	return a
}

func memberNames(ms []Member) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Name
	}
	return out
}

func TestHBReportMembersFromMembersTxt(t *testing.T) {
	files := map[string]string{
		"hb/members.txt":         "node1 node2\nignored\n",
		"hb/node1/pacemaker.log": "x",
		"hb/node1/corosync.log":  "x",
		"hb/node1/messages":      "x",
		"hb/node2/corosync.log":  "x",
		"hb/node2/journal.log":   "x",
		"hb/node3/pacemaker.log": "x",
	}
	a := writeTarGz(t, []string{
		"hb/members.txt", "hb/node1/pacemaker.log", "hb/node1/corosync.log", "hb/node1/messages",
		"hb/node2/corosync.log", "hb/node2/journal.log", "hb/node3/pacemaker.log",
	}, files)

	got, err := HBReportMembers(a)
	require.NoError(t, err)
	assert.Equal(t, []Member{
		{Name: "hb/node1/pacemaker.log", Tag: model.TagPacemaker, Node: "node1"},
		{Name: "hb/node1/messages", Tag: model.TagSystem, Node: "node1"},
		{Name: "hb/node2/corosync.log", Tag: model.TagPacemaker, Node: "node2"},
		{Name: "hb/node2/journal.log", Tag: model.TagSystem, Node: "node2"},
	}, got)
}

func TestHBReportMembersFromCorosyncConf(t *testing.T) {
	conf := `nodelist {
	node {
		ring0_addr: alpha
		nodeid: 1
	}
	node {
		ring0_addr: beta
		nodeid: 2
	}
}
`
	a := writeTarGz(t, []string{"hb/corosync.conf", "hb/alpha/pacemaker.log", "hb/beta/messages"}, map[string]string{
		"hb/corosync.conf":       conf,
		"hb/alpha/pacemaker.log": "x",
		"hb/beta/messages":       "x",
	})

	got, err := HBReportMembers(a)
	require.NoError(t, err)
	assert.Equal(t, []string{"hb/alpha/pacemaker.log", "hb/beta/messages"}, memberNames(got))
}

func TestHBReportMembersNoNodes(t *testing.T) {
	a := writeTarGz(t, []string{"hb/description.txt", "hb/other.txt"}, map[string]string{})

	_, err := HBReportMembers(a)
	assert.ErrorIs(t, err, ErrNoMembers)
}

func TestSOSReportMembersByVersion(t *testing.T) {
	tests := []struct {
		name      string
		osRelease string
		want      []string
	}{
		{"rhel8", "NAME=\"Red Hat Enterprise Linux\"\nVERSION_ID=\"8.4\"\n", []string{"sos/var/log/messages", "sos/var/log/pacemaker/pacemaker.log"}},
		{"rhel7", "VERSION_ID=\"7.9\"\n", []string{"sos/var/log/messages", "sos/var/log/cluster/corosync.log"}},
		{"missing", "", []string{"sos/var/log/messages", "sos/var/log/cluster/corosync.log"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			names := []string{"sos/version.txt", "sos/var/log/messages", "sos/var/log/pacemaker/pacemaker.log", "sos/var/log/cluster/corosync.log"}
			files := map[string]string{}
			if tt.osRelease != "" {
				names = append(names, "sos/etc/os-release")
				files["sos/etc/os-release"] = tt.osRelease
			}
			a := writeTarGz(t, names, files)

			got, err := SOSReportMembers(a)
			require.NoError(t, err)
			assert.Equal(t, tt.want, memberNames(got))
			assert.Equal(t, model.TagSystem, got[0].Tag)
			assert.Equal(t, model.TagPacemaker, got[1].Tag)
		})
	}
}

func TestParseVersionID(t *testing.T) {
	assert.Equal(t, 8.4, parseVersionID([]byte(`VERSION_ID="8.4"`)))
	assert.Equal(t, 9.0, parseVersionID([]byte("VERSION_ID=9")))
	assert.Equal(t, 15.3, parseVersionID([]byte(`VERSION_ID="15.3.1"`)))
	assert.Equal(t, 0.0, parseVersionID([]byte(`VERSION_ID="rolling"`)))
	assert.Equal(t, 0.0, parseVersionID([]byte("ID=rhel")))
}

func TestNewMemberSource(t *testing.T) {
	a := writeTarGz(t, []string{"hb/node1/pacemaker.log"}, map[string]string{
		"hb/node1/pacemaker.log": "one\ntwo\n",
	})

	src, err := NewMemberSource(context.Background(), a, Member{Name: "hb/node1/pacemaker.log", Tag: model.TagPacemaker})
	require.NoError(t, err)
	got := drain(t, src)
	require.Len(t, got, 2)
	assert.Equal(t, a.Path()+":hb/node1/pacemaker.log", got[0].Source)

	_, err = NewMemberSource(context.Background(), a, Member{Name: "hb/node1/messages"})
	assert.ErrorIs(t, err, archive.ErrMemberNotFound)
}
