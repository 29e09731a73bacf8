package archive

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

type entry struct {
	name string
	body string // empty with dir=true for directories
	dir  bool
}

func tarBytes(t *testing.T, entries []entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		if e.dir {
			hdr = &tar.Header{Name: e.name + "/", Mode: 0o755, Typeflag: tar.TypeDir}
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if !e.dir {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func compress(t *testing.T, format Format, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	var err error
	switch format {
	case FormatTar:
		return raw
	case FormatGzip:
		w = gzip.NewWriter(&buf)
	case FormatZstd:
		w, err = zstd.NewWriter(&buf)
	case FormatXz:
		w, err = xz.NewWriter(&buf)
	default:
		t.Fatalf("no writer for %s", format)
	}
	require.NoError(t, err)
	_, err = w.Write(raw)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// writeArchive writes entries as a tar archive in the given format.
func writeArchive(t *testing.T, name string, format Format, entries []entry) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, compress(t, format, tarBytes(t, entries)), 0o644))
	return p
}

var report = []entry{
	{name: "hb_report-1", dir: true},
	{name: "hb_report-1/members.txt", body: "node1 node2\n"},
	{name: "hb_report-1/node1", dir: true},
	{name: "hb_report-1/node1/pacemaker.log", body: "line one\nline two\n"},
}

func TestOpenDetectsFormats(t *testing.T) {
	for _, format := range []Format{FormatTar, FormatGzip, FormatXz, FormatZstd} {
		t.Run(format.String(), func(t *testing.T) {
			p := writeArchive(t, "report."+format.String(), format, report)

			a, err := Open(p)
			require.NoError(t, err)
			assert.Equal(t, format, a.Format())
			assert.Equal(t, "hb_report-1", a.Prefix())
			assert.True(t, a.Has("hb_report-1/members.txt"))
			assert.False(t, a.Has("hb_report-1/node1"), "directories are not readable members")

			body, err := a.ReadMember(a.Join("node1", "pacemaker.log"))
			require.NoError(t, err)
			assert.Equal(t, "line one\nline two\n", string(body))
		})
	}
}

func TestOpenMemberMissing(t *testing.T) {
	p := writeArchive(t, "report.tar.gz", FormatGzip, report)
	a, err := Open(p)
	require.NoError(t, err)

	_, err = a.OpenMember("hb_report-1/node2/pacemaker.log")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		want Format
	}{
		{"gzip", []byte{0x1f, 0x8b, 0x08, 0x00}, FormatGzip},
		{"bzip2", []byte("BZh91AY&SY"), FormatBzip2},
		{"xz", []byte{0xfd, '7', 'z', 'X', 'Z', 0x00, 0x00}, FormatXz},
		{"zstd", []byte{0x28, 0xb5, 0x2f, 0xfd, 0x00}, FormatZstd},
		{"short", []byte{0x1f}, FormatUnknown},
		{"text", []byte("Nov 22 00:00:00 node1"), FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.head))
		})
	}
}

func TestOpenUnsupportedFormat(t *testing.T) {
	p := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(p, []byte("just some text, not an archive"), 0o644))

	_, err := Open(p)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.tar.xz"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMembersReadConcurrently(t *testing.T) {
	p := writeArchive(t, "report.tar.zst", FormatZstd, report)
	a, err := Open(p)
	require.NoError(t, err)

	first, err := a.OpenMember("hb_report-1/members.txt")
	require.NoError(t, err)
	defer first.Close()
	second, err := a.OpenMember("hb_report-1/node1/pacemaker.log")
	require.NoError(t, err)
	defer second.Close()

	b1, err := io.ReadAll(first)
	require.NoError(t, err)
	b2, err := io.ReadAll(second)
	require.NoError(t, err)
	assert.Equal(t, "node1 node2\n", string(b1))
	assert.Equal(t, "line one\nline two\n", string(b2))
}

func TestCommonDir(t *testing.T) {
	files := map[string]bool{"a.log": true, "sos/etc/os-release": true, "hb/ab": true, "hb/a": true}
	isFile := func(n string) bool { return files[n] }

	tests := []struct {
		names []string
		want  string
	}{
		{nil, ""},
		{[]string{"a.log"}, ""},
		{[]string{"sos/etc/os-release"}, "sos/etc"},
		{[]string{"hb/a", "hb/ab"}, "hb"},
		{[]string{"sos", "sos/etc", "sos/etc/os-release"}, "sos"},
		{[]string{"a.log", "hb/a"}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, commonDir(tt.names, isFile), "%v", tt.names)
	}
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "hb/members.txt", cleanName("./hb/members.txt"))
	assert.Equal(t, "hb", cleanName("hb/"))
	assert.Equal(t, "", cleanName("./"))
}
