// Package archive reads members out of compressed tar archives such as
// hb_report and sosreport bundles.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

var (
	ErrMemberNotFound    = errors.New("archive member not found")
	ErrUnsupportedFormat = errors.New("unsupported archive format")
)

// Format is the outer compression of a tar archive.
type Format int

const (
	FormatUnknown Format = iota
	FormatTar
	FormatGzip
	FormatBzip2
	FormatXz
	FormatZstd
)

func (f Format) String() string {
	switch f {
	case FormatTar:
		return "tar"
	case FormatGzip:
		return "tar.gz"
	case FormatBzip2:
		return "tar.bz2"
	case FormatXz:
		return "tar.xz"
	case FormatZstd:
		return "tar.zst"
	default:
		return "unknown"
	}
}

var magics = []struct {
	format Format
	prefix []byte
}{
	{FormatGzip, []byte{0x1f, 0x8b}},
	{FormatBzip2, []byte("BZh")},
	{FormatXz, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
	{FormatZstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
}

const (
	tarMagicOffset = 257
	sniffLen       = tarMagicOffset + 5
)

// Detect identifies the format from the leading bytes of a file.
func Detect(head []byte) Format {
	for _, m := range magics {
		if bytes.HasPrefix(head, m.prefix) {
			return m.format
		}
	}
	if len(head) >= sniffLen && string(head[tarMagicOffset:sniffLen]) == "ustar" {
		return FormatTar
	}
	return FormatUnknown
}

// Archive is an indexed tar archive on disk. Members are streamed on demand
// by re-reading the file, so an Archive holds no open handle between calls
// and is safe for concurrent use.
type Archive struct {
	path   string
	format Format
	names  []string
	index  map[string]bool // name -> regular file
	prefix string
}

// Open detects the format of the archive at p and indexes its member names.
func Open(p string) (*Archive, error) {
	a := &Archive{path: p, index: make(map[string]bool)}

	tr, format, closeFn, err := a.reader()
	if err != nil {
		return nil, err
	}
	defer closeFn()
	a.format = format

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		name := cleanName(hdr.Name)
		if name == "" {
			continue
		}
		if _, seen := a.index[name]; !seen {
			a.names = append(a.names, name)
		}
		a.index[name] = hdr.Typeflag == tar.TypeReg
	}
	a.prefix = commonDir(a.names, func(name string) bool { return a.index[name] })
	return a, nil
}

// Path returns the archive file path.
func (a *Archive) Path() string { return a.path }

// Format returns the detected compression format.
func (a *Archive) Format() Format { return a.format }

// Names returns member names in archive order.
func (a *Archive) Names() []string {
	out := make([]string, len(a.names))
	copy(out, a.names)
	return out
}

// Prefix returns the top-level directory shared by every member, or "" when
// members do not share one.
func (a *Archive) Prefix() string { return a.prefix }

// Join builds a member name under the archive prefix.
func (a *Archive) Join(elem ...string) string {
	return path.Join(append([]string{a.prefix}, elem...)...)
}

// Has reports whether a regular file with the given name exists.
func (a *Archive) Has(name string) bool {
	return a.index[cleanName(name)]
}

// OpenMember returns a reader over the named member's contents. The caller
// must close it.
func (a *Archive) OpenMember(name string) (io.ReadCloser, error) {
	name = cleanName(name)
	if !a.Has(name) {
		return nil, fmt.Errorf("%s in %s: %w", name, a.path, ErrMemberNotFound)
	}

	tr, _, closeFn, err := a.reader()
	if err != nil {
		return nil, err
	}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			closeFn()
			return nil, fmt.Errorf("%s in %s: %w", name, a.path, ErrMemberNotFound)
		}
		if err != nil {
			closeFn()
			return nil, fmt.Errorf("read %s: %w", a.path, err)
		}
		if cleanName(hdr.Name) != name {
			continue
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		return &memberReader{Reader: tr, close: closeFn}, nil
	}
}

// ReadMember returns the full contents of a member.
func (a *Archive) ReadMember(name string) ([]byte, error) {
	rc, err := a.OpenMember(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// reader opens the file and layers decompression and tar decoding on top.
func (a *Archive) reader() (*tar.Reader, Format, func(), error) {
	f, err := os.Open(a.path)
	if err != nil {
		return nil, FormatUnknown, nil, fmt.Errorf("open archive: %w", err)
	}

	br := bufio.NewReader(f)
	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && !errors.Is(err, bufio.ErrBufferFull) {
		_ = f.Close()
		return nil, FormatUnknown, nil, fmt.Errorf("read %s: %w", a.path, err)
	}
	format := Detect(head)

	var (
		r       io.Reader
		closers []func()
	)
	switch format {
	case FormatTar:
		r = br
	case FormatGzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			_ = f.Close()
			return nil, FormatUnknown, nil, fmt.Errorf("gzip %s: %w", a.path, err)
		}
		r = zr
		closers = append(closers, func() { _ = zr.Close() })
	case FormatBzip2:
		r = bzip2.NewReader(br)
	case FormatXz:
		xr, err := xz.NewReader(br)
		if err != nil {
			_ = f.Close()
			return nil, FormatUnknown, nil, fmt.Errorf("xz %s: %w", a.path, err)
		}
		r = xr
	case FormatZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			_ = f.Close()
			return nil, FormatUnknown, nil, fmt.Errorf("zstd %s: %w", a.path, err)
		}
		r = zr
		closers = append(closers, zr.Close)
	default:
		_ = f.Close()
		return nil, FormatUnknown, nil, fmt.Errorf("%s: %w", a.path, ErrUnsupportedFormat)
	}

	closeFn := func() {
		for _, c := range closers {
			c()
		}
		_ = f.Close()
	}
	return tar.NewReader(r), format, closeFn, nil
}

type memberReader struct {
	io.Reader
	close func()
}

func (m *memberReader) Close() error {
	m.close()
	return nil
}

func cleanName(name string) string {
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimSuffix(name, "/")
	if name == "" || name == "." {
		return ""
	}
	return path.Clean(name)
}

// commonDir returns the longest directory path that is an ancestor of, or
// equal to, every name. The comparison is per path element, so "hb/a" and
// "hb/ab" share "hb", not "hb/a".
func commonDir(names []string, isFile func(string) bool) string {
	if len(names) == 0 {
		return ""
	}
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	first := strings.Split(sorted[0], "/")
	last := strings.Split(sorted[len(sorted)-1], "/")

	n := 0
	for n < len(first) && n < len(last) && first[n] == last[n] {
		n++
	}
	prefix := strings.Join(first[:n], "/")
	if prefix != "" && isFile(prefix) {
		prefix = path.Dir(prefix)
		if prefix == "." {
			prefix = ""
		}
	}
	return prefix
}
