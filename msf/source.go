package msf

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	mmap "github.com/edsrzf/mmap-go"
)

// Source is a random-access byte provider backing an MSF file: either a
// plain file handle or a memory-mapped view of one.
type Source interface {
	ReadAt(p []byte, off int64) (int, error)
	Size() int64
	Close() error
}

// FileSource reads through ordinary os.File.ReadAt calls.
type FileSource struct {
	f    *os.File
	size int64
}

// NewFileSource opens path for unmapped, syscall-per-read access.
func NewFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("msf: failed to open file: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("msf: failed to stat file: %w", err)
	}
	return &FileSource{f: f, size: stat.Size()}, nil
}

func (s *FileSource) ReadAt(p []byte, off int64) (int, error) { return s.f.ReadAt(p, off) }
func (s *FileSource) Size() int64                             { return s.size }
func (s *FileSource) Close() error                             { return s.f.Close() }

// MappedSource reads through a read-only memory mapping of the file.
// This is the default backing for Open: it avoids a syscall per block
// read, which matters once a Driver fans TPI/DBI decoding out across
// goroutines that all read the same underlying file concurrently.
type MappedSource struct {
	f    *os.File
	data mmap.MMap
}

// NewMappedSource memory-maps path read-only.
func NewMappedSource(path string) (*MappedSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("msf: failed to open file: %w", err)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("msf: failed to mmap file: %w", err)
	}

	return &MappedSource{f: f, data: data}, nil
}

func (s *MappedSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(s.data)) {
		return 0, fmt.Errorf("msf: read offset %d out of range", off)
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, fmt.Errorf("msf: short read at offset %d: wanted %d, got %d", off, len(p), n)
	}
	return n, nil
}

func (s *MappedSource) Size() int64 { return int64(len(s.data)) }

func (s *MappedSource) Close() error {
	if err := s.data.Unmap(); err != nil {
		s.f.Close()
		return fmt.Errorf("msf: failed to unmap file: %w", err)
	}
	return s.f.Close()
}

// ResolvePath strips a "file:" or "file://" URL scheme from location,
// matching the original mspdb.py driver's use of
// request.pathname2url/urlopen to address a PDB by URL. A bare
// filesystem path is returned unchanged.
func ResolvePath(location string) (string, error) {
	if !strings.Contains(location, ":") {
		return location, nil
	}

	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" {
		return location, nil
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("msf: unsupported URL scheme %q", u.Scheme)
	}

	path, err := url.PathUnescape(u.Opaque)
	if err == nil && path != "" {
		return path, nil
	}
	return u.Path, nil
}

// OpenSource resolves location (a bare path or a file:/file:// URL) and
// memory-maps it, matching Open's default Source.
func OpenSource(location string) (Source, error) {
	path, err := ResolvePath(location)
	if err != nil {
		return nil, err
	}
	return NewMappedSource(path)
}
