// Package phar reads and writes PHP archives in the phar file format.
//
// An archive is laid out as:
//
//	stub ... __HALT_COMPILER(); ?>\r\n
//	manifest (length, entry count, API version, flags, alias, metadata)
//	one manifest record per entry
//	entry contents, in manifest order
//	signature digest, signature flag, "GBMB"
//
// All integers are little-endian uint32 except the two byte API version.
// Entries are always stored uncompressed.
package phar

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/Norgate-AV/pharpack/internal/failure"
)

const (
	haltCompiler   = "__HALT_COMPILER();"
	stubTerminator = " ?>\r\n"
	signatureMagic = "GBMB"

	// Global flag set when the archive carries a signature
	flagSignature uint32 = 0x00010000

	// Entry permission bits PHP assigns to files added from strings
	defaultEntryPerm uint32 = 0o666
)

// API version 1.1.1 as written by PHP: major.minor in the first byte, release in the high nibble of the second
var apiVersion = [2]byte{0x11, 0x10}

var (
	ErrDuplicateEntry = errors.New("duplicate entry name")
	ErrInvalidName    = errors.New("invalid entry name")
	ErrInvalidStub    = errors.New("stub must contain " + haltCompiler)
	ErrNoStub         = errors.New("no stub set")
	ErrTooLarge       = errors.New("entry exceeds 4 GiB")
)

type entry struct {
	name string
	data []byte
}

// Writer buffers entries in memory and serializes them in one pass.
// Entry names must be unique: adding a name twice fails instead of
// replacing the earlier entry.
type Writer struct {
	alias   string
	stub    string
	sig     SignatureAlgorithm
	modTime time.Time
	fs      afero.Fs

	entries []entry
	names   map[string]struct{}
}

// Option configures a Writer.
type Option func(*Writer)

// WithSignature sets the signature algorithm (SHA1 by default).
func WithSignature(alg SignatureAlgorithm) Option {
	return func(w *Writer) {
		w.sig = alg
	}
}

// WithModTime sets the timestamp recorded for every entry.
func WithModTime(t time.Time) Option {
	return func(w *Writer) {
		w.modTime = t
	}
}

// WithFs sets the filesystem Commit writes to.
func WithFs(fs afero.Fs) Option {
	return func(w *Writer) {
		w.fs = fs
	}
}

// NewWriter creates a writer for an archive mapped under alias.
func NewWriter(alias string, opts ...Option) *Writer {
	w := &Writer{
		alias:   alias,
		sig:     SHA1,
		modTime: time.Now(),
		fs:      afero.NewOsFs(),
		names:   make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Summary describes a committed archive.
type Summary struct {
	Path      string
	Entries   int
	Size      int64
	Signature SignatureAlgorithm
	Digest    string
}

// SetStub sets the bootstrap code. Anything after __HALT_COMPILER(); is dropped.
func (w *Writer) SetStub(stub string) error {
	idx := strings.Index(strings.ToLower(stub), strings.ToLower(haltCompiler))
	if idx < 0 {
		return ErrInvalidStub
	}

	w.stub = stub[:idx+len(haltCompiler)]

	return nil
}

// Add buffers an entry.
func (w *Writer) Add(name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}

	if uint64(len(data)) > math.MaxUint32 {
		return fmt.Errorf("%w: %s", ErrTooLarge, name)
	}

	if _, ok := w.names[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, name)
	}

	w.names[name] = struct{}{}
	w.entries = append(w.entries, entry{name: name, data: data})

	return nil
}

// Len returns the number of buffered entries.
func (w *Writer) Len() int {
	return len(w.entries)
}

// Has reports whether name has been added.
func (w *Writer) Has(name string) bool {
	_, ok := w.names[name]
	return ok
}

// WriteTo serializes the archive to out.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	n, _, err := w.write(out)
	return n, err
}

// Commit writes the archive to a temporary file next to path and renames it
// into place, so readers never observe a partially written archive.
func (w *Writer) Commit(path string) (Summary, error) {
	tmp, err := afero.TempFile(w.fs, filepath.Dir(path), ".pharpack-*.tmp")
	if err != nil {
		return Summary{}, failure.Wrap(failure.ErrWrite, "commit", err)
	}

	tmpName := tmp.Name()
	discard := func(cause error) (Summary, error) {
		_ = tmp.Close()
		_ = w.fs.Remove(tmpName)
		return Summary{}, failure.Wrap(failure.ErrWrite, "commit", cause)
	}

	buf := bufio.NewWriter(tmp)

	n, digest, err := w.write(buf)
	if err != nil {
		return discard(err)
	}

	if err := buf.Flush(); err != nil {
		return discard(err)
	}

	if err := tmp.Close(); err != nil {
		return discard(err)
	}

	if err := w.fs.Chmod(tmpName, 0o755); err != nil {
		return discard(err)
	}

	if err := w.fs.Rename(tmpName, path); err != nil {
		return discard(err)
	}

	return Summary{
		Path:      path,
		Entries:   len(w.entries),
		Size:      n,
		Signature: w.sig,
		Digest:    digest,
	}, nil
}

func (w *Writer) write(out io.Writer) (int64, string, error) {
	if w.stub == "" {
		return 0, "", ErrNoStub
	}

	h := w.sig.New()
	if h == nil {
		return 0, "", fmt.Errorf("unsupported signature algorithm %s", w.sig)
	}

	cw := &countingWriter{w: io.MultiWriter(out, h)}

	if _, err := io.WriteString(cw, w.stub+stubTerminator); err != nil {
		return cw.n, "", err
	}

	if _, err := cw.Write(w.manifest()); err != nil {
		return cw.n, "", err
	}

	for _, e := range w.entries {
		if _, err := cw.Write(e.data); err != nil {
			return cw.n, "", err
		}
	}

	digest := h.Sum(nil)

	footer := make([]byte, 0, len(digest)+8)
	footer = append(footer, digest...)
	footer = binary.LittleEndian.AppendUint32(footer, uint32(w.sig))
	footer = append(footer, signatureMagic...)

	n, err := out.Write(footer)

	return cw.n + int64(n), hex.EncodeToString(digest), err
}

func (w *Writer) manifest() []byte {
	le := binary.LittleEndian
	mtime := uint32(w.modTime.Unix())

	var body []byte
	body = le.AppendUint32(body, uint32(len(w.entries)))
	body = append(body, apiVersion[:]...)
	body = le.AppendUint32(body, flagSignature)
	body = le.AppendUint32(body, uint32(len(w.alias)))
	body = append(body, w.alias...)
	body = le.AppendUint32(body, 0) // archive metadata

	for _, e := range w.entries {
		size := uint32(len(e.data))

		body = le.AppendUint32(body, uint32(len(e.name)))
		body = append(body, e.name...)
		body = le.AppendUint32(body, size)
		body = le.AppendUint32(body, mtime)
		body = le.AppendUint32(body, size) // stored size, uncompressed
		body = le.AppendUint32(body, crc32.ChecksumIEEE(e.data))
		body = le.AppendUint32(body, defaultEntryPerm)
		body = le.AppendUint32(body, 0) // entry metadata
	}

	out := make([]byte, 0, len(body)+4)
	out = le.AppendUint32(out, uint32(len(body)))

	return append(out, body...)
}

func validateName(name string) error {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}

	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
