package phar

import (
	"bytes"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/spf13/afero"
)

var (
	ErrCorrupt      = errors.New("corrupt archive")
	ErrBadSignature = errors.New("signature mismatch")
	ErrUnsupported  = errors.New("unsupported archive feature")
)

// Entry flags for compressed contents
const (
	flagCompressedGZ  uint32 = 0x00001000
	flagCompressedBZ2 uint32 = 0x00002000
)

// Entry is one file read back from an archive
type Entry struct {
	Name    string
	Size    uint32
	ModTime time.Time
	CRC32   uint32
	Perm    uint32
	Data    []byte
}

// Archive is a parsed and verified phar
type Archive struct {
	Stub       string
	Alias      string
	APIVersion string
	Flags      uint32
	Signature  SignatureAlgorithm
	Digest     string
	Entries    []Entry
}

// Entry looks up an entry by name
func (a *Archive) Entry(name string) (*Entry, bool) {
	for i := range a.Entries {
		if a.Entries[i].Name == name {
			return &a.Entries[i], true
		}
	}

	return nil, false
}

// Open reads and verifies the archive at path
func Open(fs afero.Fs, path string) (*Archive, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes an archive, checking every entry CRC and the signature.
func Parse(data []byte) (*Archive, error) {
	idx := bytes.Index(bytes.ToLower(data), []byte("__halt_compiler();"))
	if idx < 0 {
		return nil, fmt.Errorf("%w: no __HALT_COMPILER(); in stub", ErrCorrupt)
	}

	pos := idx + len(haltCompiler)
	archive := &Archive{Stub: string(data[:pos])}

	// " ?>" and one line ending may follow the halt call
	if bytes.HasPrefix(data[pos:], []byte(" ?>")) {
		pos += 3
	} else if bytes.HasPrefix(data[pos:], []byte("?>")) {
		pos += 2
	}

	if bytes.HasPrefix(data[pos:], []byte("\r\n")) {
		pos += 2
	} else if bytes.HasPrefix(data[pos:], []byte("\n")) {
		pos++
	}

	r := &reader{data: data, pos: pos}

	manifestLen, err := r.uint32()
	if err != nil {
		return nil, err
	}

	manifestEnd := r.pos + int(manifestLen)
	if manifestEnd > len(data) {
		return nil, fmt.Errorf("%w: manifest length %d exceeds file size", ErrCorrupt, manifestLen)
	}

	count, err := r.uint32()
	if err != nil {
		return nil, err
	}

	api, err := r.bytes(2)
	if err != nil {
		return nil, err
	}

	archive.APIVersion = fmt.Sprintf("%d.%d.%d", api[0]>>4, api[0]&0x0f, api[1]>>4)

	if archive.Flags, err = r.uint32(); err != nil {
		return nil, err
	}

	alias, err := r.lenPrefixed()
	if err != nil {
		return nil, err
	}

	archive.Alias = string(alias)

	if _, err := r.lenPrefixed(); err != nil {
		return nil, err
	}

	storedSizes := make([]uint32, 0, count)

	for i := uint32(0); i < count; i++ {
		name, err := r.lenPrefixed()
		if err != nil {
			return nil, err
		}

		var fields [6]uint32
		for j := range fields {
			if fields[j], err = r.uint32(); err != nil {
				return nil, err
			}
		}

		if _, err := r.lenPrefixed(); err != nil {
			return nil, err
		}

		if fields[4]&(flagCompressedGZ|flagCompressedBZ2) != 0 {
			return nil, fmt.Errorf("%w: compressed entry %s", ErrUnsupported, name)
		}

		archive.Entries = append(archive.Entries, Entry{
			Name:    string(name),
			Size:    fields[0],
			ModTime: time.Unix(int64(fields[1]), 0),
			CRC32:   fields[3],
			Perm:    fields[4] & 0x1ff,
		})

		storedSizes = append(storedSizes, fields[2])
	}

	if r.pos != manifestEnd {
		return nil, fmt.Errorf("%w: manifest length mismatch", ErrCorrupt)
	}

	for i := range archive.Entries {
		e := &archive.Entries[i]

		if e.Data, err = r.bytes(int(storedSizes[i])); err != nil {
			return nil, err
		}

		if crc32.ChecksumIEEE(e.Data) != e.CRC32 {
			return nil, fmt.Errorf("%w: CRC mismatch for %s", ErrCorrupt, e.Name)
		}
	}

	if archive.Flags&flagSignature == 0 {
		if r.pos != len(data) {
			return nil, fmt.Errorf("%w: trailing data after entries", ErrCorrupt)
		}

		return archive, nil
	}

	if err := archive.verifySignature(data, r.pos); err != nil {
		return nil, err
	}

	return archive, nil
}

// verifySignature checks the footer that starts at offset end.
func (a *Archive) verifySignature(data []byte, end int) error {
	if len(data)-end < 8 || string(data[len(data)-4:]) != signatureMagic {
		return fmt.Errorf("%w: missing signature footer", ErrCorrupt)
	}

	alg := SignatureAlgorithm(binary.LittleEndian.Uint32(data[len(data)-8:]))
	if !alg.Valid() {
		return fmt.Errorf("%w: signature %s", ErrUnsupported, alg)
	}

	if len(data)-8-alg.Size() != end {
		return fmt.Errorf("%w: signature length mismatch", ErrCorrupt)
	}

	stored := data[end : len(data)-8]

	h := alg.New()
	h.Write(data[:end])

	if subtle.ConstantTimeCompare(h.Sum(nil), stored) != 1 {
		return ErrBadSignature
	}

	a.Signature = alg
	a.Digest = hex.EncodeToString(stored)

	return nil
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, fmt.Errorf("%w: unexpected end of file at offset %d", ErrCorrupt, r.pos)
	}

	b := r.data[r.pos : r.pos+n]
	r.pos += n

	return b, nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) lenPrefixed() ([]byte, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}

	return r.bytes(int(n))
}
