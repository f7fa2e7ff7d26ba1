package store

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
)

// VectorStorage persists an Index to a single binary file.
//
// File format (all integers little-endian):
//
//	Header (47 bytes):
//	  - Version:    1 byte  (1)
//	  - ModelID:   32 bytes (hash of the embedding model name)
//	  - Dims:       2 bytes
//	  - EntryCount: 8 bytes
//	  - Checksum:   4 bytes (CRC32 IEEE over the first 43 bytes)
//	Entries (EntryCount times):
//	  - ID:          8 bytes
//	  - ContentHash: 8 bytes
//	  - Embedding:   Dims * 4 bytes (float32)
//
// The file is rewritten in full on every save and replaced atomically.
type VectorStorage struct {
	path string
}

const (
	// FileName is the conventional name of the vector file.
	FileName = "vectors.bin"

	// CurrentVersion is the newest format this package can read and the
	// one it writes.
	CurrentVersion uint8 = 1

	headerSize   = 47
	checksumSpan = 43
)

// ModelID identifies the embedding model that produced stored vectors.
type ModelID [32]byte

// Header is the decoded file header.
type Header struct {
	Version    uint8
	ModelID    ModelID
	Dimensions uint16
	EntryCount uint64
	Checksum   uint32
}

// entryDecoder reads the body of a specific format version.
type entryDecoder func(r io.Reader, h Header, ix *Index) (skipped int, err error)

var decoders = map[uint8]entryDecoder{
	1: decodeEntriesV1,
}

// NewVectorStorage returns storage backed by path. Nothing is touched on disk.
func NewVectorStorage(path string) *VectorStorage {
	return &VectorStorage{path: path}
}

// Path returns the file location.
func (s *VectorStorage) Path() string { return s.path }

// Exists reports whether the vector file is present. A missing file is
// not an error; any other stat failure is reported as ErrIO.
func (s *VectorStorage) Exists() (bool, error) {
	_, err := os.Stat(s.path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %w", ErrIO, err)
	}
}

// Remove deletes the vector file. A missing file is not an error.
func (s *VectorStorage) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

// Save writes ix to a temp file in the target directory, syncs it and
// renames it over the live file. On failure the temp file is removed and
// the live file is left untouched.
func (s *VectorStorage) Save(ix *Index, model ModelID) (err error) {
	if ix.Dimensions() <= 0 || ix.Dimensions() > math.MaxUint16 {
		return fmt.Errorf("%w: dimensions %d out of range", ErrInvalidFormat, ix.Dimensions())
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	w := bufio.NewWriterSize(tmp, 64*1024)
	if err := writeIndex(w, ix, model); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, tmpPath, err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: flush: %w", ErrIO, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %w", ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrIO, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("%w: rename: %w", ErrIO, err)
	}
	syncDir(dir)
	return nil
}

// syncDir persists the rename on filesystems that need it. Best effort.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

func writeIndex(w io.Writer, ix *Index, model ModelID) error {
	h := Header{
		Version:    CurrentVersion,
		ModelID:    model,
		Dimensions: uint16(ix.Dimensions()),
		EntryCount: uint64(ix.Len()),
	}
	if _, err := w.Write(h.encode()); err != nil {
		return err
	}

	buf := make([]byte, 16+4*ix.Dimensions())
	for id, e := range ix.All() {
		binary.LittleEndian.PutUint64(buf[0:8], id)
		binary.LittleEndian.PutUint64(buf[8:16], e.ContentHash)
		for j, v := range e.Embedding {
			binary.LittleEndian.PutUint32(buf[16+4*j:], math.Float32bits(v))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// encode serializes the header and fills in its checksum.
func (h *Header) encode() []byte {
	buf := make([]byte, headerSize)
	buf[0] = h.Version
	copy(buf[1:33], h.ModelID[:])
	binary.LittleEndian.PutUint16(buf[33:35], h.Dimensions)
	binary.LittleEndian.PutUint64(buf[35:43], h.EntryCount)
	h.Checksum = crc32.ChecksumIEEE(buf[:checksumSpan])
	binary.LittleEndian.PutUint32(buf[43:47], h.Checksum)
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	var h Header
	h.Checksum = binary.LittleEndian.Uint32(buf[43:47])
	if got := crc32.ChecksumIEEE(buf[:checksumSpan]); got != h.Checksum {
		return h, fmt.Errorf("%w: stored %08x, computed %08x", ErrChecksumMismatch, h.Checksum, got)
	}
	h.Version = buf[0]
	copy(h.ModelID[:], buf[1:33])
	h.Dimensions = binary.LittleEndian.Uint16(buf[33:35])
	h.EntryCount = binary.LittleEndian.Uint64(buf[35:43])
	return h, nil
}

// ReadHeader reads and verifies only the header.
func (s *VectorStorage) ReadHeader() (Header, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer func() { _ = f.Close() }()
	return readHeader(f)
}

func readHeader(r io.Reader) (Header, error) {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Header{}, fmt.Errorf("%w: file shorter than header", ErrInvalidFormat)
		}
		return Header{}, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return decodeHeader(buf)
}

// Load reads the file into a fresh index. The header checksum is verified
// before any field is trusted, then version, model and dimensions are
// checked against the caller's expectations. Entries that fail to insert
// (a corrupted zero-norm or non-finite embedding) and repeats of an id
// already loaded are skipped and counted.
func (s *VectorStorage) Load(model ModelID, dims int) (ix *Index, skipped int, err error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, 64*1024)
	h, err := readHeader(r)
	if err != nil {
		return nil, 0, err
	}

	decode, ok := decoders[h.Version]
	if !ok {
		if h.Version > CurrentVersion {
			return nil, 0, fmt.Errorf("%w: file version %d, supported up to %d", ErrVersionMismatch, h.Version, CurrentVersion)
		}
		return nil, 0, fmt.Errorf("%w: unknown version %d", ErrInvalidFormat, h.Version)
	}
	if h.ModelID != model {
		return nil, 0, ErrModelMismatch
	}
	if int(h.Dimensions) != dims {
		return nil, 0, fmt.Errorf("%w: file has %d, expected %d", ErrDimensionMismatch, h.Dimensions, dims)
	}

	if info, err := f.Stat(); err == nil {
		entrySize := uint64(16 + 4*int(h.Dimensions))
		body := uint64(info.Size()) - headerSize
		if h.EntryCount > body/entrySize {
			return nil, 0, fmt.Errorf("%w: header claims %d entries, file holds at most %d", ErrInvalidFormat, h.EntryCount, body/entrySize)
		}
	}

	ix = NewIndex(dims)
	skipped, err = decode(r, h, ix)
	if err != nil {
		return nil, 0, err
	}
	return ix, skipped, nil
}

func decodeEntriesV1(r io.Reader, h Header, ix *Index) (int, error) {
	dims := int(h.Dimensions)
	buf := make([]byte, 16+4*dims)
	skipped := 0
	for i := uint64(0); i < h.EntryCount; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return 0, fmt.Errorf("%w: truncated at entry %d of %d", ErrInvalidFormat, i, h.EntryCount)
			}
			return 0, fmt.Errorf("%w: %w", ErrIO, err)
		}
		id := binary.LittleEndian.Uint64(buf[0:8])
		contentHash := binary.LittleEndian.Uint64(buf[8:16])
		vec := make([]float32, dims)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[16+4*j:]))
		}
		if ix.Contains(id) {
			skipped++
			continue
		}
		if err := ix.Insert(id, contentHash, vec); err != nil {
			skipped++
		}
	}
	return skipped, nil
}
