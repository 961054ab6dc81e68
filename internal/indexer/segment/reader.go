package segment

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/selfindex/pkg/errors"
)

// Reader serves postings blocks of a committed index directory. The
// mapping tables are loaded in full at Open; blocks are read on demand.
type Reader struct {
	dir     string
	file    *os.File
	backend index.StorageBackend
	meta    index.Meta
	lexicon index.Lexicon
	docs    index.DocTable
}

// Open loads the mapping tables of dir and verifies the blob area against
// the size and checksum recorded in meta.
func Open(dir string) (*Reader, error) {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("index directory %s: %w", dir, apperrors.ErrIndexNotFound)
		}
		return nil, apperrors.StorageIO("stat index directory", err)
	}
	backend := detectBackend(dir)
	meta, lex, docs, err := loadMappings(dir, backend)
	if err != nil {
		return nil, err
	}
	if meta.FormatVersion != index.FormatVersion {
		return nil, apperrors.StorageIO("reading meta",
			fmt.Errorf("unsupported format version %d", meta.FormatVersion))
	}
	f, err := os.Open(filepath.Join(dir, PostingsFile))
	if err != nil {
		return nil, apperrors.StorageIO("opening postings", err)
	}
	if err := verify(f, meta); err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{
		dir:     dir,
		file:    f,
		backend: backend,
		meta:    meta,
		lexicon: lex,
		docs:    docs,
	}, nil
}

// ReadMeta returns only the metadata record of dir.
func ReadMeta(dir string) (index.Meta, error) {
	m, err := openMappings(dir, detectBackend(dir), true)
	if err != nil {
		return index.Meta{}, missingAsNotFound("opening mappings", err)
	}
	defer m.Close()
	meta, err := m.Meta()
	if err != nil {
		return index.Meta{}, missingAsNotFound("reading meta", err)
	}
	return meta, nil
}

func loadMappings(dir string, backend index.StorageBackend) (index.Meta, index.Lexicon, index.DocTable, error) {
	m, err := openMappings(dir, backend, true)
	if err != nil {
		return index.Meta{}, nil, nil, missingAsNotFound("opening mappings", err)
	}
	defer m.Close()
	meta, err := m.Meta()
	if err != nil {
		return index.Meta{}, nil, nil, missingAsNotFound("reading meta", err)
	}
	lex, err := m.Lexicon()
	if err != nil {
		return index.Meta{}, nil, nil, apperrors.StorageIO("reading lexicon", err)
	}
	docs, err := m.Documents()
	if err != nil {
		return index.Meta{}, nil, nil, apperrors.StorageIO("reading document table", err)
	}
	return meta, lex, docs, nil
}

// missingAsNotFound reports a directory without a metadata record as not
// found; everything else is a storage failure.
func missingAsNotFound(op string, err error) error {
	if errors.Is(err, errMissingMapping) {
		return fmt.Errorf("%s: %w: %w", op, apperrors.ErrIndexNotFound, err)
	}
	return apperrors.StorageIO(op, err)
}

func verify(f *os.File, meta index.Meta) error {
	info, err := f.Stat()
	if err != nil {
		return apperrors.StorageIO("stat postings", err)
	}
	if info.Size() != meta.PostingsSize {
		return apperrors.StorageIO("verifying postings",
			fmt.Errorf("size %d, meta records %d", info.Size(), meta.PostingsSize))
	}
	h := crc32.NewIEEE()
	if _, err := io.Copy(h, io.NewSectionReader(f, 0, info.Size())); err != nil {
		return apperrors.StorageIO("checksumming postings", err)
	}
	if sum := h.Sum32(); sum != meta.PostingsCRC {
		return apperrors.StorageIO("verifying postings",
			fmt.Errorf("checksum %08x, meta records %08x", sum, meta.PostingsCRC))
	}
	return nil
}

// Read returns the raw block at loc.
func (r *Reader) Read(loc index.Location) ([]byte, error) {
	if loc.Offset < 0 || loc.Length < 0 || loc.Offset+loc.Length > r.meta.PostingsSize {
		return nil, apperrors.StorageIO("reading postings",
			fmt.Errorf("block [%d,+%d) outside blob of %d bytes", loc.Offset, loc.Length, r.meta.PostingsSize))
	}
	buf := make([]byte, loc.Length)
	if _, err := r.file.ReadAt(buf, loc.Offset); err != nil {
		return nil, apperrors.StorageIO("reading postings", err)
	}
	return buf, nil
}

// Lookup returns the block location of term.
func (r *Reader) Lookup(term string) (index.Location, bool) {
	loc, ok := r.lexicon[term]
	return loc, ok
}

func (r *Reader) Meta() index.Meta { return r.meta }
func (r *Reader) Lexicon() index.Lexicon { return r.lexicon }
func (r *Reader) Documents() index.DocTable { return r.docs }
func (r *Reader) Backend() index.StorageBackend { return r.backend }
func (r *Reader) Dir() string { return r.dir }

func (r *Reader) Close() error {
	return r.file.Close()
}
