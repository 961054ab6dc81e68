package segment

import (
	"bufio"
	"hash"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/selfindex/pkg/errors"
)

// PostingsFile is the append-only blob area holding every postings block.
const PostingsFile = "postings.bin"

// Writer fills one index directory: postings blocks are appended to the
// blob area and the three mapping tables are written through the
// configured backend. Nothing is readable until Commit succeeds.
type Writer struct {
	dir      string
	file     *os.File
	buf      *bufio.Writer
	crc      hash.Hash32
	size     int64
	mappings mappingStore
	closed   bool
}

// Create truncates or creates the index directory contents for a new build.
func Create(dir string, backend index.StorageBackend) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.StorageIO("creating index directory", err)
	}
	for _, stale := range []string{MetaFile, LexiconFile, DocsFile, BoltFile} {
		if err := os.Remove(filepath.Join(dir, stale)); err != nil && !os.IsNotExist(err) {
			return nil, apperrors.StorageIO("removing stale mapping", err)
		}
	}
	f, err := os.Create(filepath.Join(dir, PostingsFile))
	if err != nil {
		return nil, apperrors.StorageIO("creating postings file", err)
	}
	mappings, err := openMappings(dir, backend, false)
	if err != nil {
		f.Close()
		return nil, apperrors.StorageIO("opening mappings", err)
	}
	return &Writer{
		dir:      dir,
		file:     f,
		buf:      bufio.NewWriterSize(f, 64*1024),
		crc:      crc32.NewIEEE(),
		mappings: mappings,
	}, nil
}

// Append writes one encoded block and returns where it landed.
func (w *Writer) Append(block []byte) (index.Location, error) {
	loc := index.Location{Offset: w.size, Length: int64(len(block))}
	if _, err := w.buf.Write(block); err != nil {
		return index.Location{}, apperrors.StorageIO("appending postings block", err)
	}
	w.crc.Write(block)
	w.size += int64(len(block))
	return loc, nil
}

// Size is the number of bytes appended so far.
func (w *Writer) Size() int64 {
	return w.size
}

func (w *Writer) WriteLexicon(lex index.Lexicon) error {
	if err := w.mappings.PutLexicon(lex); err != nil {
		return apperrors.StorageIO("writing lexicon", err)
	}
	return nil
}

func (w *Writer) WriteDocuments(dt index.DocTable) error {
	if err := w.mappings.PutDocuments(dt); err != nil {
		return apperrors.StorageIO("writing document table", err)
	}
	return nil
}

// Commit flushes and syncs the blob area, then writes meta with the blob
// size and checksum filled in. The metadata record is written last so a
// directory without one is never mistaken for a complete index.
func (w *Writer) Commit(meta index.Meta) error {
	if err := w.buf.Flush(); err != nil {
		return apperrors.StorageIO("flushing postings", err)
	}
	if err := w.file.Sync(); err != nil {
		return apperrors.StorageIO("syncing postings", err)
	}
	meta.FormatVersion = index.FormatVersion
	meta.PostingsSize = w.size
	meta.PostingsCRC = w.crc.Sum32()
	if err := w.mappings.PutMeta(meta); err != nil {
		return apperrors.StorageIO("writing meta", err)
	}
	return w.Close()
}

// Close releases the writer. Calling it after Commit is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	mErr := w.mappings.Close()
	if err := w.file.Close(); err != nil {
		return apperrors.StorageIO("closing postings", err)
	}
	if mErr != nil {
		return apperrors.StorageIO("closing mappings", mErr)
	}
	return nil
}

func (w *Writer) Dir() string {
	return w.dir
}
