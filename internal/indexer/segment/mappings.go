package segment

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"

	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/index"
)

const (
	MetaFile    = "meta.json"
	LexiconFile = "lexicon.json"
	DocsFile    = "docs.json"
	BoltFile    = "mappings.db"
)

var (
	metaBucket    = []byte("meta")
	lexiconBucket = []byte("lexicon")
	docsBucket    = []byte("docs")
	metaKey       = []byte("meta")
)

var errMissingMapping = errors.New("mapping not found")

// mappingStore persists the three small tables of an index directory.
type mappingStore interface {
	PutLexicon(index.Lexicon) error
	PutDocuments(index.DocTable) error
	PutMeta(index.Meta) error
	Lexicon() (index.Lexicon, error)
	Documents() (index.DocTable, error)
	Meta() (index.Meta, error)
	Close() error
}

func openMappings(dir string, backend index.StorageBackend, readOnly bool) (mappingStore, error) {
	switch backend {
	case index.FileBackend:
		return &jsonMappings{dir: dir}, nil
	case index.BoltBackend:
		return openBoltMappings(filepath.Join(dir, BoltFile), readOnly)
	}
	return nil, fmt.Errorf("unsupported storage backend %s", backend)
}

// detectBackend reports which backend wrote dir.
func detectBackend(dir string) index.StorageBackend {
	if _, err := os.Stat(filepath.Join(dir, BoltFile)); err == nil {
		return index.BoltBackend
	}
	return index.FileBackend
}

// jsonMappings keeps each table in its own JSON file, replaced atomically.
type jsonMappings struct {
	dir string
}

func (j *jsonMappings) PutLexicon(lex index.Lexicon) error {
	return j.write(LexiconFile, lex)
}

func (j *jsonMappings) PutDocuments(dt index.DocTable) error {
	return j.write(DocsFile, dt)
}

func (j *jsonMappings) PutMeta(m index.Meta) error {
	return j.write(MetaFile, m)
}

func (j *jsonMappings) Lexicon() (index.Lexicon, error) {
	lex := make(index.Lexicon)
	return lex, j.read(LexiconFile, &lex)
}

func (j *jsonMappings) Documents() (index.DocTable, error) {
	dt := make(index.DocTable)
	return dt, j.read(DocsFile, &dt)
}

func (j *jsonMappings) Meta() (index.Meta, error) {
	var m index.Meta
	return m, j.read(MetaFile, &m)
}

func (j *jsonMappings) Close() error { return nil }

func (j *jsonMappings) write(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", name, err)
	}
	path := filepath.Join(j.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s: %w", name, err)
	}
	return nil
}

func (j *jsonMappings) read(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(j.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", name, errMissingMapping)
		}
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	return nil
}

// boltMappings keeps the tables as buckets of a single bolt database.
// Lexicon values are 16 bytes (offset, length); document values are 12
// bytes (length, code); the metadata record is JSON.
type boltMappings struct {
	db *bolt.DB
}

func openBoltMappings(path string, readOnly bool) (*boltMappings, error) {
	if readOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("opening mappings: %w", errMissingMapping)
		}
	}
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: 2 * time.Second, ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("opening bolt mappings: %w", err)
	}
	return &boltMappings{db: db}, nil
}

func (b *boltMappings) PutLexicon(lex index.Lexicon) error {
	return b.replaceBucket(lexiconBucket, func(bk *bolt.Bucket) error {
		for term, loc := range lex {
			v := make([]byte, 16)
			binary.LittleEndian.PutUint64(v[0:8], uint64(loc.Offset))
			binary.LittleEndian.PutUint64(v[8:16], uint64(loc.Length))
			if err := bk.Put([]byte(term), v); err != nil {
				return fmt.Errorf("putting term %q: %w", term, err)
			}
		}
		return nil
	})
}

func (b *boltMappings) PutDocuments(dt index.DocTable) error {
	return b.replaceBucket(docsBucket, func(bk *bolt.Bucket) error {
		for id, rec := range dt {
			v := make([]byte, 12)
			binary.LittleEndian.PutUint64(v[0:8], uint64(rec.Length))
			binary.LittleEndian.PutUint32(v[8:12], rec.Code)
			if err := bk.Put([]byte(id), v); err != nil {
				return fmt.Errorf("putting document %q: %w", id, err)
			}
		}
		return nil
	})
}

func (b *boltMappings) PutMeta(m index.Meta) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling meta: %w", err)
	}
	return b.replaceBucket(metaBucket, func(bk *bolt.Bucket) error {
		return bk.Put(metaKey, data)
	})
}

func (b *boltMappings) Lexicon() (index.Lexicon, error) {
	lex := make(index.Lexicon)
	err := b.forEach(lexiconBucket, func(k, v []byte) error {
		if len(v) != 16 {
			return fmt.Errorf("lexicon entry %q has %d bytes", k, len(v))
		}
		lex[string(k)] = index.Location{
			Offset: int64(binary.LittleEndian.Uint64(v[0:8])),
			Length: int64(binary.LittleEndian.Uint64(v[8:16])),
		}
		return nil
	})
	return lex, err
}

func (b *boltMappings) Documents() (index.DocTable, error) {
	dt := make(index.DocTable)
	err := b.forEach(docsBucket, func(k, v []byte) error {
		if len(v) != 12 {
			return fmt.Errorf("document entry %q has %d bytes", k, len(v))
		}
		dt[string(k)] = index.DocRecord{
			Length: int(binary.LittleEndian.Uint64(v[0:8])),
			Code:   binary.LittleEndian.Uint32(v[8:12]),
		}
		return nil
	})
	return dt, err
}

func (b *boltMappings) Meta() (index.Meta, error) {
	var m index.Meta
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(metaBucket)
		if bk == nil {
			return fmt.Errorf("meta bucket: %w", errMissingMapping)
		}
		data := bk.Get(metaKey)
		if data == nil {
			return fmt.Errorf("meta record: %w", errMissingMapping)
		}
		return json.Unmarshal(data, &m)
	})
	return m, err
}

func (b *boltMappings) Close() error {
	return b.db.Close()
}

func (b *boltMappings) replaceBucket(name []byte, fill func(*bolt.Bucket) error) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(name) != nil {
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("clearing bucket %s: %w", name, err)
			}
		}
		bk, err := tx.CreateBucket(name)
		if err != nil {
			return fmt.Errorf("creating bucket %s: %w", name, err)
		}
		return fill(bk)
	})
}

func (b *boltMappings) forEach(name []byte, fn func(k, v []byte) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(name)
		if bk == nil {
			return fmt.Errorf("bucket %s: %w", name, errMissingMapping)
		}
		return bk.ForEach(fn)
	})
}
