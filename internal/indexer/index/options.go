package index

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/compress"
	apperrors "github.com/Adithya-Monish-Kumar-K/selfindex/pkg/errors"
)

// InfoModel selects how matched documents are scored.
type InfoModel int

const (
	Boolean InfoModel = iota
	WordCount
	TFIDF
)

var infoModelNames = map[InfoModel]string{
	Boolean:   "BOOLEAN",
	WordCount: "WORDCOUNT",
	TFIDF:     "TFIDF",
}

func (m InfoModel) String() string { return enumName(infoModelNames, m) }

func ParseInfoModel(s string) (InfoModel, error) {
	return parseEnum(infoModelNames, "information model", s, Boolean)
}

func (m InfoModel) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *InfoModel) UnmarshalText(b []byte) error {
	v, err := ParseInfoModel(string(b))
	*m = v
	return err
}

// StorageBackend selects where the lexicon, document table and metadata
// live. The postings blob is a flat file for every backend.
type StorageBackend int

const (
	FileBackend StorageBackend = iota
	BoltBackend
)

var backendNames = map[StorageBackend]string{
	FileBackend: "FILE",
	BoltBackend: "BOLT",
}

func (b StorageBackend) String() string { return enumName(backendNames, b) }

func ParseStorageBackend(s string) (StorageBackend, error) {
	if strings.EqualFold(strings.TrimSpace(s), "CUSTOM") {
		return FileBackend, nil
	}
	return parseEnum(backendNames, "storage backend", s, FileBackend)
}

func (b StorageBackend) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

func (b *StorageBackend) UnmarshalText(p []byte) error {
	v, err := ParseStorageBackend(string(p))
	*b = v
	return err
}

// QueryMode selects term-at-a-time or document-at-a-time score accumulation.
type QueryMode int

const (
	TermAtATime QueryMode = iota
	DocAtATime
)

var queryModeNames = map[QueryMode]string{
	TermAtATime: "TAAT",
	DocAtATime:  "DAAT",
}

func (q QueryMode) String() string { return enumName(queryModeNames, q) }

func ParseQueryMode(s string) (QueryMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TERMATAT", "TERM_AT_A_TIME":
		return TermAtATime, nil
	case "DOCATAT", "DOC_AT_A_TIME":
		return DocAtATime, nil
	}
	return parseEnum(queryModeNames, "query-processing mode", s, TermAtATime)
}

func (q QueryMode) MarshalText() ([]byte, error) { return []byte(q.String()), nil }

func (q *QueryMode) UnmarshalText(b []byte) error {
	v, err := ParseQueryMode(string(b))
	*q = v
	return err
}

// Optimization selects query-time acceleration. Only Skipping changes the
// evaluation path; Thresholding and EarlyStopping are reserved.
type Optimization int

const (
	NoOptimization Optimization = iota
	Skipping
	Thresholding
	EarlyStopping
)

var optimizationNames = map[Optimization]string{
	NoOptimization: "NONE",
	Skipping:       "SKIPPING",
	Thresholding:   "THRESHOLDING",
	EarlyStopping:  "EARLY_STOPPING",
}

func (o Optimization) String() string { return enumName(optimizationNames, o) }

func ParseOptimization(s string) (Optimization, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NULL":
		return NoOptimization, nil
	case "EARLYSTOPPING":
		return EarlyStopping, nil
	}
	return parseEnum(optimizationNames, "optimization mode", s, NoOptimization)
}

// Reserved reports whether o is accepted but has no effect.
func (o Optimization) Reserved() bool {
	return o == Thresholding || o == EarlyStopping
}

func (o Optimization) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Optimization) UnmarshalText(b []byte) error {
	v, err := ParseOptimization(string(b))
	*o = v
	return err
}

// Options is the five-way index configuration recorded in every index's
// metadata.
type Options struct {
	Info         InfoModel      `json:"info"`
	Storage      StorageBackend `json:"dstore"`
	QueryProc    QueryMode      `json:"qproc"`
	Compression  compress.Mode  `json:"compr"`
	Optimization Optimization   `json:"optim"`
}

// ParseOptions builds Options from their textual names. Empty strings take
// the default of each option.
func ParseOptions(info, storage, qproc, compression, optim string) (Options, error) {
	var (
		opts Options
		err  error
	)
	if opts.Info, err = ParseInfoModel(info); err != nil {
		return Options{}, err
	}
	if opts.Storage, err = ParseStorageBackend(storage); err != nil {
		return Options{}, err
	}
	if opts.QueryProc, err = ParseQueryMode(qproc); err != nil {
		return Options{}, err
	}
	if opts.Compression, err = compress.ParseMode(compression); err != nil {
		return Options{}, err
	}
	if opts.Optimization, err = ParseOptimization(optim); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func enumName[T ~int](names map[T]string, v T) string {
	if name, ok := names[v]; ok {
		return name
	}
	return fmt.Sprintf("%d", int(v))
}

func parseEnum[T ~int](names map[T]string, kind, s string, def T) (T, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return def, nil
	}
	for v, name := range names {
		if name == s {
			return v, nil
		}
	}
	return def, fmt.Errorf("unknown %s %q: %w", kind, s, apperrors.ErrInvalidInput)
}
