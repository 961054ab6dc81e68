package index

import (
	"fmt"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/selfindex/pkg/errors"
)

// Document is one tokenized input to a build.
type Document struct {
	ID     string
	Tokens []tokenizer.Token
}

// Posting holds the ascending token positions of a term inside one document.
type Posting struct {
	Code      uint32 `json:"code"`
	Positions []int  `json:"positions"`
}

// Frequency is the term frequency, always len(Positions).
func (p Posting) Frequency() int {
	return len(p.Positions)
}

// PostingList is ordered by strictly ascending Code.
type PostingList []Posting

func (pl PostingList) Codes() []uint32 {
	codes := make([]uint32, len(pl))
	for i, p := range pl {
		codes[i] = p.Code
	}
	return codes
}

// Find locates the posting for code with a binary search.
func (pl PostingList) Find(code uint32) (Posting, bool) {
	i := sort.Search(len(pl), func(i int) bool { return pl[i].Code >= code })
	if i < len(pl) && pl[i].Code == code {
		return pl[i], true
	}
	return Posting{}, false
}

type TermEntry struct {
	Term     string
	Postings PostingList
}

// Flatten serialises a postings block as [df, code, tf, pos..., code, tf, pos...].
func Flatten(pl PostingList) []int {
	n := 1
	for _, p := range pl {
		n += 2 + len(p.Positions)
	}
	out := make([]int, 0, n)
	out = append(out, len(pl))
	for _, p := range pl {
		out = append(out, int(p.Code), len(p.Positions))
		out = append(out, p.Positions...)
	}
	return out
}

// Unflatten parses a flattened block and checks its invariants: codes are
// strictly ascending and positive, every tf matches the positions that
// follow, and df matches the number of groups.
func Unflatten(xs []int) (PostingList, error) {
	if len(xs) == 0 {
		return nil, corrupt("empty block")
	}
	df := xs[0]
	if df < 0 || df > len(xs) {
		return nil, corrupt("document frequency %d out of range", df)
	}
	pl := make(PostingList, 0, df)
	i := 1
	var prev uint32
	for g := 0; g < df; g++ {
		if i+2 > len(xs) {
			return nil, corrupt("group %d header past end of block", g)
		}
		code, tf := xs[i], xs[i+1]
		i += 2
		if code <= 0 || uint32(code) <= prev {
			return nil, corrupt("document code %d not ascending after %d", code, prev)
		}
		if tf < 0 || i+tf > len(xs) {
			return nil, corrupt("term frequency %d for code %d past end of block", tf, code)
		}
		positions := make([]int, tf)
		copy(positions, xs[i:i+tf])
		for k, pos := range positions {
			if pos < 0 || (k > 0 && pos <= positions[k-1]) {
				return nil, corrupt("positions for code %d not ascending", code)
			}
		}
		i += tf
		pl = append(pl, Posting{Code: uint32(code), Positions: positions})
		prev = uint32(code)
	}
	if i != len(xs) {
		return nil, corrupt("%d trailing values after %d groups", len(xs)-i, df)
	}
	return pl, nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("malformed postings block: %s: %w", fmt.Sprintf(format, args...), apperrors.ErrStorageIO)
}

// Location addresses a postings block inside the blob area.
type Location struct {
	Offset int64 `json:"offset"`
	Length int64 `json:"length"`
}

// Lexicon maps each indexed term to its postings block.
type Lexicon map[string]Location

type DocRecord struct {
	Length int    `json:"length"`
	Code   uint32 `json:"code"`
}

// DocTable maps external document identifiers to their record.
type DocTable map[string]DocRecord

// Reverse builds the code → identifier map and verifies it is a bijection
// over 1..len(dt).
func (dt DocTable) Reverse() (map[uint32]string, error) {
	rev := make(map[uint32]string, len(dt))
	for id, rec := range dt {
		if rec.Code == 0 || int(rec.Code) > len(dt) {
			return nil, corrupt("document %q has code %d outside 1..%d", id, rec.Code, len(dt))
		}
		if other, dup := rev[rec.Code]; dup {
			return nil, corrupt("code %d assigned to both %q and %q", rec.Code, other, id)
		}
		rev[rec.Code] = id
	}
	return rev, nil
}

// IDs returns document identifiers ordered by code.
func (dt DocTable) IDs() []string {
	ids := make([]string, 0, len(dt))
	for id := range dt {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return dt[ids[i]].Code < dt[ids[j]].Code
	})
	return ids
}

const FormatVersion = 1

// Meta is the index metadata record written at the end of every build.
type Meta struct {
	FormatVersion int       `json:"format_version"`
	Options       Options   `json:"config"`
	N             int       `json:"N"`
	Terms         int       `json:"terms"`
	PostingsSize  int64     `json:"postings_size"`
	PostingsCRC   uint32    `json:"postings_crc32"`
	BuiltAt       time.Time `json:"built_at"`
}

// Generation identifies a build; it changes every time an index is rebuilt.
func (m Meta) Generation() int64 {
	return m.BuiltAt.UnixNano()
}
