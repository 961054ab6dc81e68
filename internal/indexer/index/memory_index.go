package index

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/tokenizer"
)

// MemoryIndex aggregates term → code → positions for a single build. It is
// owned by one goroutine and never shared.
type MemoryIndex struct {
	index    map[string]map[uint32][]int
	docCount int
	size     int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index: make(map[string]map[uint32][]int),
	}
}

// AddDocument records every token of a document under its code. Tokens are
// expected in ascending position order, as the tokenizer emits them.
func (m *MemoryIndex) AddDocument(code uint32, tokens []tokenizer.Token) {
	for _, token := range tokens {
		docs, exists := m.index[token.Term]
		if !exists {
			docs = make(map[uint32][]int)
			m.index[token.Term] = docs
		}
		if _, seen := docs[code]; !seen {
			m.size += int64(len(token.Term) + 16)
		}
		docs[code] = append(docs[code], token.Position)
		m.size += 8
	}
	m.docCount++
}

// Snapshot returns the aggregated postings sorted by term, each list sorted
// by code.
func (m *MemoryIndex) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, len(m.index))
	for term, docs := range m.index {
		postings := make(PostingList, 0, len(docs))
		for code, positions := range docs {
			postings = append(postings, Posting{Code: code, Positions: positions})
		}
		sort.Slice(postings, func(i, j int) bool {
			return postings[i].Code < postings[j].Code
		})
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

// Size is a rough estimate of the bytes held by the aggregation.
func (m *MemoryIndex) Size() int64 {
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	return m.docCount
}

func (m *MemoryIndex) Terms() int {
	return len(m.index)
}
