// Package evaluator resolves a parsed query tree to the ascending set of
// matching document codes.
package evaluator

import (
	"context"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/searcher/parser"
)

// Source supplies decoded postings and the set of every assigned code.
// A term absent from the index yields an empty list, not an error.
type Source interface {
	Postings(ctx context.Context, term string) (index.PostingList, error)
	Universe() *roaring.Bitmap
}

// Normalizer maps query text to index terms. *tokenizer.Tokenizer
// satisfies it.
type Normalizer interface {
	Terms(text string) []string
}

type Evaluator struct {
	src      Source
	norm     Normalizer
	skipping bool
}

// New returns an Evaluator. With skipping set, AND and phrase candidate
// intersection run over skip lists.
func New(src Source, norm Normalizer, skipping bool) *Evaluator {
	return &Evaluator{src: src, norm: norm, skipping: skipping}
}

// Evaluate returns the ascending codes matched by root.
func (e *Evaluator) Evaluate(ctx context.Context, root parser.Node) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch n := root.(type) {
	case parser.Empty:
		return nil, nil
	case parser.Term:
		terms := e.norm.Terms(n.Text)
		if len(terms) == 0 {
			return nil, nil
		}
		pl, err := e.src.Postings(ctx, terms[0])
		if err != nil {
			return nil, err
		}
		return pl.Codes(), nil
	case parser.Phrase:
		return e.phrase(ctx, e.norm.Terms(n.Text))
	case parser.Not:
		operand, err := e.Evaluate(ctx, n.Operand)
		if err != nil {
			return nil, err
		}
		return e.complement(operand), nil
	case parser.And:
		left, right, err := e.both(ctx, n.Left, n.Right)
		if err != nil {
			return nil, err
		}
		return e.intersect(left, right), nil
	case parser.Or:
		left, right, err := e.both(ctx, n.Left, n.Right)
		if err != nil {
			return nil, err
		}
		return Union(left, right), nil
	}
	return nil, fmt.Errorf("unsupported query node %T", root)
}

func (e *Evaluator) both(ctx context.Context, l, r parser.Node) ([]uint32, []uint32, error) {
	left, err := e.Evaluate(ctx, l)
	if err != nil {
		return nil, nil, err
	}
	right, err := e.Evaluate(ctx, r)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func (e *Evaluator) intersect(a, b []uint32) []uint32 {
	if e.skipping {
		return IntersectSkip(NewSkipList(a), NewSkipList(b))
	}
	return Intersect(a, b)
}

func (e *Evaluator) complement(codes []uint32) []uint32 {
	universe := e.src.Universe()
	if universe == nil {
		return nil
	}
	return roaring.AndNot(universe, roaring.BitmapOf(codes...)).ToArray()
}

// phrase keeps the documents holding every word at consecutive positions
// in the given order.
func (e *Evaluator) phrase(ctx context.Context, words []string) ([]uint32, error) {
	if len(words) == 0 {
		return nil, nil
	}
	lists := make([]index.PostingList, len(words))
	for i, w := range words {
		pl, err := e.src.Postings(ctx, w)
		if err != nil {
			return nil, err
		}
		if len(pl) == 0 {
			return nil, nil
		}
		lists[i] = pl
	}
	candidates := lists[0].Codes()
	for _, pl := range lists[1:] {
		candidates = e.intersect(candidates, pl.Codes())
	}
	out := candidates[:0]
	for _, code := range candidates {
		if adjacent(lists, code) {
			out = append(out, code)
		}
	}
	return out, nil
}

func adjacent(lists []index.PostingList, code uint32) bool {
	positions := make([][]int, len(lists))
	for k, pl := range lists {
		p, _ := pl.Find(code)
		positions[k] = p.Positions
	}
	for _, start := range positions[0] {
		ok := true
		for k := 1; k < len(positions); k++ {
			if !containsSorted(positions[k], start+k) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func containsSorted(xs []int, x int) bool {
	i := sort.SearchInts(xs, x)
	return i < len(xs) && xs[i] == x
}

// QueryTerms lists the index terms a query touches, in tree order with
// duplicates kept: the first normalised token of each TERM and every
// normalised token of each PHRASE, including those under NOT.
func QueryTerms(root parser.Node, norm Normalizer) []string {
	var out []string
	var walk func(parser.Node)
	walk = func(n parser.Node) {
		switch n := n.(type) {
		case parser.Term:
			if terms := norm.Terms(n.Text); len(terms) > 0 {
				out = append(out, terms[0])
			}
		case parser.Phrase:
			out = append(out, norm.Terms(n.Text)...)
		case parser.Not:
			walk(n.Operand)
		case parser.And:
			walk(n.Left)
			walk(n.Right)
		case parser.Or:
			walk(n.Left)
			walk(n.Right)
		}
	}
	walk(root)
	return out
}
