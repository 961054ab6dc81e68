package ranker

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/index"
)

// DefaultLimit is the number of results returned when no limit is given.
const DefaultLimit = 50

type ScoredDoc struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// Scored is a ranked document code.
type Scored struct {
	Code  uint32
	Score float64
}

// TermPostings pairs a query term with its decoded postings. A term may
// appear more than once in a query; each occurrence contributes.
type TermPostings struct {
	Term     string
	Postings index.PostingList
}

type RankParams struct {
	Model     index.InfoModel
	Mode      index.QueryMode
	TotalDocs int
	Limit     int
}

// Rank scores every matched code and returns them by descending score,
// ties broken by ascending code, truncated to the limit. Term-at-a-time and
// document-at-a-time accumulation add contributions in the same order and
// therefore produce identical scores.
func Rank(matched []uint32, terms []TermPostings, params RankParams) []Scored {
	var result []Scored
	switch {
	case params.Model == index.Boolean:
		result = make([]Scored, len(matched))
		for i, code := range matched {
			result[i] = Scored{Code: code, Score: 1.0}
		}
	case params.Mode == index.DocAtATime:
		result = documentAtATime(matched, terms, params)
	default:
		result = termAtATime(matched, terms, params)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].Code < result[j].Code
	})
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result
}

func termAtATime(matched []uint32, terms []TermPostings, params RankParams) []Scored {
	acc := make(map[uint32]float64, len(matched))
	for _, code := range matched {
		acc[code] = 0
	}
	for _, t := range terms {
		idf := computeIDF(params.TotalDocs, len(t.Postings))
		for _, p := range t.Postings {
			if score, ok := acc[p.Code]; ok {
				acc[p.Code] = score + contribution(params.Model, p.Frequency(), idf)
			}
		}
	}
	result := make([]Scored, 0, len(acc))
	for _, code := range matched {
		result = append(result, Scored{Code: code, Score: acc[code]})
	}
	return result
}

func documentAtATime(matched []uint32, terms []TermPostings, params RankParams) []Scored {
	idfs := make([]float64, len(terms))
	for i, t := range terms {
		idfs[i] = computeIDF(params.TotalDocs, len(t.Postings))
	}
	result := make([]Scored, 0, len(matched))
	for _, code := range matched {
		var score float64
		for i, t := range terms {
			if p, ok := t.Postings.Find(code); ok {
				score += contribution(params.Model, p.Frequency(), idfs[i])
			}
		}
		result = append(result, Scored{Code: code, Score: score})
	}
	return result
}

func contribution(model index.InfoModel, tf int, idf float64) float64 {
	if tf == 0 {
		return 0
	}
	if model == index.WordCount {
		return float64(tf)
	}
	return (1 + math.Log(float64(tf))) * idf
}

func computeIDF(totalDocs int, docFreq int) float64 {
	return math.Log(float64(totalDocs+1)/float64(docFreq+1)) + 1
}
