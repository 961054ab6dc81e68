package evaluator

import "math"

// NoSkip marks an entry without a forward pointer.
const NoSkip = -1

// SkipList annotates an ascending code list with forward pointers every
// ⌊√L⌋ entries so intersections can jump over runs of non-matches.
type SkipList struct {
	codes  []uint32
	skips  []int
	stride int
}

func NewSkipList(codes []uint32) *SkipList {
	stride := int(math.Sqrt(float64(len(codes))))
	if stride < 1 {
		stride = 1
	}
	skips := make([]int, len(codes))
	for i := range codes {
		if t := i + stride; t < len(codes) {
			skips[i] = t
		} else {
			skips[i] = NoSkip
		}
	}
	return &SkipList{codes: codes, skips: skips, stride: stride}
}

func (s *SkipList) Len() int { return len(s.codes) }
func (s *SkipList) Stride() int { return s.stride }

// Target returns the skip target of entry i, or NoSkip.
func (s *SkipList) Target(i int) int {
	return s.skips[i]
}

// advance moves from i towards the first entry >= code, taking skip
// pointers while they do not overshoot.
func (s *SkipList) advance(i int, code uint32) int {
	for i < len(s.codes) && s.codes[i] < code {
		if t := s.skips[i]; t != NoSkip && s.codes[t] <= code {
			i = t
			continue
		}
		i++
	}
	return i
}

// IntersectSkip intersects two skip lists. The result is identical to a
// linear merge of the underlying code lists.
func IntersectSkip(a, b *SkipList) []uint32 {
	out := make([]uint32, 0, min(a.Len(), b.Len()))
	i, j := 0, 0
	for i < a.Len() && j < b.Len() {
		ca, cb := a.codes[i], b.codes[j]
		switch {
		case ca == cb:
			out = append(out, ca)
			i++
			j++
		case ca < cb:
			i = a.advance(i, cb)
		default:
			j = b.advance(j, ca)
		}
	}
	return out
}
