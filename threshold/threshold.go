// Package threshold implements the signing/witness threshold evaluator
// (§4.C): an integer "any m-of-n" threshold or a list of weighted
// clauses, each satisfied when its selected weights sum to at least one.
package threshold

import (
	"fmt"
	"math/big"
	"strings"
)

// Spec is a signing or witness threshold. Exactly one of the two shapes
// is populated: Numeric (M > 0, Clauses nil) or Weighted (Clauses non-nil).
type Spec struct {
	Numeric int
	Clauses [][]*big.Rat
}

// NewNumeric builds an "any m-of-n" threshold.
func NewNumeric(m int) Spec {
	return Spec{Numeric: m}
}

// NewWeighted builds a weighted-clause threshold from string weights
// like "1/2", "1", "1/3" grouped into clauses.
func NewWeighted(clauses [][]string) (Spec, error) {
	out := make([][]*big.Rat, len(clauses))
	for i, clause := range clauses {
		rats := make([]*big.Rat, len(clause))
		for j, w := range clause {
			r, ok := new(big.Rat).SetString(w)
			if !ok {
				return Spec{}, fmt.Errorf("threshold: invalid weight %q", w)
			}
			if r.Sign() < 0 {
				return Spec{}, fmt.Errorf("threshold: negative weight %q", w)
			}
			rats[j] = r
		}
		out[i] = rats
	}
	return Spec{Clauses: out}, nil
}

// IsWeighted reports whether this is a fractional-weight threshold
// rather than a plain integer one.
func (s Spec) IsWeighted() bool {
	return s.Clauses != nil
}

// Size is the minimum number of keys this threshold assumes: for a
// numeric threshold, the threshold value itself (an m-of-n threshold is
// meaningless with fewer than m keys); for a weighted threshold, the sum
// of clause lengths (§3 invariant 4: key-list length must be ≥ Size).
func (s Spec) Size() int {
	if !s.IsWeighted() {
		return s.Numeric
	}
	n := 0
	for _, clause := range s.Clauses {
		n += len(clause)
	}
	return n
}

// Satisfy reports whether the given set of verified, zero-based
// signature indices satisfies the threshold. For a numeric threshold,
// len(indices) >= Numeric. For a weighted threshold, every clause's
// selected weights must sum to >= 1; clause membership is by position:
// clause 0 covers indices [0, len(clause0)), clause 1 covers the next
// span, and so on, matching the flattened key-list order keys are
// declared in.
func (s Spec) Satisfy(indices map[int]bool) bool {
	if !s.IsWeighted() {
		return len(indices) >= s.Numeric
	}
	offset := 0
	for _, clause := range s.Clauses {
		sum := new(big.Rat)
		for j, w := range clause {
			if indices[offset+j] {
				sum.Add(sum, w)
			}
		}
		if sum.Cmp(big.NewRat(1, 1)) < 0 {
			return false
		}
		offset += len(clause)
	}
	return true
}

// Limen renders the canonical byte-string encoding of the threshold used
// inside the next-key commitment digest (§4.D). Numeric thresholds
// encode as lowercase hex with no leading zero; weighted thresholds
// encode as clauses joined by "&", weights within a clause joined by
// ",", matching the textual weight representation so the same threshold
// always produces the same limen regardless of how it was constructed.
func (s Spec) Limen() []byte {
	if !s.IsWeighted() {
		return []byte(fmt.Sprintf("%x", s.Numeric))
	}
	clauseStrs := make([]string, len(s.Clauses))
	for i, clause := range s.Clauses {
		weightStrs := make([]string, len(clause))
		for j, w := range clause {
			weightStrs[j] = w.RatString()
		}
		clauseStrs[i] = strings.Join(weightStrs, ",")
	}
	return []byte(strings.Join(clauseStrs, "&"))
}

// IndicesFrom converts a slice of verified signature indices into the
// set representation Satisfy expects, collapsing duplicates.
func IndicesFrom(idx []int) map[int]bool {
	out := make(map[int]bool, len(idx))
	for _, i := range idx {
		out[i] = true
	}
	return out
}
