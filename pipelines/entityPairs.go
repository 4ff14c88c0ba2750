package pipelines

import (
	"sort"

	"golang.org/x/exp/maps"

	"github.com/knights-analytics/relex/data"
)

// positionKey builds the deterministic key identifying an ordered (head, tail)
// span pair within a sentence. Direction matters: positionKey(a, b) and
// positionKey(b, a) differ for distinct spans.
func positionKey(head, tail *data.Span) string {
	return head.IDText() + " -> " + tail.IDText()
}

// goldLabelIndex maps each ordered span pair annotated in one sentence to its
// relation label. The index is rebuilt per sentence and discarded afterwards,
// sentences are not guaranteed to be reused across calls. If the annotations
// contain duplicates for the same ordered pair, the last one written wins.
type goldLabelIndex map[string]*data.RelationLabel

func newGoldLabelIndex(sentence *data.Sentence, labelType string) goldLabelIndex {
	index := goldLabelIndex{}
	for _, label := range sentence.RelationLabels(labelType) {
		index[positionKey(label.Head, label.Tail)] = label
	}
	return index
}

// PairFilter whitelists (head entity type, tail entity type) combinations.
// A nil *PairFilter allows every combination.
type PairFilter struct {
	allowed map[[2]string]struct{}
}

// NewPairFilter builds a filter from the allowed (head type, tail type) tuples.
func NewPairFilter(pairs [][2]string) *PairFilter {
	filter := &PairFilter{allowed: make(map[[2]string]struct{}, len(pairs))}
	for _, pair := range pairs {
		filter.allowed[pair] = struct{}{}
	}
	return filter
}

// Allows reports whether the (head type, tail type) combination passes the filter.
func (f *PairFilter) Allows(headType, tailType string) bool {
	if f == nil {
		return true
	}
	_, ok := f.allowed[[2]string{headType, tailType}]
	return ok
}

// Pairs returns the allowed combinations in deterministic order, for
// configuration export.
func (f *PairFilter) Pairs() [][2]string {
	if f == nil {
		return nil
	}
	pairs := maps.Keys(f.allowed)
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	return pairs
}

// EnumerateCandidates walks the ordered cross product of the entity spans
// tagged on a sentence and produces one candidate pair per (head, tail)
// combination, excluding self-pairs by structural span equality. The filter is
// applied before gold lookup, so a filtered-out pair never appears in the
// output even when it is gold-annotated. A pair with no gold annotation is
// labelled NoRelation, or skipped entirely when goldPairsOnly is set.
//
// The output preserves (outer, inner) enumeration order over the entity list
// as provided by the annotations; label and feature vectors downstream align
// with this order positionally.
func EnumerateCandidates(sentence *data.Sentence, labelType, entityLabelType string, filter *PairFilter, goldPairsOnly bool) []*data.CandidatePair {
	gold := newGoldLabelIndex(sentence, labelType)
	spanLabels := sentence.EntityLabels(entityLabelType)

	var pairs []*data.CandidatePair
	for _, spanLabel := range spanLabels {
		for _, spanLabel2 := range spanLabels {
			if spanLabel.Span.Equal(spanLabel2.Span) {
				continue
			}
			if !filter.Allows(spanLabel.Value, spanLabel2.Value) {
				continue
			}

			label := data.NoRelation
			if goldLabel, ok := gold[positionKey(spanLabel.Span, spanLabel2.Span)]; ok {
				label = goldLabel.Value
			} else if goldPairsOnly {
				continue
			}

			pairs = append(pairs, &data.CandidatePair{
				Head:  spanLabel.Span,
				Tail:  spanLabel2.Span,
				Label: label,
			})
		}
	}
	return pairs
}
