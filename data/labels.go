package data

// NoRelation is the reserved label assigned to a candidate pair for which no
// gold relation annotation exists.
const NoRelation = "O"

// EntityLabel tags a span with an entity type.
type EntityLabel struct {
	Span  *Span
	Value string
}

// RelationLabel is a directed relation annotation between two entity spans.
// Head and tail are ordered, the relation (A, B) is distinct from (B, A).
// Score carries the annotation or prediction confidence.
type RelationLabel struct {
	Head  *Span
	Tail  *Span
	Value string
	Score float32
}

// CandidatePair is an enumerated (head, tail) span combination considered for
// relation classification. Label is either a matched gold relation value or
// the NoRelation sentinel. Candidate pairs are created per invocation and
// discarded after feature extraction.
type CandidatePair struct {
	Head  *Span
	Tail  *Span
	Label string
}
