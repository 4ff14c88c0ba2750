package data

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Span is a non-empty ordered group of tokens belonging to one sentence that
// is treated as a single entity mention. Equality is structural over the
// member token positions, not object identity, so a span rebuilt from the same
// positions compares equal to the original.
type Span struct {
	tokens []*Token
}

// NewSpan builds a span from the given tokens. An empty token list is a
// precondition violation and is rejected here rather than tolerated downstream.
func NewSpan(tokens []*Token) (*Span, error) {
	if len(tokens) == 0 {
		return nil, errors.New("a span requires at least one token")
	}
	return &Span{tokens: tokens}, nil
}

// Span returns the span covering tokens [start, end) of the sentence.
func (s *Sentence) Span(start, end int) (*Span, error) {
	if start < 0 || end > len(s.tokens) || start >= end {
		return nil, fmt.Errorf("span [%d, %d) out of range for sentence of length %d", start, end, len(s.tokens))
	}
	return &Span{tokens: s.tokens[start:end]}, nil
}

// Tokens returns the member tokens in order.
func (s *Span) Tokens() []*Token {
	return s.tokens
}

// First returns the first token of the span.
func (s *Span) First() *Token {
	return s.tokens[0]
}

// Last returns the last token of the span. For single-token spans this is the
// same token as First.
func (s *Span) Last() *Token {
	return s.tokens[len(s.tokens)-1]
}

// Text returns the surface form of the span, tokens joined by a space.
func (s *Span) Text() string {
	words := make([]string, len(s.tokens))
	for i, token := range s.tokens {
		words[i] = token.Text
	}
	return strings.Join(words, " ")
}

// Positions returns the sentence positions of the member tokens in order.
func (s *Span) Positions() []int {
	positions := make([]int, len(s.tokens))
	for i, token := range s.tokens {
		positions[i] = token.Position
	}
	return positions
}

// IDText is a deterministic textual identifier for the span within its
// sentence. Identical spans always produce identical identifiers, which makes
// the value usable as a map key component.
func (s *Span) IDText() string {
	positions := make([]string, len(s.tokens))
	for i, token := range s.tokens {
		positions[i] = strconv.Itoa(token.Position)
	}
	return fmt.Sprintf("%s (%s)", s.Text(), strings.Join(positions, ","))
}

// Equal reports whether both spans cover the same ordered token positions.
func (s *Span) Equal(other *Span) bool {
	if other == nil || len(s.tokens) != len(other.tokens) {
		return false
	}
	for i, token := range s.tokens {
		if token.Position != other.tokens[i].Position {
			return false
		}
	}
	return true
}
