package data

import (
	"strings"
)

// Token is a single word-level token within a sentence. Position is the token
// index in the owning sentence and never changes after construction. The
// embedding slice is nil until a TokenEmbeddings implementation populates it.
type Token struct {
	Text      string
	Position  int
	Embedding []float32
	sentence  *Sentence
}

// Sentence returns the sentence that owns this token.
func (t *Token) Sentence() *Sentence {
	return t.sentence
}

// Sentence owns an ordered sequence of tokens plus the entity and relation
// labels attached to them. A sentence produced by re-tokenizing rewritten text
// is a new sentence with its own tokens, it is never shared with the original.
type Sentence struct {
	tokens    []*Token
	entities  map[string][]*EntityLabel
	relations map[string][]*RelationLabel
}

// NewSentence builds a sentence by whitespace-splitting text. Splitting is
// deterministic for identical input, which makes it usable as the default
// tokenizer for marker injection.
func NewSentence(text string) *Sentence {
	return NewSentenceFromTokens(strings.Fields(text))
}

// NewSentenceFromTokens builds a sentence from pre-split words.
func NewSentenceFromTokens(words []string) *Sentence {
	sentence := &Sentence{
		tokens:    make([]*Token, len(words)),
		entities:  map[string][]*EntityLabel{},
		relations: map[string][]*RelationLabel{},
	}
	for i, word := range words {
		sentence.tokens[i] = &Token{Text: word, Position: i, sentence: sentence}
	}
	return sentence
}

// Tokens returns the tokens of the sentence in order.
func (s *Sentence) Tokens() []*Token {
	return s.tokens
}

// Token returns the token at position i.
func (s *Sentence) Token(i int) *Token {
	return s.tokens[i]
}

// Len returns the number of tokens in the sentence.
func (s *Sentence) Len() int {
	return len(s.tokens)
}

// Text returns the surface form of the sentence, tokens joined by a space.
func (s *Sentence) Text() string {
	words := make([]string, len(s.tokens))
	for i, token := range s.tokens {
		words[i] = token.Text
	}
	return strings.Join(words, " ")
}

// AddEntityLabel attaches an entity annotation of the given label type.
func (s *Sentence) AddEntityLabel(labelType string, span *Span, value string) {
	s.entities[labelType] = append(s.entities[labelType], &EntityLabel{Span: span, Value: value})
}

// EntityLabels returns the entity annotations of the given label type in the
// order they were added. Callers must not rely on any other ordering.
func (s *Sentence) EntityLabels(labelType string) []*EntityLabel {
	return s.entities[labelType]
}

// AddRelationLabel attaches a relation annotation of the given label type.
func (s *Sentence) AddRelationLabel(labelType string, label *RelationLabel) {
	s.relations[labelType] = append(s.relations[labelType], label)
}

// RelationLabels returns the relation annotations of the given label type in
// the order they were added.
func (s *Sentence) RelationLabels(labelType string) []*RelationLabel {
	return s.relations[labelType]
}
