package data

// Tokenizer splits raw text into a new sentence. Implementations must be
// deterministic: identical text yields an identical token sequence.
type Tokenizer interface {
	Tokenize(text string) *Sentence
}

// WhitespaceTokenizer splits text on whitespace. It is the default tokenizer
// for re-tokenizing marker-injected text, where the rewritten string is built
// from space-joined tokens and marker words.
type WhitespaceTokenizer struct{}

func (WhitespaceTokenizer) Tokenize(text string) *Sentence {
	return NewSentence(text)
}
