package pipelines

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knights-analytics/relex/data"
)

// Marker tokens inserted around the head and tail mention of a candidate pair.
const (
	headOpenMarker  = "<e1>"
	headCloseMarker = "</e1>"
	tailOpenMarker  = "<e2>"
	tailCloseMarker = "</e2>"
)

// MarkerInjector rewrites a sentence so that a designated (head, tail) entity
// pair is bracketed with <e1>...</e1> and <e2>...</e2> boundary markers. The
// rewritten text is re-tokenized and two new single-token spans pointing at
// the marked mentions in the new token stream are returned.
//
// Marker placement tracks only the first token of each span, and the closing
// marker fires on position equality with the span's last token. Interior
// tokens of multi-token spans are copied through unchanged, but nested or
// overlapping head/tail spans are not supported and their output is undefined.
type MarkerInjector struct {
	Tokenizer data.Tokenizer
}

// NewMarkerInjector builds a marker injector. A nil tokenizer falls back to
// whitespace tokenization, which round-trips the space-joined rewritten text.
func NewMarkerInjector(tokenizer data.Tokenizer) *MarkerInjector {
	if tokenizer == nil {
		tokenizer = data.WhitespaceTokenizer{}
	}
	return &MarkerInjector{Tokenizer: tokenizer}
}

// AddEntityMarkers rewrites the sentence with boundary markers around head and
// tail. <e1> always brackets the head mention and <e2> the tail mention,
// whichever of the two occurs earlier in the sentence. The returned spans are
// in (head, tail) order regardless of their textual order, each a single-token
// span addressing the first token of the marked mention in the new sentence.
//
// The pass walks the original tokens once, maintaining the accumulated output
// text, a position counter for the new token stream, and the recorded start
// position of each entity.
func (m *MarkerInjector) AddEntityMarkers(sentence *data.Sentence, head, tail *data.Span) (*data.Sentence, *data.Span, *data.Span, error) {
	if sentence == nil || head == nil || tail == nil {
		return nil, nil, nil, errors.New("marker injection requires a sentence and two spans")
	}

	var text strings.Builder
	offset := 0
	headStart := -1
	tailStart := -1

	for _, token := range sentence.Tokens() {
		if token.Position == tail.First().Position {
			offset++
			text.WriteString(" " + tailOpenMarker)
			tailStart = offset
		}
		if token.Position == head.First().Position {
			offset++
			text.WriteString(" " + headOpenMarker)
			headStart = offset
		}

		text.WriteString(" " + token.Text)

		if token.Position == head.Last().Position {
			offset++
			text.WriteString(" " + headCloseMarker)
		}
		if token.Position == tail.Last().Position {
			offset++
			text.WriteString(" " + tailCloseMarker)
		}

		offset++
	}

	if headStart < 0 || tailStart < 0 {
		return nil, nil, nil, errors.New("head and tail spans must belong to the sentence")
	}

	expanded := m.Tokenizer.Tokenize(text.String())
	if headStart >= expanded.Len() || tailStart >= expanded.Len() {
		return nil, nil, nil, fmt.Errorf("re-tokenized sentence of length %d does not cover recorded mention positions %d and %d",
			expanded.Len(), headStart, tailStart)
	}

	expandedHead, err := expanded.Span(headStart, headStart+1)
	if err != nil {
		return nil, nil, nil, err
	}
	expandedTail, err := expanded.Span(tailStart, tailStart+1)
	if err != nil {
		return nil, nil, nil, err
	}
	return expanded, expandedHead, expandedTail, nil
}
