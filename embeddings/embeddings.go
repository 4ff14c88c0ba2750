// Package embeddings provides token-level embedders for relation candidate
// feature construction.
package embeddings

import (
	"github.com/knights-analytics/relex/data"
)

// TokenEmbeddings populates a fixed-dimension embedding vector on every token
// of every sentence in a batch. Embed is invoked once per batch, before any
// span pooling reads the vectors, and must be safe to call repeatedly on the
// same sentences.
type TokenEmbeddings interface {
	Embed(sentences []*data.Sentence) error
	Dim() int
}
