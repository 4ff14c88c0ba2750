package pipelines

import (
	"fmt"

	"github.com/knights-analytics/relex/data"
)

// Pooling operations supported for span pair features.
const (
	// PoolingFirstLast concatenates the first and last token embeddings of
	// both spans, producing a feature of length 4*E.
	PoolingFirstLast = "first_last"
	// PoolingFirst concatenates the first token embeddings of both spans,
	// producing a feature of length 2*E.
	PoolingFirst = "first"
)

// featureLength returns the pooled feature vector length for the pooling
// operation and embedding dimension. It is resolved once at pipeline
// construction, not per call.
func featureLength(poolingOperation string, embeddingDim int) (int, error) {
	switch poolingOperation {
	case PoolingFirst:
		return 2 * embeddingDim, nil
	case PoolingFirstLast:
		return 4 * embeddingDim, nil
	default:
		return 0, fmt.Errorf("pooling operation %s not recognized", poolingOperation)
	}
}

// poolPair reduces a candidate pair to one fixed-length feature vector by
// concatenating boundary token embeddings. For a single-token span first and
// last resolve to the same token, its embedding then appears twice under
// first_last pooling.
func poolPair(pair *data.CandidatePair, poolingOperation string) ([]float32, error) {
	switch poolingOperation {
	case PoolingFirst:
		return concatEmbeddings(pair.Head.First(), pair.Tail.First())
	case PoolingFirstLast:
		return concatEmbeddings(pair.Head.First(), pair.Head.Last(), pair.Tail.First(), pair.Tail.Last())
	default:
		return nil, fmt.Errorf("pooling operation %s not recognized", poolingOperation)
	}
}

func concatEmbeddings(tokens ...*data.Token) ([]float32, error) {
	length := 0
	for _, token := range tokens {
		if len(token.Embedding) == 0 {
			return nil, fmt.Errorf("token %q at position %d has no embedding, was the embedder run on this batch?", token.Text, token.Position)
		}
		length += len(token.Embedding)
	}
	out := make([]float32, 0, length)
	for _, token := range tokens {
		out = append(out, token.Embedding...)
	}
	return out, nil
}
