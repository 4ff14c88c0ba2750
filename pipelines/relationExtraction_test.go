package pipelines

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/knights-analytics/relex/data"
)

// positionEmbedder assigns every token a deterministic embedding derived from
// its sentence position, standing in for a transformer encoder.
type positionEmbedder struct {
	dim   int
	calls int
}

func (e *positionEmbedder) Embed(sentences []*data.Sentence) error {
	e.calls++
	for _, sentence := range sentences {
		for _, token := range sentence.Tokens() {
			embedding := make([]float32, e.dim)
			for i := range embedding {
				embedding[i] = float32(token.Position) + float32(i)/10
			}
			token.Embedding = embedding
		}
	}
	return nil
}

func (e *positionEmbedder) Dim() int {
	return e.dim
}

// countingRegularizer records whether the pipeline invoked it.
type countingRegularizer struct {
	applied int
}

func (r *countingRegularizer) Apply(_ *tensor.Dense) error {
	r.applied++
	return nil
}

func newTestPipeline(t *testing.T, emb *positionEmbedder, options ...PipelineOption[*RelationExtractionPipeline]) *RelationExtractionPipeline {
	t.Helper()
	allOptions := append([]PipelineOption[*RelationExtractionPipeline]{
		WithLabelType("relation"),
		WithEntityLabelType("ner"),
	}, options...)
	pipeline, err := NewRelationExtractionPipeline(PipelineConfig[*RelationExtractionPipeline]{
		Name:    "testPipeline",
		Options: allOptions,
	}, emb)
	require.NoError(t, err)
	return pipeline
}

func TestPipelineDefaults(t *testing.T) {
	pipeline := newTestPipeline(t, &positionEmbedder{dim: 3})
	assert.Equal(t, PoolingFirstLast, pipeline.PoolingOperation)
	assert.Equal(t, float32(0.1), pipeline.LockedDropoutValue)
	assert.Equal(t, 12, pipeline.FeatureLength())
	assert.False(t, pipeline.TrainOnGoldPairsOnly)
}

func TestPipelineValidation(t *testing.T) {
	_, err := NewRelationExtractionPipeline(PipelineConfig[*RelationExtractionPipeline]{}, nil)
	assert.Error(t, err)

	_, err = NewRelationExtractionPipeline(PipelineConfig[*RelationExtractionPipeline]{
		Options: []PipelineOption[*RelationExtractionPipeline]{WithLabelType("relation")},
	}, &positionEmbedder{dim: 3})
	assert.Error(t, err, "missing entity label type must be rejected")

	_, err = NewRelationExtractionPipeline(PipelineConfig[*RelationExtractionPipeline]{
		Options: []PipelineOption[*RelationExtractionPipeline]{
			WithLabelType("relation"),
			WithEntityLabelType("ner"),
			WithDropout(1.0),
		},
	}, &positionEmbedder{dim: 3})
	assert.Error(t, err, "dropout rate 1.0 must be rejected")
}

func TestRunBatchFeaturesAndLabels(t *testing.T) {
	emb := &positionEmbedder{dim: 2}
	pipeline := newTestPipeline(t, emb)
	sentence, _, _ := capitalSentence(t)

	output, err := pipeline.RunBatch([]*data.Sentence{sentence})
	require.NoError(t, err)
	require.NotNil(t, output.Features)
	assert.Equal(t, []int(output.Features.Shape()), []int{2, 8})
	assert.Equal(t, 1, emb.calls)

	require.Len(t, output.Labels, 2)
	assert.Equal(t, []string{data.NoRelation}, output.Labels[0])
	assert.Equal(t, []string{"capital-of"}, output.Labels[1])

	values := output.Features.Data().([]float32)
	// first candidate: head Paris (position 0), tail France (position 5)
	assert.Equal(t, []float32{0, 0.1, 0, 0.1, 5, 5.1, 5, 5.1}, values[:8])
	// second candidate: head France, tail Paris
	assert.Equal(t, []float32{5, 5.1, 5, 5.1, 0, 0.1, 0, 0.1}, values[8:])
}

func TestRunBatchFirstPooling(t *testing.T) {
	pipeline := newTestPipeline(t, &positionEmbedder{dim: 2}, WithFirstPooling())
	sentence, _, _ := capitalSentence(t)

	output, err := pipeline.RunBatch([]*data.Sentence{sentence})
	require.NoError(t, err)
	assert.Equal(t, []int(output.Features.Shape()), []int{2, 4})
	assert.Equal(t, 4, pipeline.FeatureLength())
}

func TestRunBatchWithoutCandidates(t *testing.T) {
	pipeline := newTestPipeline(t, &positionEmbedder{dim: 2})

	output, err := pipeline.RunBatch([]*data.Sentence{data.NewSentence("nothing tagged here")})
	require.NoError(t, err)
	assert.Nil(t, output.Features)
	assert.Empty(t, output.Pairs)
	assert.Empty(t, output.Labels)
}

func TestRunBatchWithCandidates(t *testing.T) {
	pipeline := newTestPipeline(t, &positionEmbedder{dim: 2})
	sentence, paris, france := capitalSentence(t)

	output, err := pipeline.RunBatchWithCandidates([]*data.Sentence{sentence})
	require.NoError(t, err)
	require.Len(t, output.LabelCandidates, 2)
	require.Len(t, output.Sentences, 2)

	assert.Same(t, sentence, output.Sentences[0])
	assert.True(t, output.LabelCandidates[1].Head.Equal(france))
	assert.True(t, output.LabelCandidates[1].Tail.Equal(paris))
	assert.Empty(t, output.LabelCandidates[1].Value, "placeholders carry no label value")

	assert.Len(t, output.GetOutput(), 2)
}

func TestRunBatchMultipleSentences(t *testing.T) {
	emb := &positionEmbedder{dim: 2}
	pipeline := newTestPipeline(t, emb, WithGoldPairsOnly())
	first, _, _ := capitalSentence(t)
	second, _, _ := capitalSentence(t)

	output, err := pipeline.RunBatch([]*data.Sentence{first, second, data.NewSentence("no entities")})
	require.NoError(t, err)
	require.Len(t, output.Pairs, 2)
	assert.Equal(t, []int(output.Features.Shape()), []int{2, 8})
	assert.Equal(t, 1, emb.calls)
}

func TestRegularizersOnlyRunDuringTraining(t *testing.T) {
	recorder := &countingRegularizer{}
	pipeline := newTestPipeline(t, &positionEmbedder{dim: 2}, WithRegularizers(recorder))
	sentence, _, _ := capitalSentence(t)

	_, err := pipeline.RunBatch([]*data.Sentence{sentence})
	require.NoError(t, err)
	assert.Equal(t, 0, recorder.applied)

	pipeline.SetTraining(true)
	_, err = pipeline.RunBatch([]*data.Sentence{sentence})
	require.NoError(t, err)
	assert.Equal(t, 1, recorder.applied)

	pipeline.SetTraining(false)
	_, err = pipeline.RunBatch([]*data.Sentence{sentence})
	require.NoError(t, err)
	assert.Equal(t, 1, recorder.applied)
}

func TestPipelinePairFilterOption(t *testing.T) {
	pipeline := newTestPipeline(t, &positionEmbedder{dim: 2}, WithEntityPairFilters([][2]string{{"PER", "LOC"}}))
	sentence, _, _ := capitalSentence(t)

	output, err := pipeline.RunBatch([]*data.Sentence{sentence})
	require.NoError(t, err)
	assert.Nil(t, output.Features)
	assert.Empty(t, output.Pairs)
}
