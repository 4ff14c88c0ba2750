package relex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knights-analytics/relex/data"
	"github.com/knights-analytics/relex/pipelines"
)

type staticEmbedder struct {
	dim int
}

func (e *staticEmbedder) Embed(sentences []*data.Sentence) error {
	for _, sentence := range sentences {
		for _, token := range sentence.Tokens() {
			token.Embedding = make([]float32, e.dim)
		}
	}
	return nil
}

func (e *staticEmbedder) Dim() int {
	return e.dim
}

func TestConfigRoundTrip(t *testing.T) {
	config := NewConfig("relation", "ner")
	config.Name = "capitalRelations"
	config.EntityPairFilters = [][2]string{{"LOC", "LOC"}, {"PER", "ORG"}}
	config.TrainOnGoldPairsOnly = true
	config.DropoutValue = 0.2
	config.EmbeddingDim = 768

	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, SaveConfig(config, configPath))

	loaded, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config, loaded)
}

func TestNewPipelineFromConfig(t *testing.T) {
	config := NewConfig("relation", "ner")
	config.Name = "capitalRelations"
	config.EntityPairFilters = [][2]string{{"LOC", "LOC"}}
	config.TrainOnGoldPairsOnly = true

	pipeline, err := NewPipeline(config, &staticEmbedder{dim: 4})
	require.NoError(t, err)
	assert.Equal(t, "capitalRelations", pipeline.PipelineName)
	assert.Equal(t, pipelines.PoolingFirstLast, pipeline.PoolingOperation)
	assert.Equal(t, 16, pipeline.FeatureLength())
	assert.True(t, pipeline.TrainOnGoldPairsOnly)
	assert.True(t, pipeline.PairFilter.Allows("LOC", "LOC"))
	assert.False(t, pipeline.PairFilter.Allows("PER", "LOC"))
}

func TestNewPipelineRejectsMismatchedDimension(t *testing.T) {
	config := NewConfig("relation", "ner")
	config.EmbeddingDim = 768

	_, err := NewPipeline(config, &staticEmbedder{dim: 4})
	assert.Error(t, err)
}

func TestNewPipelineRejectsUnknownPooling(t *testing.T) {
	config := NewConfig("relation", "ner")
	config.PoolingOperation = "mean"

	_, err := NewPipeline(config, &staticEmbedder{dim: 4})
	assert.Error(t, err)
}

func TestConfigOfExportsPipelineState(t *testing.T) {
	config := NewConfig("relation", "ner")
	config.Name = "capitalRelations"
	config.PoolingOperation = pipelines.PoolingFirst
	config.EntityPairFilters = [][2]string{{"PER", "ORG"}, {"LOC", "LOC"}}
	config.LockedDropoutValue = 0.25

	pipeline, err := NewPipeline(config, &staticEmbedder{dim: 4})
	require.NoError(t, err)

	exported := ConfigOf(pipeline)
	assert.Equal(t, "capitalRelations", exported.Name)
	assert.Equal(t, "relation", exported.LabelType)
	assert.Equal(t, "ner", exported.EntityLabelType)
	assert.Equal(t, pipelines.PoolingFirst, exported.PoolingOperation)
	assert.Equal(t, float32(0.25), exported.LockedDropoutValue)
	assert.Equal(t, 4, exported.EmbeddingDim)
	// filters come back sorted
	assert.Equal(t, [][2]string{{"LOC", "LOC"}, {"PER", "ORG"}}, exported.EntityPairFilters)
}

func TestResolveModelName(t *testing.T) {
	assert.Equal(t, "KnightsAnalytics/relations", ResolveModelName("relations"))
	assert.Equal(t, "sentence-transformers/all-MiniLM-L6-v2", ResolveModelName("sentence-transformers/all-MiniLM-L6-v2"))
}
