// Package relex builds relation classification candidates from sentences
// whose token spans have been tagged as entities: it enumerates entity pair
// candidates, matches them against gold relation annotations, pools span
// boundary embeddings into fixed-length feature vectors and can rewrite
// sentences with entity boundary markers for marker-based re-encoding.
package relex

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/knights-analytics/relex/embeddings"
	"github.com/knights-analytics/relex/pipelines"
	util "github.com/knights-analytics/relex/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config is the persisted configuration surface of a relation extraction
// pipeline. Every field needed to reconstruct the pipeline behaviour
// round-trips through SaveConfig and LoadConfig.
type Config struct {
	Name                 string      `json:"name,omitempty"`
	LabelType            string      `json:"label_type"`
	EntityLabelType      string      `json:"entity_label_type"`
	PoolingOperation     string      `json:"pooling_operation"`
	TrainOnGoldPairsOnly bool        `json:"train_on_gold_pairs_only"`
	EntityPairFilters    [][2]string `json:"entity_pair_filters,omitempty"`
	DropoutValue         float32     `json:"dropout_value"`
	LockedDropoutValue   float32     `json:"locked_dropout_value"`
	WordDropoutValue     float32     `json:"word_dropout_value"`
	EmbeddingDim         int         `json:"embedding_dim,omitempty"`
}

// NewConfig returns a configuration with the library defaults: first_last
// pooling, locked dropout 0.1, no pair filter, negative pairs kept.
func NewConfig(labelType, entityLabelType string) *Config {
	return &Config{
		LabelType:          labelType,
		EntityLabelType:    entityLabelType,
		PoolingOperation:   pipelines.PoolingFirstLast,
		LockedDropoutValue: 0.1,
	}
}

// NewPipeline builds a relation extraction pipeline from the configuration
// and the given token embedder. When the configuration records an embedding
// dimension it must match the embedder.
func NewPipeline(config *Config, emb embeddings.TokenEmbeddings, extraOptions ...pipelines.PipelineOption[*pipelines.RelationExtractionPipeline]) (*pipelines.RelationExtractionPipeline, error) {
	if config.EmbeddingDim != 0 && emb != nil && emb.Dim() != config.EmbeddingDim {
		return nil, fmt.Errorf("configuration was saved for embedding dimension %d but the embedder produces %d", config.EmbeddingDim, emb.Dim())
	}

	options := []pipelines.PipelineOption[*pipelines.RelationExtractionPipeline]{
		pipelines.WithLabelType(config.LabelType),
		pipelines.WithEntityLabelType(config.EntityLabelType),
		pipelines.WithDropout(config.DropoutValue),
		pipelines.WithLockedDropout(config.LockedDropoutValue),
		pipelines.WithWordDropout(config.WordDropoutValue),
	}
	switch config.PoolingOperation {
	case pipelines.PoolingFirst:
		options = append(options, pipelines.WithFirstPooling())
	case pipelines.PoolingFirstLast, "":
		options = append(options, pipelines.WithFirstLastPooling())
	default:
		return nil, fmt.Errorf("pooling operation %s not recognized", config.PoolingOperation)
	}
	if len(config.EntityPairFilters) > 0 {
		options = append(options, pipelines.WithEntityPairFilters(config.EntityPairFilters))
	}
	if config.TrainOnGoldPairsOnly {
		options = append(options, pipelines.WithGoldPairsOnly())
	}
	options = append(options, extraOptions...)

	return pipelines.NewRelationExtractionPipeline(pipelines.PipelineConfig[*pipelines.RelationExtractionPipeline]{
		Name:    config.Name,
		Options: options,
	}, emb)
}

// ConfigOf exports the persisted configuration of a pipeline.
func ConfigOf(pipeline *pipelines.RelationExtractionPipeline) *Config {
	config := &Config{
		Name:                 pipeline.PipelineName,
		LabelType:            pipeline.LabelType,
		EntityLabelType:      pipeline.EntityLabelType,
		PoolingOperation:     pipeline.PoolingOperation,
		TrainOnGoldPairsOnly: pipeline.TrainOnGoldPairsOnly,
		EntityPairFilters:    pipeline.PairFilter.Pairs(),
		DropoutValue:         pipeline.DropoutValue,
		LockedDropoutValue:   pipeline.LockedDropoutValue,
		WordDropoutValue:     pipeline.WordDropoutValue,
	}
	if pipeline.Embeddings != nil {
		config.EmbeddingDim = pipeline.Embeddings.Dim()
	}
	return config
}

// SaveConfig writes the configuration as a JSON document.
func SaveConfig(config *Config, path string) error {
	configBytes, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return util.WriteFileBytes(path, configBytes)
}

// LoadConfig reads a configuration written by SaveConfig.
func LoadConfig(path string) (*Config, error) {
	configBytes, err := util.ReadFileBytes(path)
	if err != nil {
		return nil, err
	}
	config := &Config{}
	if err := json.Unmarshal(configBytes, config); err != nil {
		return nil, err
	}
	return config, nil
}
