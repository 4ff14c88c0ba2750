// Package pipelines implements the relation-extraction candidate pipeline:
// entity pair enumeration, span pooling, marker injection and feature batch
// regularization.
package pipelines

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"gorgonia.org/tensor"

	"github.com/knights-analytics/relex/data"
	"github.com/knights-analytics/relex/embeddings"
)

// PipelineOption is an option for a pipeline type.
type PipelineOption[T any] func(T) error

// PipelineConfig is a configuration for a pipeline type that can be used to
// create that pipeline.
type PipelineConfig[T any] struct {
	Name    string
	Options []PipelineOption[T]
}

// RelationExtractionPipeline builds relation classification candidates from
// sentences whose token spans have been tagged as entities. For every sentence
// it enumerates the ordered cross product of entity spans, matches each pair
// against the gold relation annotations, pools the pair's boundary token
// embeddings into one fixed-length feature vector and stacks the batch into a
// dense tensor.
type RelationExtractionPipeline struct {
	PipelineName         string
	Embeddings           embeddings.TokenEmbeddings
	LabelType            string
	EntityLabelType      string
	PoolingOperation     string
	TrainOnGoldPairsOnly bool
	PairFilter           *PairFilter
	DropoutValue         float32
	LockedDropoutValue   float32
	WordDropoutValue     float32

	featureLength int
	training      bool
	regularizers  []Regularizer
	rng           *rand.Rand
	seed          *int64
}

// RelationCandidateOutput holds the result of one batch. Features is nil when
// the batch produced zero candidates; downstream consumers must handle that
// explicitly instead of receiving an empty dense batch. Pairs, Labels and,
// when requested, Sentences and LabelCandidates are parallel slices in
// enumeration order.
type RelationCandidateOutput struct {
	Features        *tensor.Dense
	Pairs           []*data.CandidatePair
	Labels          [][]string
	Sentences       []*data.Sentence
	LabelCandidates []*data.RelationLabel
}

func (o *RelationCandidateOutput) GetOutput() []any {
	out := make([]any, len(o.Pairs))
	for i, pair := range o.Pairs {
		out[i] = any(pair)
	}
	return out
}

// PIPELINE OPTIONS

// WithLabelType sets the relation label type read from gold annotations.
func WithLabelType(labelType string) PipelineOption[*RelationExtractionPipeline] {
	return func(pipeline *RelationExtractionPipeline) error {
		pipeline.LabelType = labelType
		return nil
	}
}

// WithEntityLabelType sets the entity label type whose spans are enumerated.
func WithEntityLabelType(entityLabelType string) PipelineOption[*RelationExtractionPipeline] {
	return func(pipeline *RelationExtractionPipeline) error {
		pipeline.EntityLabelType = entityLabelType
		return nil
	}
}

// WithFirstLastPooling pools the first and last token embedding of both spans
// (feature length 4*E). This is the default.
func WithFirstLastPooling() PipelineOption[*RelationExtractionPipeline] {
	return func(pipeline *RelationExtractionPipeline) error {
		pipeline.PoolingOperation = PoolingFirstLast
		return nil
	}
}

// WithFirstPooling pools only the first token embedding of both spans
// (feature length 2*E).
func WithFirstPooling() PipelineOption[*RelationExtractionPipeline] {
	return func(pipeline *RelationExtractionPipeline) error {
		pipeline.PoolingOperation = PoolingFirst
		return nil
	}
}

// WithEntityPairFilters restricts candidates to the given (head entity type,
// tail entity type) combinations. Without this option all combinations are
// allowed.
func WithEntityPairFilters(pairs [][2]string) PipelineOption[*RelationExtractionPipeline] {
	return func(pipeline *RelationExtractionPipeline) error {
		pipeline.PairFilter = NewPairFilter(pairs)
		return nil
	}
}

// WithGoldPairsOnly drops candidate pairs with no gold annotation instead of
// labelling them NoRelation.
func WithGoldPairsOnly() PipelineOption[*RelationExtractionPipeline] {
	return func(pipeline *RelationExtractionPipeline) error {
		pipeline.TrainOnGoldPairsOnly = true
		return nil
	}
}

// WithDropout sets the feature dropout rate.
func WithDropout(value float32) PipelineOption[*RelationExtractionPipeline] {
	return func(pipeline *RelationExtractionPipeline) error {
		pipeline.DropoutValue = value
		return nil
	}
}

// WithLockedDropout sets the locked dropout rate. The default is 0.1.
func WithLockedDropout(value float32) PipelineOption[*RelationExtractionPipeline] {
	return func(pipeline *RelationExtractionPipeline) error {
		pipeline.LockedDropoutValue = value
		return nil
	}
}

// WithWordDropout sets the word dropout rate.
func WithWordDropout(value float32) PipelineOption[*RelationExtractionPipeline] {
	return func(pipeline *RelationExtractionPipeline) error {
		pipeline.WordDropoutValue = value
		return nil
	}
}

// WithSeed fixes the random source of the regularization stages, for
// reproducible training runs.
func WithSeed(seed int64) PipelineOption[*RelationExtractionPipeline] {
	return func(pipeline *RelationExtractionPipeline) error {
		pipeline.seed = &seed
		return nil
	}
}

// WithRegularizers replaces the default dropout chain with custom stages.
// Stages run in the given order on the stacked feature batch.
func WithRegularizers(regularizers ...Regularizer) PipelineOption[*RelationExtractionPipeline] {
	return func(pipeline *RelationExtractionPipeline) error {
		pipeline.regularizers = regularizers
		return nil
	}
}

// NewRelationExtractionPipeline initializes a relation extraction pipeline.
// The pooled feature length is fixed here from the pooling operation and the
// embedder dimension, and validated before the pipeline is returned.
func NewRelationExtractionPipeline(config PipelineConfig[*RelationExtractionPipeline], emb embeddings.TokenEmbeddings) (*RelationExtractionPipeline, error) {
	pipeline := &RelationExtractionPipeline{
		PipelineName:       config.Name,
		Embeddings:         emb,
		PoolingOperation:   PoolingFirstLast,
		LockedDropoutValue: 0.1,
	}
	for _, o := range config.Options {
		if err := o(pipeline); err != nil {
			return nil, err
		}
	}

	if err := pipeline.Validate(); err != nil {
		return nil, err
	}

	length, err := featureLength(pipeline.PoolingOperation, emb.Dim())
	if err != nil {
		return nil, err
	}
	pipeline.featureLength = length

	if pipeline.seed != nil {
		pipeline.rng = rand.New(rand.NewSource(*pipeline.seed))
	} else {
		pipeline.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if pipeline.regularizers == nil {
		pipeline.regularizers = []Regularizer{
			NewDropout(pipeline.DropoutValue, pipeline.rng),
			NewLockedDropout(pipeline.LockedDropoutValue, pipeline.rng),
			NewWordDropout(pipeline.WordDropoutValue, pipeline.rng),
		}
	}
	return pipeline, nil
}

// Validate checks that the pipeline is correctly configured.
func (p *RelationExtractionPipeline) Validate() error {
	var validationErrors []error
	if p.Embeddings == nil {
		validationErrors = append(validationErrors, errors.New("relation extraction pipeline requires token embeddings"))
	} else if p.Embeddings.Dim() <= 0 {
		validationErrors = append(validationErrors, errors.New("token embeddings must report a positive embedding dimension"))
	}
	if p.LabelType == "" {
		validationErrors = append(validationErrors, errors.New("a relation label type is required"))
	}
	if p.EntityLabelType == "" {
		validationErrors = append(validationErrors, errors.New("an entity label type is required"))
	}
	if p.PoolingOperation != PoolingFirst && p.PoolingOperation != PoolingFirstLast {
		validationErrors = append(validationErrors, fmt.Errorf("pooling operation %s not recognized", p.PoolingOperation))
	}
	for _, rate := range []float32{p.DropoutValue, p.LockedDropoutValue, p.WordDropoutValue} {
		if rate < 0 || rate >= 1 {
			validationErrors = append(validationErrors, fmt.Errorf("dropout rate %f must be in [0, 1)", rate))
		}
	}
	return errors.Join(validationErrors...)
}

// FeatureLength returns the pooled feature vector length, 2*E or 4*E
// depending on the pooling operation.
func (p *RelationExtractionPipeline) FeatureLength() int {
	return p.featureLength
}

// SetTraining toggles training mode. The regularization stages only run while
// training is enabled.
func (p *RelationExtractionPipeline) SetTraining(training bool) {
	p.training = training
}

// RunBatch enumerates and embeds the candidate pairs of a batch of sentences.
func (p *RelationExtractionPipeline) RunBatch(sentences []*data.Sentence) (*RelationCandidateOutput, error) {
	return p.runBatch(sentences, false)
}

// RunBatchWithCandidates is like RunBatch but additionally returns, for every
// candidate, an unlabelled RelationLabel placeholder and the owning sentence,
// so a caller can attach predictions during inference.
func (p *RelationExtractionPipeline) RunBatchWithCandidates(sentences []*data.Sentence) (*RelationCandidateOutput, error) {
	return p.runBatch(sentences, true)
}

func (p *RelationExtractionPipeline) runBatch(sentences []*data.Sentence, withLabelCandidates bool) (*RelationCandidateOutput, error) {
	output := &RelationCandidateOutput{}

	for _, sentence := range sentences {
		pairs := EnumerateCandidates(sentence, p.LabelType, p.EntityLabelType, p.PairFilter, p.TrainOnGoldPairsOnly)
		for _, pair := range pairs {
			output.Pairs = append(output.Pairs, pair)
			output.Labels = append(output.Labels, []string{pair.Label})
			if withLabelCandidates {
				output.LabelCandidates = append(output.LabelCandidates, &data.RelationLabel{
					Head: pair.Head,
					Tail: pair.Tail,
				})
				output.Sentences = append(output.Sentences, pair.Head.First().Sentence())
			}
		}
	}

	// a batch without a single entity pair yields no feature tensor
	if len(output.Pairs) == 0 {
		return output, nil
	}

	// embed once for the whole batch, pooling below reads the vectors
	if err := p.Embeddings.Embed(sentences); err != nil {
		return nil, err
	}

	backing := make([]float32, 0, len(output.Pairs)*p.featureLength)
	for _, pair := range output.Pairs {
		feature, err := poolPair(pair, p.PoolingOperation)
		if err != nil {
			return nil, err
		}
		if len(feature) != p.featureLength {
			return nil, fmt.Errorf("pooled feature has length %d, expected %d", len(feature), p.featureLength)
		}
		backing = append(backing, feature...)
	}
	features := tensor.New(
		tensor.WithShape(len(output.Pairs), p.featureLength),
		tensor.WithBacking(backing),
	)

	if p.training {
		for _, regularizer := range p.regularizers {
			if err := regularizer.Apply(features); err != nil {
				return nil, err
			}
		}
	}

	output.Features = features
	return output, nil
}
