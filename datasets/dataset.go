// Package datasets reads relation-annotated corpora for candidate building.
package datasets

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/knights-analytics/relex/data"
	util "github.com/knights-analytics/relex/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EntityAnnotation tags tokens [Start, End) of a sentence with an entity type.
type EntityAnnotation struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Type  string `json:"type"`
}

// RelationAnnotation is a directed relation between two entities of the same
// example, addressed by their index in the entities list.
type RelationAnnotation struct {
	Head int    `json:"head"`
	Tail int    `json:"tail"`
	Type string `json:"type"`
}

// RelationExample is a single annotated sentence of a relation corpus.
type RelationExample struct {
	Tokens    []string             `json:"tokens"`
	Entities  []EntityAnnotation   `json:"entities"`
	Relations []RelationAnnotation `json:"relations"`
}

// ToSentence converts the example into a sentence with entity and relation
// labels attached under the given label types. Gold relation annotations are
// given a confidence score of 1.
func (e *RelationExample) ToSentence(entityLabelType, relationLabelType string) (*data.Sentence, error) {
	sentence := data.NewSentenceFromTokens(e.Tokens)

	spans := make([]*data.Span, len(e.Entities))
	for i, annotation := range e.Entities {
		span, err := sentence.Span(annotation.Start, annotation.End)
		if err != nil {
			return nil, fmt.Errorf("entity %d: %w", i, err)
		}
		spans[i] = span
		sentence.AddEntityLabel(entityLabelType, span, annotation.Type)
	}
	for i, relation := range e.Relations {
		if relation.Head < 0 || relation.Head >= len(spans) || relation.Tail < 0 || relation.Tail >= len(spans) {
			return nil, fmt.Errorf("relation %d references entity outside of the %d annotated entities", i, len(spans))
		}
		sentence.AddRelationLabel(relationLabelType, &data.RelationLabel{
			Head:  spans[relation.Head],
			Tail:  spans[relation.Tail],
			Value: relation.Type,
			Score: 1.0,
		})
	}
	return sentence, nil
}

// RelationDataset yields batches of relation-annotated sentences from a
// .jsonl corpus, either streamed from a file or held in memory.
type RelationDataset struct {
	trainingPath      string
	trainingExamples  []RelationExample
	batchSize         int
	entityLabelType   string
	relationLabelType string
	reader            *bufio.Reader
	sourceFile        io.ReadCloser
	batchN            int
	exampleN          int
	verbose           bool
}

func (d *RelationDataset) SetVerbose(v bool) {
	d.verbose = v
}

// Validate checks the dataset configuration.
func (d *RelationDataset) Validate() error {
	if d.batchSize <= 0 {
		return errors.New("batch size must be positive")
	}
	if d.entityLabelType == "" || d.relationLabelType == "" {
		return errors.New("entity and relation label types are required")
	}
	if len(d.trainingExamples) == 0 {
		if d.trainingPath == "" {
			return errors.New("training path is required")
		}
		if filepath.Ext(d.trainingPath) != ".jsonl" {
			return errors.New("training path must be a .jsonl file")
		}
	}
	return nil
}

// NewRelationDataset creates a dataset streaming from trainingPath. Each line
// must be a json document of the form
// {"tokens": [...], "entities": [{"start": 0, "end": 1, "type": "LOC"}], "relations": [{"head": 1, "tail": 0, "type": "capital-of"}]}.
func NewRelationDataset(trainingPath string, batchSize int, entityLabelType, relationLabelType string) (*RelationDataset, error) {
	d := &RelationDataset{
		trainingPath:      trainingPath,
		batchSize:         batchSize,
		entityLabelType:   entityLabelType,
		relationLabelType: relationLabelType,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	sourceReadCloser, err := util.OpenFile(trainingPath)
	if err != nil {
		return nil, err
	}
	d.reader = bufio.NewReader(sourceReadCloser)
	d.sourceFile = sourceReadCloser
	return d, nil
}

// NewInMemoryRelationDataset creates a dataset from a slice of examples.
func NewInMemoryRelationDataset(examples []RelationExample, batchSize int, entityLabelType, relationLabelType string) (*RelationDataset, error) {
	d := &RelationDataset{
		trainingExamples:  examples,
		batchSize:         batchSize,
		entityLabelType:   entityLabelType,
		relationLabelType: relationLabelType,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// YieldRaw returns the next batch of raw examples. io.EOF signals the end of
// the corpus, together with any final partial batch.
func (d *RelationDataset) YieldRaw() ([]RelationExample, error) {
	batch := make([]RelationExample, 0, d.batchSize)

	if len(d.trainingExamples) > 0 {
		for len(batch) < d.batchSize && d.exampleN < len(d.trainingExamples) {
			batch = append(batch, d.trainingExamples[d.exampleN])
			d.exampleN++
		}
		if d.exampleN >= len(d.trainingExamples) {
			return batch, io.EOF
		}
		d.batchN++
		return batch, nil
	}

	for len(batch) < d.batchSize {
		lineBytes, readErr := util.ReadLine(d.reader)
		if readErr != nil {
			return batch, readErr
		}
		if len(lineBytes) == 0 {
			continue
		}
		var example RelationExample
		if err := json.Unmarshal(lineBytes, &example); err != nil {
			return batch, fmt.Errorf("parsing example line: %w", err)
		}
		batch = append(batch, example)
	}
	d.batchN++
	return batch, nil
}

// Yield returns the next batch converted to labelled sentences. io.EOF
// signals the end of the corpus.
func (d *RelationDataset) Yield() ([]*data.Sentence, error) {
	examples, yieldErr := d.YieldRaw()
	if yieldErr != nil && !errors.Is(yieldErr, io.EOF) {
		return nil, yieldErr
	}
	sentences := make([]*data.Sentence, 0, len(examples))
	for i := range examples {
		sentence, err := examples[i].ToSentence(d.entityLabelType, d.relationLabelType)
		if err != nil {
			return nil, err
		}
		sentences = append(sentences, sentence)
	}
	return sentences, yieldErr
}

// Reset restarts the dataset from the beginning of the corpus.
func (d *RelationDataset) Reset() error {
	if d.verbose {
		fmt.Printf("completed epoch in %d batches of %d examples, resetting dataset\n", d.batchN, d.batchSize)
	}
	d.batchN = 0
	d.exampleN = 0
	if len(d.trainingExamples) == 0 {
		if err := d.sourceFile.Close(); err != nil {
			return err
		}
		sourceReadCloser, err := util.OpenFile(d.trainingPath)
		if err != nil {
			return err
		}
		d.sourceFile = sourceReadCloser
		d.reader = bufio.NewReader(sourceReadCloser)
	}
	return nil
}

// Close releases the underlying file, if any.
func (d *RelationDataset) Close() error {
	if d.sourceFile != nil {
		return d.sourceFile.Close()
	}
	return nil
}
