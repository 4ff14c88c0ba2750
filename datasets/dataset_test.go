package datasets

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knights-analytics/relex/data"
)

var exampleCorpus = []RelationExample{
	{
		Tokens:    []string{"Paris", "is", "the", "capital", "of", "France"},
		Entities:  []EntityAnnotation{{Start: 0, End: 1, Type: "LOC"}, {Start: 5, End: 6, Type: "LOC"}},
		Relations: []RelationAnnotation{{Head: 1, Tail: 0, Type: "capital-of"}},
	},
	{
		Tokens:   []string{"Alice", "works", "at", "Acme"},
		Entities: []EntityAnnotation{{Start: 0, End: 1, Type: "PER"}, {Start: 3, End: 4, Type: "ORG"}},
		Relations: []RelationAnnotation{
			{Head: 0, Tail: 1, Type: "works-for"},
		},
	},
	{
		Tokens: []string{"nothing", "to", "see", "here"},
	},
}

func writeCorpus(t *testing.T, examples []RelationExample) string {
	t.Helper()
	corpusPath := filepath.Join(t.TempDir(), "corpus.jsonl")
	file, err := os.Create(corpusPath)
	require.NoError(t, err)
	for _, example := range examples {
		lineBytes, marshalErr := json.Marshal(example)
		require.NoError(t, marshalErr)
		_, err = file.Write(append(lineBytes, '\n'))
		require.NoError(t, err)
	}
	require.NoError(t, file.Close())
	return corpusPath
}

func TestToSentence(t *testing.T) {
	sentence, err := exampleCorpus[0].ToSentence("ner", "relation")
	require.NoError(t, err)

	assert.Equal(t, "Paris is the capital of France", sentence.Text())
	entities := sentence.EntityLabels("ner")
	require.Len(t, entities, 2)
	assert.Equal(t, "Paris", entities[0].Span.Text())
	assert.Equal(t, "France", entities[1].Span.Text())

	relations := sentence.RelationLabels("relation")
	require.Len(t, relations, 1)
	assert.Equal(t, "capital-of", relations[0].Value)
	assert.Equal(t, "France", relations[0].Head.Text())
	assert.Equal(t, "Paris", relations[0].Tail.Text())
	assert.Equal(t, float32(1.0), relations[0].Score)
}

func TestToSentenceRejectsInvalidAnnotations(t *testing.T) {
	outOfRange := RelationExample{
		Tokens:   []string{"short"},
		Entities: []EntityAnnotation{{Start: 0, End: 2, Type: "MISC"}},
	}
	_, err := outOfRange.ToSentence("ner", "relation")
	assert.Error(t, err)

	danglingRelation := RelationExample{
		Tokens:    []string{"a", "b"},
		Entities:  []EntityAnnotation{{Start: 0, End: 1, Type: "MISC"}},
		Relations: []RelationAnnotation{{Head: 0, Tail: 3, Type: "broken"}},
	}
	_, err = danglingRelation.ToSentence("ner", "relation")
	assert.Error(t, err)
}

func TestStreamingDataset(t *testing.T) {
	corpusPath := writeCorpus(t, exampleCorpus)
	dataset, err := NewRelationDataset(corpusPath, 2, "ner", "relation")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, dataset.Close())
	}()

	batch, err := dataset.Yield()
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "Paris is the capital of France", batch[0].Text())

	batch, err = dataset.Yield()
	assert.True(t, errors.Is(err, io.EOF))
	require.Len(t, batch, 1)
	assert.Equal(t, "nothing to see here", batch[0].Text())
	assert.Empty(t, batch[0].EntityLabels("ner"))
}

func TestStreamingDatasetReset(t *testing.T) {
	corpusPath := writeCorpus(t, exampleCorpus)
	dataset, err := NewRelationDataset(corpusPath, 3, "ner", "relation")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, dataset.Close())
	}()

	for epoch := 0; epoch < 2; epoch++ {
		total := 0
		for {
			batch, yieldErr := dataset.Yield()
			total += len(batch)
			if errors.Is(yieldErr, io.EOF) {
				break
			}
			require.NoError(t, yieldErr)
		}
		assert.Equal(t, 3, total, "epoch %d", epoch)
		require.NoError(t, dataset.Reset())
	}
}

func TestInMemoryDataset(t *testing.T) {
	dataset, err := NewInMemoryRelationDataset(exampleCorpus, 2, "ner", "relation")
	require.NoError(t, err)

	var sentences []*data.Sentence
	for {
		batch, yieldErr := dataset.Yield()
		sentences = append(sentences, batch...)
		if errors.Is(yieldErr, io.EOF) {
			break
		}
		require.NoError(t, yieldErr)
	}
	assert.Len(t, sentences, 3)
}

func TestDatasetValidation(t *testing.T) {
	_, err := NewRelationDataset("corpus.csv", 2, "ner", "relation")
	assert.Error(t, err, ".jsonl extension is required")

	_, err = NewInMemoryRelationDataset(exampleCorpus, 0, "ner", "relation")
	assert.Error(t, err, "batch size must be positive")

	_, err = NewInMemoryRelationDataset(exampleCorpus, 2, "", "relation")
	assert.Error(t, err, "entity label type is required")
}
