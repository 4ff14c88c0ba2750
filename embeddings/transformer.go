package embeddings

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/advancedclimatesystems/gonnx"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	"gorgonia.org/tensor"

	"github.com/knights-analytics/relex/data"
	util "github.com/knights-analytics/relex/utils"
)

const defaultOutputName = "last_hidden_state"

// TransformerEmbeddings runs a transformer encoder exported to onnx and
// assigns each word the hidden state of its first subtoken. The model
// directory must contain a model.onnx file and a tokenizer.json file.
type TransformerEmbeddings struct {
	model      *gonnx.Model
	tokenizer  *tokenizer.Tokenizer
	outputName string
	dim        int
	normalize  bool
}

// TransformerOption is an option for transformer embeddings.
type TransformerOption func(*TransformerEmbeddings)

// WithOutputName selects which model output holds the per-token hidden
// states. The default is last_hidden_state.
func WithOutputName(outputName string) TransformerOption {
	return func(e *TransformerEmbeddings) {
		e.outputName = outputName
	}
}

// WithNormalization applies L2 normalization to every token embedding.
func WithNormalization() TransformerOption {
	return func(e *TransformerEmbeddings) {
		e.normalize = true
	}
}

// NewTransformerEmbeddings loads the onnx encoder and tokenizer from
// modelPath. The embedding dimension is read from the model output metadata
// and is fixed for the lifetime of the embedder.
func NewTransformerEmbeddings(modelPath string, opts ...TransformerOption) (*TransformerEmbeddings, error) {
	onnxBytes, err := util.ReadFileBytes(util.PathJoinSafe(modelPath, "model.onnx"))
	if err != nil {
		return nil, fmt.Errorf("reading model.onnx: %w", err)
	}
	tokenizerBytes, err := util.ReadFileBytes(util.PathJoinSafe(modelPath, "tokenizer.json"))
	if err != nil {
		return nil, fmt.Errorf("reading tokenizer.json: %w", err)
	}

	model, err := gonnx.NewModelFromBytes(onnxBytes)
	if err != nil {
		return nil, err
	}
	tk, err := pretrained.FromReader(bytes.NewReader(tokenizerBytes))
	if err != nil {
		return nil, err
	}

	embedder := &TransformerEmbeddings{
		model:      model,
		tokenizer:  tk,
		outputName: defaultOutputName,
	}
	for _, o := range opts {
		o(embedder)
	}

	if !slices.Contains(model.OutputNames(), embedder.outputName) {
		return nil, fmt.Errorf("output %s is not available, outputs are: %s",
			embedder.outputName, strings.Join(model.OutputNames(), ", "))
	}
	outputShape := model.OutputShapes()[embedder.outputName]
	if len(outputShape) != 3 {
		return nil, fmt.Errorf("output %s must be three dimensional (batch, sequence, hidden)", embedder.outputName)
	}
	hidden := outputShape[len(outputShape)-1].Size
	if hidden <= 0 {
		return nil, errors.New("hidden dimension of the model output cannot be dynamic")
	}
	embedder.dim = int(hidden)
	return embedder, nil
}

// Dim returns the embedding dimension E.
func (e *TransformerEmbeddings) Dim() int {
	return e.dim
}

// Embed runs the encoder on the batch and attaches one embedding per token.
func (e *TransformerEmbeddings) Embed(sentences []*data.Sentence) error {
	if len(sentences) == 0 {
		return nil
	}

	encodings := make([]*tokenizer.Encoding, len(sentences))
	maxSequence := 0
	for i, sentence := range sentences {
		encoding, err := e.tokenizer.EncodeSingle(sentence.Text(), true)
		if err != nil {
			return err
		}
		encodings[i] = encoding
		if len(encoding.Ids) > maxSequence {
			maxSequence = len(encoding.Ids)
		}
	}

	inputs, err := e.inputTensors(encodings, maxSequence)
	if err != nil {
		return err
	}
	outputs, err := e.model.Run(inputs)
	if err != nil {
		return err
	}
	output, ok := outputs[e.outputName]
	if !ok {
		return fmt.Errorf("model did not produce output %s", e.outputName)
	}
	dense, ok := output.(*tensor.Dense)
	if !ok {
		return fmt.Errorf("expected dense output tensor, got %T", output)
	}
	values, ok := dense.Data().([]float32)
	if !ok {
		return fmt.Errorf("expected float32 output tensor, got %T", dense.Data())
	}
	shape := dense.Shape()
	if len(shape) != 3 || shape[2] != e.dim {
		return fmt.Errorf("unexpected output shape %v for embedding dimension %d", shape, e.dim)
	}
	sequence := shape[1]

	for i, sentence := range sentences {
		words := make([]string, sentence.Len())
		for j, token := range sentence.Tokens() {
			words[j] = token.Text
		}
		firstSubtokens, alignErr := alignWords(words, encodings[i])
		if alignErr != nil {
			return alignErr
		}
		for j, token := range sentence.Tokens() {
			start := (i*sequence + firstSubtokens[j]) * e.dim
			embedding := make([]float32, e.dim)
			copy(embedding, values[start:start+e.dim])
			if e.normalize {
				embedding = util.Normalize(embedding, 2)
			}
			token.Embedding = embedding
		}
	}
	return nil
}

// inputTensors pads every encoding to the batch max sequence length and packs
// the model inputs into dense tensors.
func (e *TransformerEmbeddings) inputTensors(encodings []*tokenizer.Encoding, maxSequence int) (map[string]tensor.Tensor, error) {
	inputMap := map[string]tensor.Tensor{}
	for _, name := range e.model.InputNames() {
		backing := make([]uint32, len(encodings)*maxSequence)
		counter := 0
		for _, encoding := range encodings {
			length := len(encoding.Ids)
			for j := 0; j < maxSequence; j++ {
				if j < length {
					switch name {
					case "input_ids":
						backing[counter] = uint32(encoding.Ids[j])
					case "token_type_ids":
						backing[counter] = uint32(encoding.TypeIds[j])
					case "attention_mask":
						backing[counter] = uint32(encoding.AttentionMask[j])
					default:
						return nil, fmt.Errorf("model input %s not recognized", name)
					}
				}
				counter++
			}
		}
		inputMap[name] = tensor.New(
			tensor.Of(tensor.Uint32),
			tensor.WithShape(len(encodings), maxSequence),
			tensor.WithBacking(backing),
		)
	}
	return inputMap, nil
}

// alignWords maps every word to the index of its first subtoken using the
// character offsets reported by the tokenizer. Words are assumed to be joined
// by single spaces, which is how Sentence.Text renders them.
func alignWords(words []string, encoding *tokenizer.Encoding) ([]int, error) {
	boundaries := wordBoundaries(words)
	first := make([]int, len(words))
	for i := range first {
		first[i] = -1
	}
	for t := range encoding.Offsets {
		if t < len(encoding.SpecialTokenMask) && encoding.SpecialTokenMask[t] > 0 {
			continue
		}
		tokenStart := encoding.Offsets[t][0]
		tokenEnd := encoding.Offsets[t][1]
		for w, boundary := range boundaries {
			if tokenStart >= boundary[0] && tokenEnd <= boundary[1] {
				if first[w] == -1 {
					first[w] = t
				}
				break
			}
		}
	}
	for w, index := range first {
		if index == -1 {
			return nil, fmt.Errorf("word %q has no aligned subtoken", words[w])
		}
	}
	return first, nil
}

// wordBoundaries computes the [start, end) character range of every word in
// the space-joined sentence string.
func wordBoundaries(words []string) [][2]int {
	boundaries := make([][2]int, len(words))
	position := 0
	for i, word := range words {
		boundaries[i] = [2]int{position, position + len(word)}
		position += len(word) + 1
	}
	return boundaries
}
