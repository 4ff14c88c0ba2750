package pipelines

import (
	"fmt"
	"math/rand"

	"gorgonia.org/tensor"
)

// Regularizer transforms the stacked (candidates, features) batch tensor in
// place. The pipeline applies its regularizers after pooling in a fixed order:
// feature dropout, locked dropout, word dropout.
type Regularizer interface {
	Apply(features *tensor.Dense) error
}

// Dropout zeroes individual feature values with probability P and rescales
// the surviving values by 1/(1-P).
type Dropout struct {
	P   float32
	rng *rand.Rand
}

func NewDropout(p float32, rng *rand.Rand) *Dropout {
	return &Dropout{P: p, rng: rng}
}

func (d *Dropout) Apply(features *tensor.Dense) error {
	if d.P <= 0 {
		return nil
	}
	values, _, _, err := batchValues(features)
	if err != nil {
		return err
	}
	scale := 1 / (1 - d.P)
	for i := range values {
		if d.rng.Float32() < d.P {
			values[i] = 0
		} else {
			values[i] *= scale
		}
	}
	return nil
}

// LockedDropout samples a single dropout mask over the feature dimension and
// applies it to every candidate in the batch, so the same feature positions
// are dropped consistently across the whole batch. Survivors are rescaled by
// 1/(1-P).
type LockedDropout struct {
	P   float32
	rng *rand.Rand
}

func NewLockedDropout(p float32, rng *rand.Rand) *LockedDropout {
	return &LockedDropout{P: p, rng: rng}
}

func (d *LockedDropout) Apply(features *tensor.Dense) error {
	if d.P <= 0 {
		return nil
	}
	values, rows, cols, err := batchValues(features)
	if err != nil {
		return err
	}
	scale := 1 / (1 - d.P)
	mask := make([]float32, cols)
	for j := range mask {
		if d.rng.Float32() < d.P {
			mask[j] = 0
		} else {
			mask[j] = scale
		}
	}
	for i := 0; i < rows; i++ {
		row := values[i*cols : (i+1)*cols]
		for j := range row {
			row[j] *= mask[j]
		}
	}
	return nil
}

// WordDropout zeroes entire candidate feature vectors with probability P.
// Dropped vectors are not rescaled.
type WordDropout struct {
	P   float32
	rng *rand.Rand
}

func NewWordDropout(p float32, rng *rand.Rand) *WordDropout {
	return &WordDropout{P: p, rng: rng}
}

func (d *WordDropout) Apply(features *tensor.Dense) error {
	if d.P <= 0 {
		return nil
	}
	values, rows, cols, err := batchValues(features)
	if err != nil {
		return err
	}
	for i := 0; i < rows; i++ {
		if d.rng.Float32() < d.P {
			row := values[i*cols : (i+1)*cols]
			for j := range row {
				row[j] = 0
			}
		}
	}
	return nil
}

func batchValues(features *tensor.Dense) ([]float32, int, int, error) {
	shape := features.Shape()
	if len(shape) != 2 {
		return nil, 0, 0, fmt.Errorf("expected a two dimensional feature batch, got shape %v", shape)
	}
	values, ok := features.Data().([]float32)
	if !ok {
		return nil, 0, 0, fmt.Errorf("expected a float32 feature batch, got %T", features.Data())
	}
	return values, shape[0], shape[1], nil
}
