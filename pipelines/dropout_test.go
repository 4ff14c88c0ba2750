package pipelines

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func featureBatch(rows, cols int) *tensor.Dense {
	backing := make([]float32, rows*cols)
	for i := range backing {
		backing[i] = 1
	}
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing))
}

func TestDropoutZeroRateIsIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	batch := featureBatch(3, 4)
	for _, regularizer := range []Regularizer{NewDropout(0, rng), NewLockedDropout(0, rng), NewWordDropout(0, rng)} {
		require.NoError(t, regularizer.Apply(batch))
	}
	for _, v := range batch.Data().([]float32) {
		assert.Equal(t, float32(1), v)
	}
}

func TestDropoutScalesSurvivors(t *testing.T) {
	batch := featureBatch(8, 16)
	dropout := NewDropout(0.5, rand.New(rand.NewSource(42)))
	require.NoError(t, dropout.Apply(batch))

	values := batch.Data().([]float32)
	dropped := 0
	for _, v := range values {
		if v == 0 {
			dropped++
		} else {
			assert.InDelta(t, 2.0, v, 1e-6)
		}
	}
	assert.Greater(t, dropped, 0)
	assert.Less(t, dropped, len(values))
}

func TestLockedDropoutSharesMaskAcrossBatch(t *testing.T) {
	batch := featureBatch(6, 32)
	locked := NewLockedDropout(0.5, rand.New(rand.NewSource(42)))
	require.NoError(t, locked.Apply(batch))

	values := batch.Data().([]float32)
	rows, cols := 6, 32
	droppedColumns := 0
	for j := 0; j < cols; j++ {
		reference := values[j]
		for i := 1; i < rows; i++ {
			assert.Equal(t, reference, values[i*cols+j], "column %d differs between rows", j)
		}
		if reference == 0 {
			droppedColumns++
		} else {
			assert.InDelta(t, 2.0, reference, 1e-6)
		}
	}
	assert.Greater(t, droppedColumns, 0)
	assert.Less(t, droppedColumns, cols)
}

func TestWordDropoutZeroesWholeRowsWithoutRescaling(t *testing.T) {
	batch := featureBatch(64, 4)
	wordDropout := NewWordDropout(0.5, rand.New(rand.NewSource(42)))
	require.NoError(t, wordDropout.Apply(batch))

	values := batch.Data().([]float32)
	rows, cols := 64, 4
	droppedRows := 0
	for i := 0; i < rows; i++ {
		row := values[i*cols : (i+1)*cols]
		if row[0] == 0 {
			droppedRows++
			for _, v := range row {
				assert.Equal(t, float32(0), v)
			}
		} else {
			for _, v := range row {
				assert.Equal(t, float32(1), v)
			}
		}
	}
	assert.Greater(t, droppedRows, 0)
	assert.Less(t, droppedRows, rows)
}

func TestDropoutIsReproducibleWithSeed(t *testing.T) {
	first := featureBatch(4, 8)
	second := featureBatch(4, 8)
	require.NoError(t, NewDropout(0.3, rand.New(rand.NewSource(7))).Apply(first))
	require.NoError(t, NewDropout(0.3, rand.New(rand.NewSource(7))).Apply(second))
	assert.Equal(t, first.Data().([]float32), second.Data().([]float32))
}

func TestDropoutRejectsNonBatchTensor(t *testing.T) {
	flat := tensor.New(tensor.WithShape(8), tensor.WithBacking(make([]float32, 8)))
	assert.Error(t, NewDropout(0.5, rand.New(rand.NewSource(1))).Apply(flat))
}
