// Package crf implements a linear-chain Conditional Random Field for
// binary word-level quality tagging.
package crf

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Tag ids for the quality label set.
const (
	TagBAD = 0
	TagOK  = 1

	// TagIgnore marks positions beyond a sequence's true length in decoded
	// output. It is never a valid label; valid labels are always >= 0.
	TagIgnore = -1
)

// Model holds the CRF parameters: transition scores over the label set and
// the linear projection that maps input feature vectors to emission scores.
type Model struct {
	NumTags   int `json:"num_tags"`
	InputSize int `json:"input_size"`

	// Start[k] scores starting a sequence at label k.
	Start []float64 `json:"start"`
	// Trans[k][j] scores transitioning into label k from label j.
	Trans [][]float64 `json:"trans"`
	// End[k] scores ending a sequence at label k.
	End []float64 `json:"end"`

	// Emission projection: emit(x) = W*x + b, W is NumTags x InputSize
	// stored row-major.
	Weights []float64 `json:"weights"`
	Bias    []float64 `json:"bias"`
}

// NewModel creates a zero-initialized model for the given feature width and
// label set size.
func NewModel(inputSize, numTags int) *Model {
	m := &Model{
		NumTags:   numTags,
		InputSize: inputSize,
		Start:     make([]float64, numTags),
		Trans:     make([][]float64, numTags),
		End:       make([]float64, numTags),
		Weights:   make([]float64, numTags*inputSize),
		Bias:      make([]float64, numTags),
	}
	for k := range numTags {
		m.Trans[k] = make([]float64, numTags)
	}
	return m
}

// Projection returns the emission weight matrix as a NumTags x InputSize
// dense matrix view over the model's weights.
func (m *Model) Projection() *mat.Dense {
	return mat.NewDense(m.NumTags, m.InputSize, m.Weights)
}

// Emissions maps a sequence of feature vectors (L x InputSize) to raw
// per-label emission scores (L x NumTags).
func (m *Model) Emissions(features *mat.Dense) ([][]float64, error) {
	rows, cols := features.Dims()
	if rows == 0 {
		return nil, fmt.Errorf("crf: emissions: empty sequence")
	}
	if cols != m.InputSize {
		return nil, fmt.Errorf("crf: emissions: feature width %d, model expects %d", cols, m.InputSize)
	}

	var scores mat.Dense
	scores.Mul(features, m.Projection().T())

	emissions := make([][]float64, rows)
	for t := range rows {
		emissions[t] = make([]float64, m.NumTags)
		for k := range m.NumTags {
			emissions[t][k] = scores.At(t, k) + m.Bias[k]
		}
	}
	return emissions, nil
}

// checkEmissions validates an emission matrix and returns its length.
func (m *Model) checkEmissions(emissions [][]float64) (int, error) {
	n := len(emissions)
	if n == 0 {
		return 0, fmt.Errorf("crf: empty sequence")
	}
	for t := range emissions {
		if len(emissions[t]) != m.NumTags {
			return 0, fmt.Errorf("crf: emission row %d has %d scores, model has %d tags", t, len(emissions[t]), m.NumTags)
		}
	}
	return n, nil
}

// checkTags validates a gold label sequence against the emission length.
func (m *Model) checkTags(tags []int, n int) error {
	if len(tags) != n {
		return fmt.Errorf("crf: %d tags for sequence of length %d", len(tags), n)
	}
	for t, y := range tags {
		if y < 0 || y >= m.NumTags {
			return fmt.Errorf("crf: tag %d at position %d outside [0, %d)", y, t, m.NumTags)
		}
	}
	return nil
}
