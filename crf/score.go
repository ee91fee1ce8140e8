package crf

import (
	"fmt"
	"math"
)

// PathScore computes the exact log score of one labeled path:
// start + per-position emissions + pairwise transitions + end.
func (m *Model) PathScore(emissions [][]float64, tags []int) (float64, error) {
	n, err := m.checkEmissions(emissions)
	if err != nil {
		return 0, fmt.Errorf("crf: score: %w", err)
	}
	if err := m.checkTags(tags, n); err != nil {
		return 0, fmt.Errorf("crf: score: %w", err)
	}

	score := m.Start[tags[0]] + emissions[0][tags[0]]
	for t := 1; t < n; t++ {
		score += m.Trans[tags[t]][tags[t-1]] + emissions[t][tags[t]]
	}
	score += m.End[tags[n-1]]

	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("crf: score: non-finite result %v", score)
	}
	return score, nil
}

// LogLikelihood returns log P(tags | emissions) = PathScore - Partition.
// The result is always <= 0.
func (m *Model) LogLikelihood(emissions [][]float64, tags []int) (float64, error) {
	score, err := m.PathScore(emissions, tags)
	if err != nil {
		return 0, err
	}
	logZ, err := m.Partition(emissions)
	if err != nil {
		return 0, err
	}
	return score - logZ, nil
}
