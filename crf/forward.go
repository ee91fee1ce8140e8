package crf

import (
	"fmt"
	"math"
)

// Partition computes the log of the summed exponentiated scores of all
// label paths through the sequence (the log partition function), using a
// log-domain forward pass in O(L*T^2).
func (m *Model) Partition(emissions [][]float64) (float64, error) {
	n, err := m.checkEmissions(emissions)
	if err != nil {
		return 0, fmt.Errorf("crf: partition: %w", err)
	}
	T := m.NumTags

	// alpha[k] = log total score of all paths ending at label k
	alpha := make([]float64, T)
	next := make([]float64, T)
	buf := make([]float64, T)

	for k := range T {
		alpha[k] = m.Start[k] + emissions[0][k]
	}

	for t := 1; t < n; t++ {
		for k := range T {
			for j := range T {
				buf[j] = m.Trans[k][j] + alpha[j]
			}
			next[k] = logSumExp(buf) + emissions[t][k]
		}
		alpha, next = next, alpha
	}

	for k := range T {
		buf[k] = m.End[k] + alpha[k]
	}
	logZ := logSumExp(buf)

	if math.IsNaN(logZ) || math.IsInf(logZ, 0) {
		return 0, fmt.Errorf("crf: partition: non-finite result %v", logZ)
	}
	return logZ, nil
}

// logSumExp computes log(sum(exp(xs))) with the running maximum subtracted
// before exponentiating, so scores of large magnitude do not overflow.
func logSumExp(xs []float64) float64 {
	maxScore := math.Inf(-1)
	for _, x := range xs {
		if x > maxScore {
			maxScore = x
		}
	}
	if math.IsInf(maxScore, -1) {
		return maxScore
	}
	var sum float64
	for _, x := range xs {
		sum += math.Exp(x - maxScore)
	}
	return maxScore + math.Log(sum)
}
