package crf

import (
	"fmt"
	"math"
)

// Decode finds the highest-scoring label path through the sequence with the
// Viterbi algorithm and returns the path and its log score. Ties between
// predecessors are broken by the first maximal label.
func (m *Model) Decode(emissions [][]float64) ([]int, float64, error) {
	n, err := m.checkEmissions(emissions)
	if err != nil {
		return nil, 0, fmt.Errorf("crf: decode: %w", err)
	}
	T := m.NumTags

	// delta[k] = max score of a path ending at label k
	delta := make([]float64, T)
	next := make([]float64, T)

	// parent[t][k] = predecessor label on the best path, -1 at position 0
	parent := make([][]int, n)
	for t := range n {
		parent[t] = make([]int, T)
		for k := range T {
			parent[t][k] = -1
		}
	}

	for k := range T {
		delta[k] = m.Start[k] + emissions[0][k]
	}

	for t := 1; t < n; t++ {
		for k := range T {
			bestScore := math.Inf(-1)
			bestPrev := -1
			for j := range T {
				score := m.Trans[k][j] + delta[j]
				if score > bestScore {
					bestScore = score
					bestPrev = j
				}
			}
			next[k] = bestScore + emissions[t][k]
			parent[t][k] = bestPrev
		}
		delta, next = next, delta
	}

	bestScore := math.Inf(-1)
	bestTag := -1
	for k := range T {
		if s := m.End[k] + delta[k]; s > bestScore {
			bestScore = s
			bestTag = k
		}
	}
	if math.IsNaN(bestScore) || math.IsInf(bestScore, 0) {
		return nil, 0, fmt.Errorf("crf: decode: non-finite path score %v", bestScore)
	}

	// Backtrack until the position-0 sentinel predecessor.
	path := make([]int, 0, n)
	cur, idx := bestTag, n-1
	for cur != -1 {
		if idx < 0 {
			return nil, 0, fmt.Errorf("crf: decode: backpointer chain ran past position 0")
		}
		path = append(path, cur)
		cur = parent[idx][cur]
		idx--
	}
	if len(path) != n {
		return nil, 0, fmt.Errorf("crf: decode: reconstructed path length %d, want %d", len(path), n)
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, bestScore, nil
}
