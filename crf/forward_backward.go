package crf

import "math"

// fbResult holds the scaled forward-backward quantities used by the trainer.
type fbResult struct {
	logZ      float64
	marginals [][]float64 // [n][T] P(y_t = k | x)
	alpha     [][]float64 // scaled forward variables
	beta      [][]float64 // scaled backward variables
	scale     []float64
}

// forwardBackward runs the scaled forward-backward algorithm over one
// sequence. Start and end transition scores are folded into the boundary
// emission scores, so the recurrences only see pairwise transitions.
func (m *Model) forwardBackward(emissions [][]float64) fbResult {
	n := len(emissions)
	T := m.NumTags

	expState := make([][]float64, n)
	for t := range n {
		expState[t] = make([]float64, T)
		for k := range T {
			s := emissions[t][k]
			if t == 0 {
				s += m.Start[k]
			}
			if t == n-1 {
				s += m.End[k]
			}
			expState[t][k] = math.Exp(s)
		}
	}

	expTrans := make([][]float64, T)
	for k := range T {
		expTrans[k] = make([]float64, T)
		for j := range T {
			expTrans[k][j] = math.Exp(m.Trans[k][j])
		}
	}

	alpha := make([][]float64, n)
	scale := make([]float64, n)

	alpha[0] = make([]float64, T)
	var sum float64
	for k := range T {
		alpha[0][k] = expState[0][k]
		sum += alpha[0][k]
	}
	scale[0] = 1.0 / sum
	for k := range T {
		alpha[0][k] *= scale[0]
	}

	for t := 1; t < n; t++ {
		alpha[t] = make([]float64, T)
		sum = 0
		for k := range T {
			var s float64
			for j := range T {
				s += alpha[t-1][j] * expTrans[k][j]
			}
			alpha[t][k] = s * expState[t][k]
			sum += alpha[t][k]
		}
		if sum == 0 {
			scale[t] = 1.0
		} else {
			scale[t] = 1.0 / sum
		}
		for k := range T {
			alpha[t][k] *= scale[t]
		}
	}

	beta := make([][]float64, n)
	beta[n-1] = make([]float64, T)
	for k := range T {
		beta[n-1][k] = scale[n-1]
	}

	for t := n - 2; t >= 0; t-- {
		beta[t] = make([]float64, T)
		for j := range T {
			var s float64
			for k := range T {
				s += expTrans[k][j] * expState[t+1][k] * beta[t+1][k]
			}
			beta[t][j] = s * scale[t]
		}
	}

	logZ := 0.0
	for t := range n {
		logZ -= math.Log(scale[t])
	}

	marginals := make([][]float64, n)
	for t := range n {
		marginals[t] = make([]float64, T)
		for k := range T {
			marginals[t][k] = alpha[t][k] * beta[t][k] / scale[t]
		}
	}

	return fbResult{
		logZ:      logZ,
		marginals: marginals,
		alpha:     alpha,
		beta:      beta,
		scale:     scale,
	}
}

// transitionMarginals computes P(y_t = j, y_{t+1} = k | x) for all t.
// The returned tensor is [n-1][dst][src], matching the Trans layout.
func (m *Model) transitionMarginals(fb fbResult, emissions [][]float64) [][][]float64 {
	n := len(emissions)
	if n <= 1 {
		return nil
	}
	T := m.NumTags

	expState := make([][]float64, n)
	for t := range n {
		expState[t] = make([]float64, T)
		for k := range T {
			s := emissions[t][k]
			if t == 0 {
				s += m.Start[k]
			}
			if t == n-1 {
				s += m.End[k]
			}
			expState[t][k] = math.Exp(s)
		}
	}
	expTrans := make([][]float64, T)
	for k := range T {
		expTrans[k] = make([]float64, T)
		for j := range T {
			expTrans[k][j] = math.Exp(m.Trans[k][j])
		}
	}

	result := make([][][]float64, n-1)
	for t := range n - 1 {
		result[t] = make([][]float64, T)
		for k := range T {
			result[t][k] = make([]float64, T)
			for j := range T {
				result[t][k][j] = fb.alpha[t][j] * expTrans[k][j] * expState[t+1][k] * fb.beta[t+1][k]
			}
		}
	}
	return result
}
