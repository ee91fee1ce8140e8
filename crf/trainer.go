package crf

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// TrainingSequence is one featurized sentence with its gold tags.
type TrainingSequence struct {
	Features *mat.Dense // L x InputSize feature vectors
	Tags     []int      // L gold labels
}

// TrainerConfig holds CRF training hyperparameters.
type TrainerConfig struct {
	C1            float64 // L1 regularization
	C2            float64 // L2 regularization
	MaxIterations int
	Epsilon       float64 // convergence threshold on the pseudo-gradient
	Verbose       bool
}

// DefaultTrainerConfig returns the default training configuration.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		C1:            0.0,
		C2:            0.01,
		MaxIterations: 100,
		Epsilon:       1e-5,
	}
}

// Parameter vector layout used by the optimizer:
// [W (T*F) | b (T) | start (T) | trans (T*T, dst-major) | end (T)].
func vectorSize(inputSize, numTags int) int {
	return numTags*inputSize + numTags + numTags + numTags*numTags + numTags
}

// modelFromVector builds a Model whose parameter slices alias segments of w.
func modelFromVector(w []float64, inputSize, numTags int) *Model {
	m := &Model{NumTags: numTags, InputSize: inputSize}
	off := 0
	m.Weights = w[off : off+numTags*inputSize]
	off += numTags * inputSize
	m.Bias = w[off : off+numTags]
	off += numTags
	m.Start = w[off : off+numTags]
	off += numTags
	m.Trans = make([][]float64, numTags)
	for k := range numTags {
		m.Trans[k] = w[off : off+numTags]
		off += numTags
	}
	m.End = w[off : off+numTags]
	return m
}

// Train fits a model to the sequences with OWL-QN over the negative
// log-likelihood. The objective is convex; parameters start at zero.
func Train(sequences []TrainingSequence, inputSize, numTags int, config TrainerConfig) (*Model, error) {
	if len(sequences) == 0 {
		return nil, fmt.Errorf("crf: train: no training sequences")
	}
	if inputSize <= 0 || numTags <= 0 {
		return nil, fmt.Errorf("crf: train: invalid dimensions %dx%d", numTags, inputSize)
	}
	for i, seq := range sequences {
		rows, cols := seq.Features.Dims()
		if rows == 0 {
			return nil, fmt.Errorf("crf: train: sequence %d is empty", i)
		}
		if cols != inputSize {
			return nil, fmt.Errorf("crf: train: sequence %d has feature width %d, want %d", i, cols, inputSize)
		}
		if len(seq.Tags) != rows {
			return nil, fmt.Errorf("crf: train: sequence %d has %d tags for %d positions", i, len(seq.Tags), rows)
		}
		for t, y := range seq.Tags {
			if y < 0 || y >= numTags {
				return nil, fmt.Errorf("crf: train: sequence %d tag %d at position %d outside [0, %d)", i, y, t, numTags)
			}
		}
	}

	tr := &trainer{sequences: sequences, inputSize: inputSize, numTags: numTags, config: config}

	n := vectorSize(inputSize, numTags)
	w := make([]float64, n)
	grad := make([]float64, n)
	opt := newLBFGS(n, 10)

	for iter := range config.MaxIterations {
		nll := tr.evaluate(w, grad)
		slog.Debug("CRF training iteration", "iteration", iter+1, "nll", nll)

		pg := pseudoGradient(w, grad, config.C1)
		dir := opt.computeDirection(pg)

		// Constrain the direction to the pseudo-gradient's orthant.
		for i := range n {
			if dir[i]*pg[i] > 0 {
				dir[i] = 0
			}
		}

		step := owlqnLineSearch(w, dir, nll, pg, func(wNew []float64) float64 {
			return tr.evaluate(wNew, nil)
		}, config.C1)
		if step == 0 {
			slog.Warn("CRF line search failed, stopping")
			break
		}

		prevW := make([]float64, n)
		copy(prevW, w)
		floats.AddScaled(w, step, dir)
		if config.C1 > 0 {
			for i := range n {
				if w[i]*prevW[i] < 0 {
					w[i] = 0
				}
			}
		}

		newGrad := make([]float64, n)
		tr.evaluate(w, newGrad)
		newPG := pseudoGradient(w, newGrad, config.C1)

		s := make([]float64, n)
		y := make([]float64, n)
		floats.SubTo(s, w, prevW)
		floats.SubTo(y, newPG, pg)
		opt.update(s, y)

		maxGrad := 0.0
		for _, g := range newPG {
			if math.Abs(g) > maxGrad {
				maxGrad = math.Abs(g)
			}
		}
		if maxGrad < config.Epsilon {
			slog.Debug("CRF converged", "iteration", iter+1, "max_gradient", maxGrad)
			break
		}
	}

	return modelFromVector(w, inputSize, numTags), nil
}

type trainer struct {
	sequences []TrainingSequence
	inputSize int
	numTags   int
	config    TrainerConfig
}

// evaluate computes the regularized negative log-likelihood at w and, when
// grad is non-nil, accumulates its gradient (excluding the L1 term, which
// OWL-QN handles through the pseudo-gradient).
func (tr *trainer) evaluate(w, grad []float64) float64 {
	T := tr.numTags
	F := tr.inputSize
	model := modelFromVector(w, F, T)

	if grad != nil {
		for i := range grad {
			grad[i] = 0
		}
	}

	transOff := T*F + T + T

	nll := 0.0
	for _, seq := range tr.sequences {
		n, _ := seq.Features.Dims()

		emissions, err := model.Emissions(seq.Features)
		if err != nil {
			// Dimensions were validated up front.
			panic(err)
		}
		fb := model.forwardBackward(emissions)

		goldScore := model.Start[seq.Tags[0]] + emissions[0][seq.Tags[0]]
		for t := 1; t < n; t++ {
			goldScore += model.Trans[seq.Tags[t]][seq.Tags[t-1]] + emissions[t][seq.Tags[t]]
		}
		goldScore += model.End[seq.Tags[n-1]]
		nll += -goldScore + fb.logZ

		if grad == nil {
			continue
		}

		// d[t][k] = P(y_t = k | x) - [y_t == k]
		d := mat.NewDense(n, T, nil)
		for t := range n {
			for k := range T {
				v := fb.marginals[t][k]
				if seq.Tags[t] == k {
					v -= 1
				}
				d.Set(t, k, v)
			}
		}

		// Emission projection gradient: dW = d^T X, db = column sums of d.
		gw := mat.NewDense(T, F, grad[:T*F])
		var dw mat.Dense
		dw.Mul(d.T(), seq.Features)
		gw.Add(gw, &dw)
		for k := range T {
			for t := range n {
				grad[T*F+k] += d.At(t, k)
			}
		}

		// Start/end gradients come from the boundary marginals.
		for k := range T {
			grad[T*F+T+k] += d.At(0, k)
			grad[transOff+T*T+k] += d.At(n-1, k)
		}

		// Transition gradient: model expectation minus empirical counts.
		if n > 1 {
			transMarg := model.transitionMarginals(fb, emissions)
			for t := range n - 1 {
				grad[transOff+seq.Tags[t+1]*T+seq.Tags[t]] -= 1
				for k := range T {
					for j := range T {
						grad[transOff+k*T+j] += transMarg[t][k][j]
					}
				}
			}
		}
	}

	if tr.config.C2 > 0 {
		nll += 0.5 * tr.config.C2 * floats.Dot(w, w)
		if grad != nil {
			floats.AddScaled(grad, tr.config.C2, w)
		}
	}
	if tr.config.C1 > 0 {
		for _, v := range w {
			nll += tr.config.C1 * math.Abs(v)
		}
	}
	return nll
}

// pseudoGradient computes the OWL-QN pseudo-gradient of the L1 term.
func pseudoGradient(w, grad []float64, c1 float64) []float64 {
	pg := make([]float64, len(w))
	if c1 == 0 {
		copy(pg, grad)
		return pg
	}
	for i := range w {
		switch {
		case w[i] > 0:
			pg[i] = grad[i] + c1
		case w[i] < 0:
			pg[i] = grad[i] - c1
		default:
			switch {
			case grad[i]+c1 < 0:
				pg[i] = grad[i] + c1
			case grad[i]-c1 > 0:
				pg[i] = grad[i] - c1
			default:
				pg[i] = 0
			}
		}
	}
	return pg
}

// lbfgs implements the L-BFGS two-loop recursion.
type lbfgs struct {
	n    int // number of variables
	m    int // memory size
	s    [][]float64
	y    [][]float64
	rho  []float64
	k    int
	size int
}

func newLBFGS(n, m int) *lbfgs {
	return &lbfgs{
		n:   n,
		m:   m,
		s:   make([][]float64, m),
		y:   make([][]float64, m),
		rho: make([]float64, m),
	}
}

func (l *lbfgs) update(s, y []float64) {
	sy := floats.Dot(s, y)
	if sy <= 0 {
		return
	}
	idx := l.k % l.m
	l.s[idx] = make([]float64, l.n)
	l.y[idx] = make([]float64, l.n)
	copy(l.s[idx], s)
	copy(l.y[idx], y)
	l.rho[idx] = 1.0 / sy
	l.k++
	if l.size < l.m {
		l.size++
	}
}

func (l *lbfgs) computeDirection(pg []float64) []float64 {
	q := make([]float64, l.n)
	copy(q, pg)

	if l.size == 0 {
		floats.Scale(-1, q)
		return q
	}

	alpha := make([]float64, l.size)

	for i := l.size - 1; i >= 0; i-- {
		idx := (l.k - 1 - (l.size - 1 - i)) % l.m
		if idx < 0 {
			idx += l.m
		}
		alpha[i] = l.rho[idx] * floats.Dot(l.s[idx], q)
		floats.AddScaled(q, -alpha[i], l.y[idx])
	}

	// Scale by H_0 = (s_k^T y_k) / (y_k^T y_k)
	latestIdx := (l.k - 1) % l.m
	if latestIdx < 0 {
		latestIdx += l.m
	}
	yy := floats.Dot(l.y[latestIdx], l.y[latestIdx])
	if yy > 0 {
		gamma := floats.Dot(l.s[latestIdx], l.y[latestIdx]) / yy
		floats.Scale(gamma, q)
	}

	for i := range l.size {
		idx := (l.k - l.size + i) % l.m
		if idx < 0 {
			idx += l.m
		}
		beta := l.rho[idx] * floats.Dot(l.y[idx], q)
		floats.AddScaled(q, alpha[i]-beta, l.s[idx])
	}

	floats.Scale(-1, q)
	return q
}

// owlqnLineSearch performs a backtracking line search with orthant
// projection when L1 regularization is active.
func owlqnLineSearch(w, dir []float64, fVal float64, pg []float64, objFunc func([]float64) float64, c1 float64) float64 {
	dirDeriv := floats.Dot(dir, pg)
	if dirDeriv >= 0 {
		return 0
	}

	step := 1.0
	const armijo = 1e-4
	wNew := make([]float64, len(w))

	for trial := 0; trial < 20; trial++ {
		copy(wNew, w)
		floats.AddScaled(wNew, step, dir)
		if c1 > 0 {
			for i := range wNew {
				if wNew[i]*w[i] < 0 {
					wNew[i] = 0
				}
			}
		}

		fNew := objFunc(wNew)
		if fNew <= fVal+armijo*step*dirDeriv {
			return step
		}
		step *= 0.5
	}
	return step // return last tried step even without sufficient decrease
}
