package crf

import (
	"fmt"
	"sync"
)

// Sample is one padded batch entry: emission scores and gold tags of the
// padded length, plus the sequence's true length. Positions at or beyond
// Length are padding and never enter the loss.
type Sample struct {
	Emissions [][]float64
	Tags      []int
	Length    int
}

// BatchLoss computes the mean negative log-likelihood over the batch.
// Each sample is truncated to its true length first; the per-sequence
// totals are averaged over the batch size, not the token count, so longer
// sequences weigh proportionally more.
//
// Sequences are independent; workers > 1 fans them out across goroutines.
func (m *Model) BatchLoss(samples []Sample, workers int) (float64, error) {
	if len(samples) == 0 {
		return 0, fmt.Errorf("crf: batch: empty batch")
	}

	losses := make([]float64, len(samples))
	errs := make([]error, len(samples))

	one := func(i int) {
		s := samples[i]
		if s.Length <= 0 || s.Length > len(s.Emissions) || s.Length > len(s.Tags) {
			errs[i] = fmt.Errorf("crf: batch: sample %d has length %d for %d emissions, %d tags",
				i, s.Length, len(s.Emissions), len(s.Tags))
			return
		}
		ll, err := m.LogLikelihood(s.Emissions[:s.Length], s.Tags[:s.Length])
		if err != nil {
			errs[i] = fmt.Errorf("crf: batch: sample %d: %w", i, err)
			return
		}
		losses[i] = -ll
	}

	if workers <= 1 {
		for i := range samples {
			one(i)
		}
	} else {
		var wg sync.WaitGroup
		sem := make(chan struct{}, workers)
		for i := range samples {
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				one(i)
				<-sem
			}()
		}
		wg.Wait()
	}

	var total float64
	for i := range samples {
		if errs[i] != nil {
			return 0, errs[i]
		}
		total += losses[i]
	}
	return total / float64(len(samples)), nil
}
