package qe

import (
	"fmt"
	"log/slog"

	"github.com/nlpforge/qe/align"
	"github.com/nlpforge/qe/crf"
	"github.com/nlpforge/qe/internal/dataset"
	"github.com/nlpforge/qe/internal/embedding"
	"github.com/nlpforge/qe/internal/feature"
)

// TrainConfig holds configuration for training.
type TrainConfig struct {
	Split         string // dataset split name, e.g. "train"
	SrcEmbeddings string // path to source language embeddings
	MTEmbeddings  string // path to MT language embeddings
	C1            float64
	C2            float64
	MaxIterations int
	Verbose       bool
}

// DefaultTrainConfig returns the default training configuration.
func DefaultTrainConfig() *TrainConfig {
	tc := crf.DefaultTrainerConfig()
	return &TrainConfig{
		Split:         "train",
		C1:            tc.C1,
		C2:            tc.C2,
		MaxIterations: tc.MaxIterations,
	}
}

// EvalConfig holds configuration for evaluation.
type EvalConfig struct {
	Split   string // dataset split name, e.g. "dev"
	Workers int    // parallelism for the batch loss
	Verbose bool
}

// EvalResult holds word-level evaluation results on a tagged split.
type EvalResult struct {
	WordAccuracy float64
	WordCorrect  int
	WordTotal    int

	// Per-class F1 over target words; F1Mult is their product, the
	// standard word-level QE headline metric.
	F1BAD  float64
	F1OK   float64
	F1Mult float64

	SequenceAccuracy float64
	SequenceCorrect  int
	SequenceTotal    int

	// Source-side accuracy of the projected tags.
	SourceAccuracy float64
	SourceCorrect  int
	SourceTotal    int

	// Mean per-sequence negative log-likelihood of the gold tags.
	Loss float64
}

// Train trains a tagger on the configured split of a QE data folder.
func Train(dataDir string, config *TrainConfig) (*Tagger, error) {
	if config == nil {
		config = DefaultTrainConfig()
	}
	if config.SrcEmbeddings == "" || config.MTEmbeddings == "" {
		return nil, fmt.Errorf("qe: train: embedding paths not configured")
	}

	src, err := embedding.Load(config.SrcEmbeddings)
	if err != nil {
		return nil, fmt.Errorf("qe: train: %w", err)
	}
	mt, err := embedding.Load(config.MTEmbeddings)
	if err != nil {
		return nil, fmt.Errorf("qe: train: %w", err)
	}

	d, err := dataset.Load(dataDir, config.Split, src, mt, true)
	if err != nil {
		return nil, fmt.Errorf("qe: train: %w", err)
	}

	conv := feature.NewConverter(src, mt, nil)
	var sequences []crf.TrainingSequence
	for i, s := range d.Sentences {
		if len(s.MT) == 0 {
			slog.Debug("Skipping empty sentence", "index", i)
			continue
		}
		features, err := conv.Sentence(s.Src, s.MT, s.Aligns, nil)
		if err != nil {
			return nil, fmt.Errorf("qe: train: sentence %d: %w", i, err)
		}
		sequences = append(sequences, crf.TrainingSequence{Features: features, Tags: s.WordTags})
	}
	if len(sequences) == 0 {
		return nil, fmt.Errorf("qe: train: no usable sentences in %s", dataDir)
	}
	slog.Info("Training CRF", "sentences", len(sequences), "features", conv.Size())

	trainerConfig := crf.TrainerConfig{
		C1:            config.C1,
		C2:            config.C2,
		MaxIterations: config.MaxIterations,
		Epsilon:       1e-5,
		Verbose:       config.Verbose,
	}
	model, err := crf.Train(sequences, conv.Size(), 2, trainerConfig)
	if err != nil {
		return nil, fmt.Errorf("qe: train: %w", err)
	}

	return New(model, src, mt, nil)
}

// Evaluate tags the configured split with the trained tagger and scores
// the predictions against the gold tags.
func Evaluate(dataDir string, t *Tagger, config *EvalConfig) (*EvalResult, error) {
	if config == nil {
		config = &EvalConfig{}
	}
	split := config.Split
	if split == "" {
		split = "dev"
	}
	workers := max(config.Workers, 1)

	d, err := dataset.Load(dataDir, split, t.src, t.mt, true)
	if err != nil {
		return nil, fmt.Errorf("qe: evaluate: %w", err)
	}

	result := &EvalResult{}
	var tp, fp, fn [2]int
	var samples []crf.Sample

	for i, s := range d.Sentences {
		if len(s.MT) == 0 {
			continue
		}
		features, err := t.conv.Sentence(s.Src, s.MT, s.Aligns, nil)
		if err != nil {
			return nil, fmt.Errorf("qe: evaluate: sentence %d: %w", i, err)
		}
		emissions, err := t.Model.Emissions(features)
		if err != nil {
			return nil, fmt.Errorf("qe: evaluate: sentence %d: %w", i, err)
		}
		samples = append(samples, crf.Sample{Emissions: emissions, Tags: s.WordTags, Length: len(s.MT)})

		tags, _, err := t.Model.Decode(emissions)
		if err != nil {
			return nil, fmt.Errorf("qe: evaluate: sentence %d: %w", i, err)
		}

		seqCorrect := true
		for p := range tags {
			gold := s.WordTags[p]
			if tags[p] == gold {
				result.WordCorrect++
				tp[gold]++
			} else {
				seqCorrect = false
				fp[tags[p]]++
				fn[gold]++
			}
			result.WordTotal++
		}
		result.SequenceTotal++
		if seqCorrect {
			result.SequenceCorrect++
		}

		sourceTags, err := align.ProjectToSource(len(s.Src), tags, s.Aligns)
		if err != nil {
			return nil, fmt.Errorf("qe: evaluate: sentence %d: %w", i, err)
		}
		for p := range sourceTags {
			if sourceTags[p] == s.SrcTags[p] {
				result.SourceCorrect++
			}
			result.SourceTotal++
		}
	}

	if result.WordTotal == 0 {
		return nil, fmt.Errorf("qe: evaluate: no tagged sentences in %s", dataDir)
	}

	result.Loss, err = t.Model.BatchLoss(samples, workers)
	if err != nil {
		return nil, fmt.Errorf("qe: evaluate: %w", err)
	}

	result.WordAccuracy = float64(result.WordCorrect) / float64(result.WordTotal)
	if result.SequenceTotal > 0 {
		result.SequenceAccuracy = float64(result.SequenceCorrect) / float64(result.SequenceTotal)
	}
	if result.SourceTotal > 0 {
		result.SourceAccuracy = float64(result.SourceCorrect) / float64(result.SourceTotal)
	}
	result.F1BAD = f1(tp[crf.TagBAD], fp[crf.TagBAD], fn[crf.TagBAD])
	result.F1OK = f1(tp[crf.TagOK], fp[crf.TagOK], fn[crf.TagOK])
	result.F1Mult = result.F1BAD * result.F1OK
	return result, nil
}

func f1(tp, fp, fn int) float64 {
	if tp == 0 {
		return 0
	}
	precision := float64(tp) / float64(tp+fp)
	recall := float64(tp) / float64(tp+fn)
	return 2 * precision * recall / (precision + recall)
}
