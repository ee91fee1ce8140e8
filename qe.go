// Package qe estimates machine translation quality by tagging each word
// of a translated sentence as OK or BAD.
//
// A linear-chain CRF scores label sequences over per-word feature vectors;
// decoded target-side tags are projected onto the source sentence through
// the word alignment.
//
//	t, _ := qe.Load("model.json", srcEmb, mtEmb)
//	r, _ := t.Tag(srcWords, mtWords, pairs)
//	fmt.Println(r.TargetTags) // [1 1 0 1], 0 = BAD
//	fmt.Println(r.SourceTags)
package qe

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nlpforge/qe/align"
	"github.com/nlpforge/qe/crf"
	"github.com/nlpforge/qe/internal/dataset"
	"github.com/nlpforge/qe/internal/embedding"
	"github.com/nlpforge/qe/internal/feature"
)

// Tagger wraps a trained CRF model together with the feature pipeline.
type Tagger struct {
	Model *crf.Model

	conv *feature.Converter
	src  *embedding.Embeddings
	mt   *embedding.Embeddings
}

// Result holds the quality tags for one sentence. Tags use crf.TagBAD and
// crf.TagOK; padded positions carry crf.TagIgnore.
type Result struct {
	TargetTags []int   `json:"target_tags"`
	SourceTags []int   `json:"source_tags"`
	Score      float64 `json:"score"` // Viterbi log score, not a probability
}

// taggerFile is the on-disk model format: the CRF parameters plus the
// converter configuration needed to rebuild the feature pipeline.
type taggerFile struct {
	Model         *crf.Model `json:"model"`
	BaselineSizes []int      `json:"baseline_sizes,omitempty"`
}

// New builds a tagger from a model and the embedding tables it was
// trained with.
func New(model *crf.Model, src, mt *embedding.Embeddings, baselineSizes []int) (*Tagger, error) {
	conv := feature.NewConverter(src, mt, baselineSizes)
	if model.InputSize != conv.Size() {
		return nil, fmt.Errorf("qe: model expects %d features, pipeline produces %d", model.InputSize, conv.Size())
	}
	return &Tagger{Model: model, conv: conv, src: src, mt: mt}, nil
}

// Load reads a trained tagger from a model file. The embedding tables are
// supplied by the caller; they must match the ones used in training.
func Load(path string, src, mt *embedding.Embeddings) (*Tagger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("qe: %w", err)
	}
	var tf taggerFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("qe: %w", err)
	}
	if tf.Model == nil {
		return nil, fmt.Errorf("qe: model file %s has no CRF parameters", path)
	}
	if err := tf.Model.Validate(); err != nil {
		return nil, fmt.Errorf("qe: %w", err)
	}
	return New(tf.Model, src, mt, tf.BaselineSizes)
}

// Save writes the tagger to a model file.
func (t *Tagger) Save(path string) error {
	if t.Model == nil {
		return fmt.Errorf("qe: tagger not initialized")
	}
	data, err := json.MarshalIndent(taggerFile{
		Model:         t.Model,
		BaselineSizes: t.conv.BaselineSizes,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("qe: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Tag tags one sentence given as words. Unknown words map to the zero
// embedding row.
func (t *Tagger) Tag(srcWords, mtWords []string, pairs []align.Pair) (*Result, error) {
	return t.TagTokens(t.src.IDs(srcWords), t.mt.IDs(mtWords), pairs, nil)
}

// TagTokens tags one sentence given as token ids, with optional baseline
// feature rows when the model was trained with them.
func (t *Tagger) TagTokens(srcTokens, mtTokens []int, pairs []align.Pair, baseline [][]float64) (*Result, error) {
	features, err := t.conv.Sentence(srcTokens, mtTokens, pairs, baseline)
	if err != nil {
		return nil, fmt.Errorf("qe: %w", err)
	}
	emissions, err := t.Model.Emissions(features)
	if err != nil {
		return nil, fmt.Errorf("qe: %w", err)
	}
	tags, score, err := t.Model.Decode(emissions)
	if err != nil {
		return nil, fmt.Errorf("qe: %w", err)
	}
	sourceTags, err := align.ProjectToSource(len(srcTokens), tags, pairs)
	if err != nil {
		return nil, fmt.Errorf("qe: %w", err)
	}
	return &Result{TargetTags: tags, SourceTags: sourceTags, Score: score}, nil
}

// TagPadded tags one row of padded batch storage. Token slices may carry
// trailing pad tokens; the result keeps the padded width with pad
// positions re-marked as crf.TagIgnore.
func (t *Tagger) TagPadded(srcTokens, mtTokens []int, pairs []align.Pair) (*Result, error) {
	srcLen := dataset.Length(srcTokens)
	mtLen := dataset.Length(mtTokens)
	if mtLen == 0 {
		return nil, fmt.Errorf("qe: empty target sentence")
	}

	r, err := t.TagTokens(srcTokens[:srcLen], mtTokens[:mtLen], pairs, nil)
	if err != nil {
		return nil, err
	}

	target := make([]int, len(mtTokens))
	copy(target, r.TargetTags)
	align.MaskPadding(target, mtLen)

	source := make([]int, len(srcTokens))
	copy(source, r.SourceTags)
	align.MaskPadding(source, srcLen)

	return &Result{TargetTags: target, SourceTags: source, Score: r.Score}, nil
}

// TagString converts a result's target tags back to OK/BAD strings,
// skipping ignored pad positions.
func TagString(tag int) string {
	switch tag {
	case crf.TagBAD:
		return dataset.BADToken
	case crf.TagOK:
		return dataset.OKToken
	}
	return "-"
}
