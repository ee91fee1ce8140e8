// Package feature assembles the per-position feature vectors consumed by
// the CRF: target word embeddings, aligned source context, and one-hot
// encoded categorical baseline features.
package feature

import (
	"fmt"

	"github.com/nlpforge/qe/align"
	"github.com/nlpforge/qe/internal/embedding"
	"gonum.org/v1/gonum/mat"
)

// NumericColumn marks a baseline feature column that is passed through as
// a raw value instead of being one-hot encoded.
const NumericColumn = -1

// Converter turns a sentence into an L x Size() feature matrix, one row
// per target position.
type Converter struct {
	Src *embedding.Embeddings
	MT  *embedding.Embeddings

	// BaselineSizes holds the vocabulary size of each categorical baseline
	// feature column; NumericColumn entries pass through unencoded.
	BaselineSizes []int

	tables []*mat.Dense // one-hot lookup per categorical column
	size   int
}

// NewConverter builds a converter. The one-hot tables are identity rows
// plus a trailing zero row for out-of-vocabulary values, constructed once
// from the fixed vocabulary sizes.
func NewConverter(src, mt *embedding.Embeddings, baselineSizes []int) *Converter {
	c := &Converter{
		Src:           src,
		MT:            mt,
		BaselineSizes: baselineSizes,
		tables:        make([]*mat.Dense, len(baselineSizes)),
	}

	c.size = mt.Dim + src.Dim
	for i, vocabSize := range baselineSizes {
		if vocabSize == NumericColumn {
			c.size++
			continue
		}
		table := mat.NewDense(vocabSize+1, vocabSize, nil)
		for v := range vocabSize {
			table.Set(v, v, 1)
		}
		c.tables[i] = table
		c.size += vocabSize
	}
	return c
}

// Size returns the feature vector width.
func (c *Converter) Size() int {
	return c.size
}

// Sentence builds the feature matrix for one sentence. mtTokens drives the
// row count; each row is the target word embedding, the mean embedding of
// aligned source words, and the encoded baseline features for that
// position. baseline may be nil when no baseline columns are configured.
func (c *Converter) Sentence(srcTokens, mtTokens []int, pairs []align.Pair, baseline [][]float64) (*mat.Dense, error) {
	n := len(mtTokens)
	if n == 0 {
		return nil, fmt.Errorf("feature: empty target sentence")
	}
	if len(c.BaselineSizes) > 0 {
		if len(baseline) != n {
			return nil, fmt.Errorf("feature: %d baseline rows for %d target words", len(baseline), n)
		}
		for t := range baseline {
			if len(baseline[t]) != len(c.BaselineSizes) {
				return nil, fmt.Errorf("feature: baseline row %d has %d columns, want %d", t, len(baseline[t]), len(c.BaselineSizes))
			}
		}
	}

	// Aligned source token ids per target position, sentinel-terminated.
	alignedSrc := make([][]int, n)
	for _, p := range pairs {
		if p.Tgt == align.EndOfAlignment {
			break
		}
		if p.Tgt < 0 || p.Tgt >= n || p.Src < 0 || p.Src >= len(srcTokens) {
			return nil, fmt.Errorf("feature: alignment pair (%d,%d) outside %dx%d sentence", p.Src, p.Tgt, len(srcTokens), n)
		}
		alignedSrc[p.Tgt] = append(alignedSrc[p.Tgt], srcTokens[p.Src])
	}

	out := mat.NewDense(n, c.size, nil)
	for t := range n {
		row := out.RawRowView(t)
		col := 0

		copy(row[col:], c.MT.Lookup(mtTokens[t]))
		col += c.MT.Dim

		// Mean embedding of aligned source words; zero when unaligned.
		if len(alignedSrc[t]) > 0 {
			ctx := row[col : col+c.Src.Dim]
			for _, id := range alignedSrc[t] {
				vec := c.Src.Lookup(id)
				for d := range ctx {
					ctx[d] += vec[d]
				}
			}
			scale := 1.0 / float64(len(alignedSrc[t]))
			for d := range ctx {
				ctx[d] *= scale
			}
		}
		col += c.Src.Dim

		for i, vocabSize := range c.BaselineSizes {
			val := baseline[t][i]
			if vocabSize == NumericColumn {
				row[col] = val
				col++
				continue
			}
			// Out-of-vocabulary categorical values read the zero row.
			idx := int(val)
			if idx < 0 || idx >= vocabSize {
				idx = vocabSize
			}
			copy(row[col:col+vocabSize], c.tables[i].RawRowView(idx))
			col += vocabSize
		}
	}
	return out, nil
}
