package feature

import (
	"math"
	"testing"

	"github.com/nlpforge/qe/align"
	"github.com/nlpforge/qe/internal/embedding"
	"gonum.org/v1/gonum/mat"
)

func testEmbeddings(t *testing.T, dim int, vectors map[string][]float64, order ...string) *embedding.Embeddings {
	t.Helper()
	vocab := embedding.NewVocab()
	data := make([]float64, 0, len(order)*dim)
	for _, w := range order {
		vocab.Add(w)
		data = append(data, vectors[w]...)
	}
	emb, err := embedding.New(vocab, mat.NewDense(len(order), dim, data))
	if err != nil {
		t.Fatal(err)
	}
	return emb
}

func TestConverterSize(t *testing.T) {
	src := testEmbeddings(t, 2, map[string][]float64{"s": {1, 2}}, "s")
	mt := testEmbeddings(t, 3, map[string][]float64{"m": {1, 2, 3}}, "m")

	c := NewConverter(src, mt, []int{4, NumericColumn, 2})
	// 3 (mt) + 2 (src context) + 4 + 1 + 2
	if c.Size() != 12 {
		t.Errorf("Size = %d, want 12", c.Size())
	}
}

func TestSentence(t *testing.T) {
	src := testEmbeddings(t, 2, map[string][]float64{
		"das":  {1, 0},
		"Haus": {0, 2},
	}, "das", "Haus")
	mt := testEmbeddings(t, 2, map[string][]float64{
		"the":   {3, 3},
		"house": {4, 4},
	}, "the", "house")

	c := NewConverter(src, mt, nil)

	// Target word 0 aligns to both source words, word 1 to none.
	features, err := c.Sentence(
		[]int{0, 1},
		[]int{0, 1},
		[]align.Pair{{Src: 0, Tgt: 0}, {Src: 1, Tgt: 0}},
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}

	rows, cols := features.Dims()
	if rows != 2 || cols != 4 {
		t.Fatalf("dims = %dx%d, want 2x4", rows, cols)
	}

	// Row 0: "the" embedding then mean of both source embeddings.
	want0 := []float64{3, 3, 0.5, 1}
	for i, w := range want0 {
		if math.Abs(features.At(0, i)-w) > 1e-12 {
			t.Errorf("row 0 col %d = %v, want %v", i, features.At(0, i), w)
		}
	}

	// Row 1: "house" embedding, zero source context.
	want1 := []float64{4, 4, 0, 0}
	for i, w := range want1 {
		if math.Abs(features.At(1, i)-w) > 1e-12 {
			t.Errorf("row 1 col %d = %v, want %v", i, features.At(1, i), w)
		}
	}
}

func TestSentenceSentinelStops(t *testing.T) {
	src := testEmbeddings(t, 1, map[string][]float64{"s": {5}}, "s")
	mt := testEmbeddings(t, 1, map[string][]float64{"m": {7}}, "m")
	c := NewConverter(src, mt, nil)

	// The out-of-range pair after the sentinel must never be read.
	pairs := []align.Pair{
		{Src: 0, Tgt: align.EndOfAlignment},
		{Src: 99, Tgt: 99},
	}
	features, err := c.Sentence([]int{0}, []int{0}, pairs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if features.At(0, 1) != 0 {
		t.Errorf("source context = %v, want 0", features.At(0, 1))
	}
}

func TestSentenceBaseline(t *testing.T) {
	src := testEmbeddings(t, 1, map[string][]float64{"s": {0}}, "s")
	mt := testEmbeddings(t, 1, map[string][]float64{"m": {0}}, "m")
	c := NewConverter(src, mt, []int{3, NumericColumn})

	features, err := c.Sentence([]int{0}, []int{0, 0}, nil, [][]float64{
		{1, 0.25},
		{-1, 7.5}, // negative categorical value reads the zero row
	})
	if err != nil {
		t.Fatal(err)
	}

	// Row 0: one-hot index 1 of 3, then the raw numeric value.
	want0 := []float64{0, 0, 0, 1, 0, 0.25}
	for i, w := range want0 {
		if features.At(0, i) != w {
			t.Errorf("row 0 col %d = %v, want %v", i, features.At(0, i), w)
		}
	}
	want1 := []float64{0, 0, 0, 0, 0, 7.5}
	for i, w := range want1 {
		if features.At(1, i) != w {
			t.Errorf("row 1 col %d = %v, want %v", i, features.At(1, i), w)
		}
	}
}

func TestSentenceValidation(t *testing.T) {
	src := testEmbeddings(t, 1, map[string][]float64{"s": {0}}, "s")
	mt := testEmbeddings(t, 1, map[string][]float64{"m": {0}}, "m")

	c := NewConverter(src, mt, nil)
	if _, err := c.Sentence(nil, nil, nil, nil); err == nil {
		t.Error("empty target sentence should fail")
	}
	if _, err := c.Sentence([]int{0}, []int{0}, []align.Pair{{Src: 0, Tgt: 5}}, nil); err == nil {
		t.Error("out-of-range alignment should fail")
	}

	withBaseline := NewConverter(src, mt, []int{2})
	if _, err := withBaseline.Sentence([]int{0}, []int{0}, nil, nil); err == nil {
		t.Error("missing baseline rows should fail")
	}
}
