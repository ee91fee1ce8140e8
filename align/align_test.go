package align

import (
	"reflect"
	"testing"

	"github.com/nlpforge/qe/crf"
)

func TestProjectStopsAtSentinel(t *testing.T) {
	targetTags := []int{crf.TagOK, crf.TagBAD}
	pairs := []Pair{{0, 1}, {1, -1}, {2, 0}}

	got, err := ProjectToSource(3, targetTags, pairs)
	if err != nil {
		t.Fatal(err)
	}

	// Only (0,1) is processed: source 0 aligns to a BAD target word.
	// The (2,0) pair after the sentinel must be ignored.
	want := []int{crf.TagBAD, crf.TagOK, crf.TagOK}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ProjectToSource = %v, want %v", got, want)
	}
}

func TestProjectPoisoning(t *testing.T) {
	targetTags := []int{crf.TagBAD, crf.TagOK}

	// BAD then OK alignment for the same source word.
	got, err := ProjectToSource(1, targetTags, []Pair{{0, 0}, {0, 1}})
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != crf.TagBAD {
		t.Errorf("BAD-then-OK: source tag %d, want BAD", got[0])
	}

	// OK then BAD in the other order.
	got, err = ProjectToSource(1, targetTags, []Pair{{0, 1}, {0, 0}})
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != crf.TagBAD {
		t.Errorf("OK-then-BAD: source tag %d, want BAD", got[0])
	}
}

func TestProjectAllOKDefault(t *testing.T) {
	got, err := ProjectToSource(4, []int{crf.TagOK}, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i, tag := range got {
		if tag != crf.TagOK {
			t.Errorf("source tag %d = %d, want OK", i, tag)
		}
	}
}

func TestProjectValidation(t *testing.T) {
	targetTags := []int{crf.TagOK, crf.TagBAD}

	if _, err := ProjectToSource(-1, targetTags, nil); err == nil {
		t.Error("negative source length should fail")
	}
	if _, err := ProjectToSource(2, targetTags, []Pair{{0, 5}}); err == nil {
		t.Error("out-of-range target index should fail")
	}
	if _, err := ProjectToSource(2, targetTags, []Pair{{0, -2}}); err == nil {
		t.Error("non-sentinel negative target index should fail")
	}
	if _, err := ProjectToSource(2, targetTags, []Pair{{5, 0}}); err == nil {
		t.Error("out-of-range source index should fail")
	}
}

func TestMaskPadding(t *testing.T) {
	tags := []int{crf.TagOK, crf.TagBAD, crf.TagOK, crf.TagOK}
	got := MaskPadding(tags, 2)

	want := []int{crf.TagOK, crf.TagBAD, crf.TagIgnore, crf.TagIgnore}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MaskPadding = %v, want %v", got, want)
	}
}

func TestParsePairs(t *testing.T) {
	got, err := ParsePairs("0-0 1-2 2-1")
	if err != nil {
		t.Fatal(err)
	}
	want := []Pair{{0, 0}, {1, 2}, {2, 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParsePairs = %v, want %v", got, want)
	}

	if got, err := ParsePairs("  "); err != nil || got != nil {
		t.Errorf("blank line = %v, %v, want nil, nil", got, err)
	}
	if _, err := ParsePairs("0:0"); err == nil {
		t.Error("malformed separator should fail")
	}
	if _, err := ParsePairs("a-0"); err == nil {
		t.Error("non-numeric index should fail")
	}
}
