// Package align projects decoded target-side quality tags onto the source
// sentence through a word alignment map.
package align

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nlpforge/qe/crf"
)

// Pair links a source token index to a target token index.
type Pair struct {
	Src int `json:"src"`
	Tgt int `json:"tgt"`
}

// EndOfAlignment is the target-index sentinel terminating a sentence's
// alignment list inside padded batch storage.
const EndOfAlignment = -1

// ParsePairs parses a whitespace separated list of src-tgt alignment
// fields in the usual Pharaoh format, e.g. "0-0 1-2 2-1".
func ParsePairs(line string) ([]Pair, error) {
	var pairs []Pair
	for _, field := range strings.Fields(line) {
		srcStr, tgtStr, ok := strings.Cut(field, "-")
		if !ok {
			return nil, fmt.Errorf("align: malformed pair %q", field)
		}
		src, err := strconv.Atoi(srcStr)
		if err != nil {
			return nil, fmt.Errorf("align: pair %q: %w", field, err)
		}
		tgt, err := strconv.Atoi(tgtStr)
		if err != nil {
			return nil, fmt.Errorf("align: pair %q: %w", field, err)
		}
		pairs = append(pairs, Pair{Src: src, Tgt: tgt})
	}
	return pairs, nil
}

// ProjectToSource derives source-side tags from decoded target tags.
// Every source word starts as OK; a source word is BAD iff at least one
// aligned target word is BAD. Pairs are scanned in order and scanning
// stops at the first pair whose target index is the EndOfAlignment
// sentinel.
func ProjectToSource(srcLen int, targetTags []int, pairs []Pair) ([]int, error) {
	if srcLen < 0 {
		return nil, fmt.Errorf("align: projection: negative source length %d", srcLen)
	}

	sourceTags := make([]int, srcLen)
	for i := range sourceTags {
		sourceTags[i] = crf.TagOK
	}

	for _, p := range pairs {
		if p.Tgt == EndOfAlignment {
			break
		}
		if p.Tgt < 0 || p.Tgt >= len(targetTags) {
			return nil, fmt.Errorf("align: projection: target index %d outside [0, %d)", p.Tgt, len(targetTags))
		}
		if p.Src < 0 || p.Src >= srcLen {
			return nil, fmt.Errorf("align: projection: source index %d outside [0, %d)", p.Src, srcLen)
		}
		if targetTags[p.Tgt] == crf.TagBAD {
			sourceTags[p.Src] = crf.TagBAD
		}
	}
	return sourceTags, nil
}

// MaskPadding re-marks positions at or beyond the sequence's true length
// with the ignore sentinel, so pad positions are never read as real tags.
// The slice is modified in place and returned.
func MaskPadding(tags []int, length int) []int {
	if length < 0 {
		length = 0
	}
	for i := length; i < len(tags); i++ {
		tags[i] = crf.TagIgnore
	}
	return tags
}
