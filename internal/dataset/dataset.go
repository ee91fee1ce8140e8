// Package dataset reads WMT-style quality estimation data folders: source
// and MT text, OK/BAD tag files, and source-MT word alignments.
package dataset

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nlpforge/qe/align"
	"github.com/nlpforge/qe/crf"
	"github.com/nlpforge/qe/internal/embedding"
)

// PadToken fills positions beyond a sequence's true length in padded
// batch storage.
const PadToken = embedding.PadID

// Tag strings recognized in tag files.
const (
	OKToken  = "OK"
	BADToken = "BAD"
)

// Sentence is one aligned (source, MT) pair with optional gold tags.
type Sentence struct {
	Src []int // source token ids
	MT  []int // MT token ids

	SrcTags  []int // per source word, training data only
	WordTags []int // per MT word
	GapTags  []int // per MT gap (len(MT)+1 entries)

	Aligns []align.Pair
}

// Dataset is a loaded split (train/dev/test) of a QE data folder.
type Dataset struct {
	Name      string
	Sentences []Sentence
}

// Load reads the split <name> from dir: <name>.src, <name>.mt,
// <name>.src-mt.alignments, and, when useTags is set, <name>.tags
// (interleaved gap and word tags) and <name>.source_tags.
func Load(dir, name string, src, mt *embedding.Embeddings, useTags bool) (*Dataset, error) {
	srcTokens, err := readText(filepath.Join(dir, name+".src"), src)
	if err != nil {
		return nil, err
	}
	mtTokens, err := readText(filepath.Join(dir, name+".mt"), mt)
	if err != nil {
		return nil, err
	}
	aligns, err := readAlignments(filepath.Join(dir, name+".src-mt.alignments"))
	if err != nil {
		return nil, err
	}

	var srcTags, wordTags, gapTags [][]int
	if useTags {
		srcTags, _, err = readTags(filepath.Join(dir, name+".source_tags"), false)
		if err != nil {
			return nil, err
		}
		wordTags, gapTags, err = readTags(filepath.Join(dir, name+".tags"), true)
		if err != nil {
			return nil, err
		}
	}

	d := &Dataset{Name: name}
	for i := range srcTokens {
		s := Sentence{Src: srcTokens[i], MT: mtTokens[i]}
		if i < len(aligns) {
			s.Aligns = aligns[i]
		}
		if useTags {
			s.SrcTags = srcTags[i]
			s.WordTags = wordTags[i]
			s.GapTags = gapTags[i]
		}
		d.Sentences = append(d.Sentences, s)
	}

	if err := d.validate(useTags, len(mtTokens), len(aligns), len(srcTags), len(wordTags)); err != nil {
		return nil, err
	}
	slog.Debug("Dataset loaded", "name", name, "sentences", len(d.Sentences))
	return d, nil
}

func (d *Dataset) validate(useTags bool, mtCount, alignCount, srcTagCount, wordTagCount int) error {
	n := len(d.Sentences)
	if mtCount != n || alignCount != n {
		return fmt.Errorf("dataset %s: %d source sentences, %d mt, %d alignments", d.Name, n, mtCount, alignCount)
	}
	if useTags && (srcTagCount != n || wordTagCount != n) {
		return fmt.Errorf("dataset %s: %d sentences but %d source tag lines, %d tag lines", d.Name, n, srcTagCount, wordTagCount)
	}

	for i, s := range d.Sentences {
		if !useTags {
			continue
		}
		if len(s.SrcTags) != len(s.Src) {
			return fmt.Errorf("dataset %s: sentence %d has %d source tags for %d source words", d.Name, i, len(s.SrcTags), len(s.Src))
		}
		if len(s.WordTags) != len(s.MT) {
			return fmt.Errorf("dataset %s: sentence %d has %d word tags for %d mt words", d.Name, i, len(s.WordTags), len(s.MT))
		}
		if len(s.GapTags) != len(s.MT)+1 {
			return fmt.Errorf("dataset %s: sentence %d has %d gap tags for %d mt words", d.Name, i, len(s.GapTags), len(s.MT))
		}
	}
	return nil
}

// readText tokenizes one sentence per line into embedding vocabulary ids.
func readText(path string, emb *embedding.Embeddings) ([][]int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var samples [][]int
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		words := strings.Fields(scanner.Text())
		samples = append(samples, emb.IDs(words))
	}
	return samples, scanner.Err()
}

// readTags parses OK/BAD tag lines. With gaps, tags alternate
// gap/word/gap/.../word/gap: even positions are gap tags, odd positions
// are word tags.
func readTags(path string, hasGaps bool) (wordTags, gapTags [][]int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		var lineTags []int
		for _, tag := range strings.Fields(scanner.Text()) {
			switch tag {
			case OKToken:
				lineTags = append(lineTags, crf.TagOK)
			case BADToken:
				lineTags = append(lineTags, crf.TagBAD)
			default:
				return nil, nil, fmt.Errorf("dataset: %s:%d: unknown tag %q", path, lineNo, tag)
			}
		}
		if hasGaps {
			var words, gaps []int
			for i, tag := range lineTags {
				if i%2 == 1 {
					words = append(words, tag)
				} else {
					gaps = append(gaps, tag)
				}
			}
			wordTags = append(wordTags, words)
			gapTags = append(gapTags, gaps)
		} else {
			wordTags = append(wordTags, lineTags)
		}
	}
	return wordTags, gapTags, scanner.Err()
}

// readAlignments parses "src-tgt" index pairs, one sentence per line.
func readAlignments(path string) ([][]align.Pair, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var aligns [][]align.Pair
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		pairs, err := align.ParsePairs(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("dataset: %s:%d: %w", path, lineNo, err)
		}
		aligns = append(aligns, pairs)
	}
	return aligns, scanner.Err()
}

// Batch holds a padded minibatch. Token and tag rows are padded with
// PadToken; alignment lists are padded with sentinel pairs so consumers
// stop at the first EndOfAlignment target index.
type Batch struct {
	Src      [][]int
	MT       [][]int
	WordTags [][]int
	SrcTags  [][]int
	Aligns   [][]align.Pair
}

// Collate pads a group of sentences into uniform-length batch storage.
func Collate(sentences []Sentence) Batch {
	var b Batch
	maxSrc, maxMT, maxAligns := 0, 0, 0
	for _, s := range sentences {
		maxSrc = max(maxSrc, len(s.Src))
		maxMT = max(maxMT, len(s.MT))
		maxAligns = max(maxAligns, len(s.Aligns))
	}

	for _, s := range sentences {
		b.Src = append(b.Src, padRow(s.Src, maxSrc))
		b.MT = append(b.MT, padRow(s.MT, maxMT))
		if s.WordTags != nil {
			b.WordTags = append(b.WordTags, padRow(s.WordTags, maxMT))
		}
		if s.SrcTags != nil {
			b.SrcTags = append(b.SrcTags, padRow(s.SrcTags, maxSrc))
		}

		pairs := make([]align.Pair, maxAligns)
		copy(pairs, s.Aligns)
		for i := len(s.Aligns); i < maxAligns; i++ {
			pairs[i] = align.Pair{Src: align.EndOfAlignment, Tgt: align.EndOfAlignment}
		}
		b.Aligns = append(b.Aligns, pairs)
	}
	return b
}

func padRow(row []int, width int) []int {
	padded := make([]int, width)
	copy(padded, row)
	for i := len(row); i < width; i++ {
		padded[i] = PadToken
	}
	return padded
}

// Length returns a padded row's true length: the number of non-pad tokens.
func Length(tokens []int) int {
	n := 0
	for _, tok := range tokens {
		if tok != PadToken {
			n++
		}
	}
	return n
}
