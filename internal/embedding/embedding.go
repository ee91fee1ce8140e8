// Package embedding provides the vocabulary and pretrained word embedding
// tables consumed by the feature pipeline.
package embedding

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// PadID is the token id used for padding positions in batch tensors.
// Valid token ids are always >= 0.
const PadID = -1

// Vocab maps between words and integer ids.
type Vocab struct {
	ToID  map[string]int
	ToStr []string
}

// NewVocab creates an empty vocabulary.
func NewVocab() *Vocab {
	return &Vocab{ToID: make(map[string]int)}
}

// Add adds a word if not already present and returns its id.
func (v *Vocab) Add(word string) int {
	if id, ok := v.ToID[word]; ok {
		return id
	}
	id := len(v.ToStr)
	v.ToID[word] = id
	v.ToStr = append(v.ToStr, word)
	return id
}

// ID returns the id for a word. Unknown words map to UnkID.
func (v *Vocab) ID(word string) int {
	if id, ok := v.ToID[word]; ok {
		return id
	}
	return v.UnkID()
}

// UnkID is the id reserved for out-of-vocabulary words: one past the last
// known word, which indexes the zero embedding row.
func (v *Vocab) UnkID() int {
	return len(v.ToStr)
}

// Size returns the number of known words.
func (v *Vocab) Size() int {
	return len(v.ToStr)
}

// Embeddings holds a pretrained embedding table with one row per word id
// plus a trailing zero row for unknown words.
type Embeddings struct {
	Vocab *Vocab
	Dim   int
	vecs  *mat.Dense
}

// Load reads a text-format embedding file: one "word v1 v2 ... vD" line
// per word. All rows must have the same dimension.
func Load(path string) (*Embeddings, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	vocab := NewVocab()
	var rows []float64
	dim := 0

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("embedding: %s:%d: no vector values", path, lineNo)
		}
		if dim == 0 {
			dim = len(fields) - 1
		} else if len(fields)-1 != dim {
			return nil, fmt.Errorf("embedding: %s:%d: dimension %d, want %d", path, lineNo, len(fields)-1, dim)
		}
		vocab.Add(fields[0])
		for _, f := range fields[1:] {
			val, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("embedding: %s:%d: %w", path, lineNo, err)
			}
			rows = append(rows, val)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if vocab.Size() == 0 {
		return nil, fmt.Errorf("embedding: %s: empty file", path)
	}

	// Trailing zero row for unknown words.
	rows = append(rows, make([]float64, dim)...)
	return &Embeddings{
		Vocab: vocab,
		Dim:   dim,
		vecs:  mat.NewDense(vocab.Size()+1, dim, rows),
	}, nil
}

// New builds an embedding table from an explicit vocabulary and matrix,
// appending the zero unknown-word row. Used by tests and callers that
// already hold vectors in memory.
func New(vocab *Vocab, vectors *mat.Dense) (*Embeddings, error) {
	rows, dim := vectors.Dims()
	if rows != vocab.Size() {
		return nil, fmt.Errorf("embedding: %d vectors for %d words", rows, vocab.Size())
	}
	vecs := mat.NewDense(rows+1, dim, nil)
	vecs.Slice(0, rows, 0, dim).(*mat.Dense).Copy(vectors)
	return &Embeddings{Vocab: vocab, Dim: dim, vecs: vecs}, nil
}

// Lookup returns the embedding row for a token id. Padding and any id
// outside the table map to the zero row.
func (e *Embeddings) Lookup(id int) []float64 {
	if id < 0 || id > e.Vocab.Size() {
		id = e.Vocab.Size()
	}
	return e.vecs.RawRowView(id)
}

// IDs converts words to token ids, mapping unknown words to UnkID.
func (e *Embeddings) IDs(words []string) []int {
	ids := make([]int, len(words))
	for i, w := range words {
		ids[i] = e.Vocab.ID(w)
	}
	return ids
}
