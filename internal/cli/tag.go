package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nlpforge/qe"
	"github.com/nlpforge/qe/align"
	"github.com/nlpforge/qe/internal/embedding"
	"github.com/spf13/cobra"
)

// tagOutput is the JSON shape printed for every tagged sentence.
type tagOutput struct {
	Source     []string `json:"source"`
	MT         []string `json:"mt"`
	TargetTags []string `json:"target_tags"`
	SourceTags []string `json:"source_tags"`
	Score      float64  `json:"score"`
}

func (c *CLI) newTagCommand() *cobra.Command {
	var modelPath, srcEmb, mtEmb string
	var srcText, mtText, alignText string

	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Tag a translated sentence with word-level OK/BAD quality labels",
		Example: `  # Tag a single sentence pair
  qe tag --model model.json --src-embeddings de.vec --mt-embeddings en.vec \
      --src "das ist gut" --mt "this is good" --align "0-0 1-1 2-2"

  # Tag tab-separated sentence pairs from stdin (src<TAB>mt<TAB>alignments)
  cat sentences.tsv | qe tag --model model.json --src-embeddings de.vec --mt-embeddings en.vec`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tagger, err := loadTagger(modelPath, srcEmb, mtEmb)
			if err != nil {
				return err
			}

			if mtText != "" {
				return tagOne(tagger, srcText, mtText, alignText)
			}
			if isStdinTerminal() {
				return cmd.Help()
			}

			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				fields := strings.Split(line, "\t")
				if len(fields) != 3 {
					return fmt.Errorf("expected 3 tab-separated fields, got %d in %q", len(fields), line)
				}
				if err := tagOne(tagger, fields[0], fields[1], fields[2]); err != nil {
					return err
				}
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "model.json", "Path to model file")
	cmd.Flags().StringVar(&srcEmb, "src-embeddings", "", "Path to source language word embeddings")
	cmd.Flags().StringVar(&mtEmb, "mt-embeddings", "", "Path to MT language word embeddings")
	cmd.Flags().StringVar(&srcText, "src", "", "Source sentence")
	cmd.Flags().StringVar(&mtText, "mt", "", "Machine translated sentence")
	cmd.Flags().StringVar(&alignText, "align", "", "Source-MT word alignments, e.g. \"0-0 1-2\"")
	_ = cmd.MarkFlagRequired("src-embeddings")
	_ = cmd.MarkFlagRequired("mt-embeddings")
	return cmd
}

func tagOne(tagger *qe.Tagger, srcText, mtText, alignText string) error {
	pairs, err := align.ParsePairs(alignText)
	if err != nil {
		return err
	}
	srcWords := strings.Fields(srcText)
	mtWords := strings.Fields(mtText)

	start := time.Now()
	r, err := tagger.Tag(srcWords, mtWords, pairs)
	if err != nil {
		return err
	}
	slog.Debug("Sentence tagged", "words", len(mtWords), "duration", time.Since(start))

	out := tagOutput{
		Source:     srcWords,
		MT:         mtWords,
		TargetTags: tagStrings(r.TargetTags),
		SourceTags: tagStrings(r.SourceTags),
		Score:      r.Score,
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(data))
	return nil
}

func tagStrings(tags []int) []string {
	out := make([]string, len(tags))
	for i, tag := range tags {
		out[i] = qe.TagString(tag)
	}
	return out
}

func loadTagger(modelPath, srcEmb, mtEmb string) (*qe.Tagger, error) {
	slog.Debug("Loading embeddings", "src", srcEmb, "mt", mtEmb)
	start := time.Now()
	src, err := embedding.Load(srcEmb)
	if err != nil {
		return nil, err
	}
	mt, err := embedding.Load(mtEmb)
	if err != nil {
		return nil, err
	}
	slog.Debug("Embeddings loaded", "src-words", src.Vocab.Size(), "mt-words", mt.Vocab.Size(), "duration", time.Since(start))

	slog.Debug("Loading model", "path", modelPath)
	return qe.Load(modelPath, src, mt)
}

func isStdinTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
