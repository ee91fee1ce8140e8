package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nlpforge/qe"
	"github.com/spf13/cobra"
)

func (c *CLI) newEvaluateCommand() *cobra.Command {
	var dataFolder, srcEmb, mtEmb, split string
	var workers int

	cmd := &cobra.Command{
		Use:   "evaluate <modelfile>",
		Short: "Evaluate a model on a tagged dataset split",
		Args:  cobra.ExactArgs(1),
		Example: `  qe evaluate model.json --data-folder data --dataset dev \
      --src-embeddings de.vec --mt-embeddings en.vec`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tagger, err := loadTagger(args[0], srcEmb, mtEmb)
			if err != nil {
				return err
			}

			slog.Info("Evaluating", "data-folder", dataFolder, "split", split)
			start := time.Now()
			result, err := qe.Evaluate(dataFolder, tagger, &qe.EvalConfig{
				Split:   split,
				Workers: workers,
				Verbose: c.verbose,
			})
			if err != nil {
				return err
			}
			slog.Debug("Evaluation completed", "duration", time.Since(start))

			fmt.Printf("Word accuracy: %.1f%% (%d/%d words)\n",
				result.WordAccuracy*100, result.WordCorrect, result.WordTotal)
			fmt.Printf("F1-BAD: %.1f%%  F1-OK: %.1f%%  F1-mult: %.1f%%\n",
				result.F1BAD*100, result.F1OK*100, result.F1Mult*100)
			fmt.Printf("Sequence accuracy: %.1f%% (%d/%d sentences)\n",
				result.SequenceAccuracy*100, result.SequenceCorrect, result.SequenceTotal)
			if result.SourceTotal > 0 {
				fmt.Printf("Source accuracy: %.1f%% (%d/%d words)\n",
					result.SourceAccuracy*100, result.SourceCorrect, result.SourceTotal)
			}
			fmt.Printf("Loss: %.4f\n", result.Loss)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataFolder, "data-folder", "data", "Path to QE data folder")
	cmd.Flags().StringVar(&split, "dataset", "dev", "Dataset split to evaluate on")
	cmd.Flags().StringVar(&srcEmb, "src-embeddings", "", "Path to source language word embeddings")
	cmd.Flags().StringVar(&mtEmb, "mt-embeddings", "", "Path to MT language word embeddings")
	cmd.Flags().IntVar(&workers, "workers", 1, "Worker goroutines for the loss computation")
	_ = cmd.MarkFlagRequired("src-embeddings")
	_ = cmd.MarkFlagRequired("mt-embeddings")
	return cmd
}
