package cli

import (
	"log/slog"
	"time"

	"github.com/nlpforge/qe"
	"github.com/spf13/cobra"
)

func (c *CLI) newTrainCommand() *cobra.Command {
	var dataFolder string
	config := qe.DefaultTrainConfig()

	cmd := &cobra.Command{
		Use:   "train <modelfile>",
		Short: "Train a quality estimation model on a tagged parallel corpus",
		Args:  cobra.ExactArgs(1),
		Example: `  qe train model.json --data-folder data --src-embeddings de.vec --mt-embeddings en.vec
  qe train model.json --iter 200 --c2 0.05 -v`,
		RunE: func(cmd *cobra.Command, args []string) error {
			modelPath := args[0]
			config.Verbose = c.verbose
			slog.Info("Training model", "data-folder", dataFolder, "split", config.Split, "output", modelPath)
			start := time.Now()
			tagger, err := qe.Train(dataFolder, config)
			if err != nil {
				return err
			}
			slog.Debug("Training completed", "duration", time.Since(start))
			if err := tagger.Save(modelPath); err != nil {
				return err
			}
			slog.Info("Model saved", "path", modelPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataFolder, "data-folder", "data", "Path to QE data folder")
	cmd.Flags().StringVar(&config.Split, "dataset", config.Split, "Dataset split to train on")
	cmd.Flags().StringVar(&config.SrcEmbeddings, "src-embeddings", "", "Path to source language word embeddings")
	cmd.Flags().StringVar(&config.MTEmbeddings, "mt-embeddings", "", "Path to MT language word embeddings")
	cmd.Flags().IntVar(&config.MaxIterations, "iter", config.MaxIterations, "Maximum optimizer iterations")
	cmd.Flags().Float64Var(&config.C1, "c1", config.C1, "L1 regularization strength")
	cmd.Flags().Float64Var(&config.C2, "c2", config.C2, "L2 regularization strength")
	_ = cmd.MarkFlagRequired("src-embeddings")
	_ = cmd.MarkFlagRequired("mt-embeddings")
	return cmd
}
