package cli

import (
	"fmt"
	"os"

	"github.com/absmach/fltrain/client"
	"github.com/absmach/fltrain/pkg/model"
	"github.com/absmach/fltrain/trainconfig"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func NewTrainCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "train",
		Short: "Train a model on a worker dataset",
		Long: `Send a model and its training settings to a worker, run --iterations fit
calls against --dataset and optionally pull the trained model back into --out.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := clientConfig(cmd)
			if err != nil {
				return failCmd(cmd, err)
			}

			modelPath, _ := cmd.Flags().GetString("model")
			datasetKey, _ := cmd.Flags().GetString("dataset")
			loss, _ := cmd.Flags().GetString("loss")
			optimizer, _ := cmd.Flags().GetString("optimizer")
			iterations, _ := cmd.Flags().GetInt("iterations")
			out, _ := cmd.Flags().GetString("out")

			hp := hyperparams(cmd)

			if modelPath == "" {
				return failCmd(cmd, fmt.Errorf("model is required"))
			}
			if datasetKey == "" {
				return failCmd(cmd, fmt.Errorf("dataset is required"))
			}
			if iterations <= 0 {
				return failCmd(cmd, fmt.Errorf("iterations must be positive, got %d", iterations))
			}

			data, err := os.ReadFile(modelPath)
			if err != nil {
				return failCmd(cmd, err)
			}

			tc, err := trainconfig.New(data, loss, optimizer, hp)
			if err != nil {
				return failCmd(cmd, err)
			}

			ctx := cmd.Context()
			c, err := client.Connect(ctx, cc, commandLogger(cmd, cc.Verbose))
			if err != nil {
				return failCmd(cmd, err)
			}
			defer c.Close()

			proxy, err := c.Send(ctx, tc)
			if err != nil {
				return failCmd(cmd, err)
			}
			defer func() { _ = proxy.Release(ctx) }()

			w := cmd.OutOrStdout()
			for i := range iterations {
				res, err := proxy.FitResult(ctx, datasetKey)
				if err != nil {
					return failCmd(cmd, err)
				}

				fmt.Fprintf(w, "%s %s loss %s", color.CyanString("iteration"), color.New(color.Bold).Sprint(i+1), color.GreenString("%.6f", res.Loss))
				if cc.Verbose {
					fmt.Fprintf(w, " (%d batches, %d samples)", res.Batches, res.Samples)
				}
				fmt.Fprintln(w)
			}

			if out == "" {
				logOKCmd(*cmd)

				return nil
			}

			trained, err := proxy.Model(ctx)
			if err != nil {
				return failCmd(cmd, err)
			}
			encoded, err := model.Encode(trained)
			if err != nil {
				return failCmd(cmd, err)
			}
			if err := os.WriteFile(out, encoded, 0o644); err != nil {
				return failCmd(cmd, err)
			}

			logJSONCmd(*cmd, summarize(trained, out))

			return nil
		},
	}

	cmd.Flags().StringP("model", "m", "", "Model file created by 'model init' (required)")
	cmd.Flags().StringP("dataset", "d", "", "Dataset key on the worker (required)")
	addTrainingFlags(&cmd)
	cmd.Flags().IntP("iterations", "n", 10, "Number of fit calls")
	cmd.Flags().StringP("out", "o", "", "Write the trained model to this file")

	return &cmd
}

func addTrainingFlags(cmd *cobra.Command) {
	d := trainconfig.DefaultHyperparams()

	cmd.Flags().String("loss", model.LossMSE, "Loss function (mse, bce)")
	cmd.Flags().String("optimizer", model.OptimizerSGD, "Optimizer (SGD, Adam)")
	cmd.Flags().Float64P("lr", "l", d.LearningRate, "Learning rate")
	cmd.Flags().IntP("batch-size", "b", d.BatchSize, "Batch size")
	cmd.Flags().IntP("epochs", "e", d.Epochs, "Passes over the dataset per fit call, 0 only evaluates")
	cmd.Flags().Int("max-nr-batches", d.MaxNrBatches, "Batches per pass, -1 for no limit")
	cmd.Flags().Bool("shuffle", d.Shuffle, "Shuffle rows before every pass")
	cmd.Flags().Float64("momentum", d.Momentum, "SGD momentum")
}

func hyperparams(cmd *cobra.Command) trainconfig.Hyperparams {
	hp := trainconfig.DefaultHyperparams()
	hp.LearningRate, _ = cmd.Flags().GetFloat64("lr")
	hp.BatchSize, _ = cmd.Flags().GetInt("batch-size")
	hp.Epochs, _ = cmd.Flags().GetInt("epochs")
	hp.MaxNrBatches, _ = cmd.Flags().GetInt("max-nr-batches")
	hp.Shuffle, _ = cmd.Flags().GetBool("shuffle")
	hp.Momentum, _ = cmd.Flags().GetFloat64("momentum")

	return hp
}
