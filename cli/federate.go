package cli

import (
	"fmt"
	"os"

	"github.com/absmach/fltrain/client"
	"github.com/absmach/fltrain/pkg/fl"
	"github.com/absmach/fltrain/pkg/model"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func NewFederateCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "federate",
		Short: "Run federated averaging rounds across several workers",
		Long: `Every round sends the global model to each --worker, trains it for
--iterations fit calls on --dataset and replaces the global model with the
sample weighted average of the results.`,
		Example: "  flctl federate -w alice@localhost:8777 -w bob@localhost:8778 -m model.cbor -d linear --rounds 5",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := baseConfig(cmd)
			if err != nil {
				return failCmd(cmd, err)
			}

			targets, _ := cmd.Flags().GetStringArray("worker")
			modelPath, _ := cmd.Flags().GetString("model")
			datasetKey, _ := cmd.Flags().GetString("dataset")
			loss, _ := cmd.Flags().GetString("loss")
			optimizer, _ := cmd.Flags().GetString("optimizer")
			iterations, _ := cmd.Flags().GetInt("iterations")
			rounds, _ := cmd.Flags().GetInt("rounds")
			kOfN, _ := cmd.Flags().GetInt("k-of-n")
			out, _ := cmd.Flags().GetString("out")

			if len(targets) == 0 {
				return failCmd(cmd, fmt.Errorf("at least one worker is required"))
			}
			if modelPath == "" || datasetKey == "" {
				return failCmd(cmd, fmt.Errorf("model and dataset are required"))
			}

			data, err := os.ReadFile(modelPath)
			if err != nil {
				return failCmd(cmd, err)
			}
			global, err := model.Decode(data)
			if err != nil {
				return failCmd(cmd, err)
			}

			ctx := cmd.Context()
			logger := commandLogger(cmd, base.Verbose)

			participants := make([]fl.Participant, 0, len(targets))
			for _, target := range targets {
				cc, err := parseWorker(target, base)
				if err != nil {
					return failCmd(cmd, err)
				}

				c, err := client.Connect(ctx, cc, logger)
				if err != nil {
					return failCmd(cmd, err)
				}
				defer c.Close()

				participants = append(participants, &client.Participant{
					Client:      c,
					DatasetKey:  datasetKey,
					Loss:        loss,
					Optimizer:   optimizer,
					Hyperparams: hyperparams(cmd),
					Iterations:  iterations,
				})
			}

			coordinator := fl.NewCoordinator(fl.NewFedAvgAggregator(), kOfN, logger)
			w := cmd.OutOrStdout()
			for n := range rounds {
				next, round, err := coordinator.RunRound(ctx, n+1, global, participants)
				if err != nil {
					return failCmd(cmd, err)
				}
				global = next

				fmt.Fprintf(w, "%s %s loss %s (%d/%d workers)\n",
					color.CyanString("round"),
					color.New(color.Bold).Sprint(round.Number),
					color.GreenString("%.6f", round.Loss),
					len(round.Updates), len(participants))
				if base.Verbose {
					logJSONCmd(*cmd, round)
				}
			}

			if out == "" {
				logOKCmd(*cmd)

				return nil
			}

			encoded, err := model.Encode(global)
			if err != nil {
				return failCmd(cmd, err)
			}
			if err := os.WriteFile(out, encoded, 0o644); err != nil {
				return failCmd(cmd, err)
			}

			logJSONCmd(*cmd, summarize(global, out))

			return nil
		},
	}

	cmd.Flags().StringArrayP("worker", "w", nil, "Worker as id@host:port, repeatable (required)")
	cmd.Flags().StringP("model", "m", "", "Initial global model file (required)")
	cmd.Flags().StringP("dataset", "d", "", "Dataset key present on every worker (required)")
	addTrainingFlags(&cmd)
	cmd.Flags().IntP("iterations", "n", 1, "Fit calls per worker per round")
	cmd.Flags().IntP("rounds", "r", 3, "Number of rounds")
	cmd.Flags().IntP("k-of-n", "k", 0, "Minimum workers per round, 0 requires all")
	cmd.Flags().StringP("out", "o", "", "Write the final global model to this file")

	return &cmd
}
