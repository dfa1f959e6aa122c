package cli

import (
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/absmach/fltrain/pkg/model"
	"github.com/spf13/cobra"
)

func modelCmds() []cobra.Command {
	return []cobra.Command{
		{
			Use:     "init",
			Short:   "Create a randomly initialised model file",
			Long:    `Create a dense network with the given layer sizes and write its CBOR encoding to --out.`,
			Example: "  flctl model init --layers 2,8,1 --activations tanh,identity --out model.cbor",
			RunE: func(cmd *cobra.Command, args []string) error {
				sizes, _ := cmd.Flags().GetIntSlice("layers")
				names, _ := cmd.Flags().GetStringSlice("activations")
				seed, _ := cmd.Flags().GetUint64("seed")
				out, _ := cmd.Flags().GetString("out")

				if out == "" {
					return failCmd(cmd, fmt.Errorf("out is required"))
				}

				activations := make([]model.Activation, len(names))
				for i, n := range names {
					activations[i] = model.Activation(n)
				}

				var rng *rand.Rand
				if seed != 0 {
					rng = rand.New(rand.NewPCG(seed, seed))
				}

				m, err := model.New(sizes, activations, rng)
				if err != nil {
					return failCmd(cmd, err)
				}

				data, err := model.Encode(m)
				if err != nil {
					return failCmd(cmd, err)
				}

				if err := os.WriteFile(out, data, 0o644); err != nil {
					return failCmd(cmd, err)
				}

				logJSONCmd(*cmd, summarize(m, out))

				return nil
			},
		},
		{
			Use:   "show <file>",
			Short: "Print a model file",
			Long:  ``,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return failCmd(cmd, err)
				}

				m, err := model.Decode(data)
				if err != nil {
					return failCmd(cmd, err)
				}

				if full, _ := cmd.Flags().GetBool("weights"); full {
					logJSONCmd(*cmd, m)

					return nil
				}
				logJSONCmd(*cmd, summarize(m, args[0]))

				return nil
			},
		},
	}
}

type layerSummary struct {
	Inputs     int    `json:"inputs"`
	Outputs    int    `json:"outputs"`
	Activation string `json:"activation"`
}

type modelSummary struct {
	File    string         `json:"file"`
	Version string         `json:"version"`
	Inputs  int            `json:"inputs"`
	Outputs int            `json:"outputs"`
	Params  int            `json:"params"`
	Layers  []layerSummary `json:"layers"`
}

func summarize(m *model.Model, file string) modelSummary {
	s := modelSummary{
		File:    file,
		Version: m.Version,
		Inputs:  m.InputSize(),
		Outputs: m.OutputSize(),
	}
	for _, l := range m.Layers {
		in := 0
		if len(l.Weights) > 0 {
			in = len(l.Weights[0])
		}
		s.Params += len(l.Weights)*in + len(l.Bias)
		s.Layers = append(s.Layers, layerSummary{
			Inputs:     in,
			Outputs:    len(l.Weights),
			Activation: string(l.Activation),
		})
	}

	return s
}

func NewModelCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "model [init|show]",
		Short: "Create and inspect model files",
		Long:  ``,
	}

	cmds := modelCmds()
	for i := range cmds {
		cmd.AddCommand(&cmds[i])
	}

	initCmd := &cmds[0]
	initCmd.Flags().IntSliceP("layers", "l", []int{2, 1}, "Layer widths including the input")
	initCmd.Flags().StringSliceP("activations", "a", []string{string(model.Identity)}, "Activation per layer")
	initCmd.Flags().Uint64("seed", 0, "Initialisation seed, 0 picks a random one")
	initCmd.Flags().StringP("out", "o", "", "Output file (required)")

	showCmd := &cmds[1]
	showCmd.Flags().BoolP("weights", "w", false, "Print every weight instead of a summary")

	return &cmd
}
