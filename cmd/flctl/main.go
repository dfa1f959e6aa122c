package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/absmach/fltrain/cli"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd := &cobra.Command{
		Use:   "flctl",
		Short: "Coordinator CLI for remote training workers",
		Long: `flctl builds models and train configs locally and drives training on
workers that keep their datasets private.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cli.AddConnectionFlags(rootCmd)

	rootCmd.AddCommand(
		cli.NewModelCmd(),
		cli.NewTrainCmd(),
		cli.NewDatasetsCmd(),
		cli.NewFederateCmd(),
		cli.NewEventsCmd(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, cli.ErrCommandFailed) {
			fmt.Fprintf(os.Stderr, "error: %s\n", err)
		}
		cancel()
		os.Exit(1)
	}
}
