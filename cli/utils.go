package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/absmach/fltrain"
	"github.com/absmach/fltrain/client"
	"github.com/fatih/color"
	prettyjson "github.com/hokaccha/go-prettyjson"
	"github.com/spf13/cobra"
)

// Persistent flags shared by commands that talk to a worker.
const (
	configFlag      = "config"
	hostFlag        = "host"
	portFlag        = "port"
	idFlag          = "id"
	verboseFlag     = "verbose"
	workloadKeyFlag = "workload-key"
)

// ErrCommandFailed wraps every error a command has already printed.
var ErrCommandFailed = errors.New("command failed")

// AddConnectionFlags registers the worker connection flags on root.
func AddConnectionFlags(root *cobra.Command) {
	root.PersistentFlags().StringP(configFlag, "c", "", "Path to a TOML config file")
	root.PersistentFlags().String(hostFlag, fltrain.DefaultHost, "Worker host")
	root.PersistentFlags().IntP(portFlag, "p", fltrain.DefaultPort, "Worker port")
	root.PersistentFlags().String(idFlag, "", "Worker ID")
	root.PersistentFlags().BoolP(verboseFlag, "v", false, "Log every call made to the worker")
	root.PersistentFlags().String(workloadKeyFlag, "", "Hex encoded AES-256 key shared with the worker")
}

// clientConfig merges the config file, environment and any flag set on the
// command line, in that order.
func clientConfig(cmd *cobra.Command) (client.Config, error) {
	cc, err := baseConfig(cmd)
	if err != nil {
		return client.Config{}, err
	}

	if cc.ID == "" {
		return client.Config{}, fmt.Errorf("--%s is required", idFlag)
	}

	return cc, nil
}

func baseConfig(cmd *cobra.Command) (client.Config, error) {
	path, _ := cmd.Flags().GetString(configFlag)

	cfg, err := fltrain.LoadConfig(path)
	if err != nil {
		return client.Config{}, err
	}
	cc := client.Config{
		Host:        cfg.Coordinator.Host,
		Port:        cfg.Coordinator.Port,
		ID:          cfg.Coordinator.ID,
		Verbose:     cfg.Coordinator.Verbose,
		WorkloadKey: cfg.Coordinator.WorkloadKey,
	}

	flags := cmd.Flags()
	if flags.Changed(hostFlag) {
		cc.Host, _ = flags.GetString(hostFlag)
	}
	if flags.Changed(portFlag) {
		cc.Port, _ = flags.GetInt(portFlag)
	}
	if flags.Changed(idFlag) {
		cc.ID, _ = flags.GetString(idFlag)
	}
	if flags.Changed(verboseFlag) {
		cc.Verbose, _ = flags.GetBool(verboseFlag)
	}
	if flags.Changed(workloadKeyFlag) {
		cc.WorkloadKey, _ = flags.GetString(workloadKeyFlag)
	}

	return cc, nil
}

// parseWorker reads an id@host:port worker address on top of base.
func parseWorker(target string, base client.Config) (client.Config, error) {
	id, addr, ok := strings.Cut(target, "@")
	if !ok || id == "" {
		return client.Config{}, fmt.Errorf("invalid worker '%s', expected id@host:port", target)
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return client.Config{}, fmt.Errorf("invalid worker '%s': %w", target, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return client.Config{}, fmt.Errorf("invalid worker '%s' port: %w", target, err)
	}

	base.ID = id
	base.Host = host
	base.Port = p

	return base, nil
}

func commandLogger(cmd *cobra.Command, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func logJSONCmd(cmd cobra.Command, iList ...any) {
	for _, i := range iList {
		m, err := json.Marshal(i)
		if err != nil {
			logErrorCmd(cmd, err)

			return
		}

		pj, err := prettyjson.Format(m)
		if err != nil {
			logErrorCmd(cmd, err)

			return
		}

		fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n\n", string(pj))
	}
}

func failCmd(cmd *cobra.Command, err error) error {
	logErrorCmd(*cmd, err)

	return fmt.Errorf("%w: %w", ErrCommandFailed, err)
}

func logErrorCmd(cmd cobra.Command, err error) {
	boldRed := color.New(color.FgRed, color.Bold)
	boldRed.Fprint(cmd.ErrOrStderr(), "\nerror: ")

	fmt.Fprintf(cmd.ErrOrStderr(), "%s\n\n", color.RedString(err.Error()))
}

func logOKCmd(cmd cobra.Command) {
	fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n\n", color.BlueString("ok"))
}
