package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pkgmqtt "github.com/absmach/fltrain/pkg/mqtt"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const defaultEventsTopic = "fl/workers/#"

func NewEventsCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "events",
		Short: "Stream worker fit and liveliness events from an MQTT broker",
		Long:  ``,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("mqtt-url")
			username, _ := cmd.Flags().GetString("mqtt-username")
			password, _ := cmd.Flags().GetString("mqtt-password")
			topic, _ := cmd.Flags().GetString("topic")
			timeout, _ := cmd.Flags().GetDuration("mqtt-timeout")

			if url == "" {
				return failCmd(cmd, fmt.Errorf("mqtt-url is required"))
			}

			verbose, _ := cmd.Flags().GetBool(verboseFlag)
			logger := commandLogger(cmd, verbose)

			ps, err := pkgmqtt.NewPubSub(pkgmqtt.Config{
				URL:      url,
				ClientID: "flctl-" + uuid.NewString(),
				Username: username,
				Password: password,
				Timeout:  timeout,
			}, logger)
			if err != nil {
				return failCmd(cmd, err)
			}
			defer func() { _ = ps.Disconnect(context.Background()) }()

			ctx := cmd.Context()
			if err := ps.Subscribe(ctx, topic, func(topic string, msg map[string]any) error {
				fmt.Fprintln(cmd.OutOrStdout(), color.MagentaString(topic))
				logJSONCmd(*cmd, msg)

				return nil
			}); err != nil {
				return failCmd(cmd, err)
			}

			logger.Info("subscribed", slog.String("topic", topic))
			<-ctx.Done()

			if err := ps.Unsubscribe(context.Background(), topic); err != nil {
				return failCmd(cmd, err)
			}

			return nil
		},
	}

	cmd.Flags().String("mqtt-url", "", "MQTT broker URL, e.g. tcp://localhost:1883 (required)")
	cmd.Flags().String("mqtt-username", "", "MQTT username")
	cmd.Flags().String("mqtt-password", "", "MQTT password")
	cmd.Flags().Duration("mqtt-timeout", 30*time.Second, "MQTT operation timeout")
	cmd.Flags().StringP("topic", "t", defaultEventsTopic, "Topic filter")

	return &cmd
}
