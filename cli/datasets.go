package cli

import (
	"github.com/absmach/fltrain/client"
	"github.com/spf13/cobra"
)

func NewDatasetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List the datasets a worker holds",
		Long:  ``,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := clientConfig(cmd)
			if err != nil {
				return failCmd(cmd, err)
			}

			ctx := cmd.Context()
			c, err := client.Connect(ctx, cc, commandLogger(cmd, cc.Verbose))
			if err != nil {
				return failCmd(cmd, err)
			}
			defer c.Close()

			infos, err := c.Datasets(ctx)
			if err != nil {
				return failCmd(cmd, err)
			}

			logJSONCmd(*cmd, infos)

			return nil
		},
	}
}
