package cli

import (
	"github.com/spf13/cobra"

	"llm-meeting/internal/server"
)

func NewServeCmd(deps *Dependencies) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.New(deps.App).Run(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", deps.Config.ListenAddr, "Listen address")

	return cmd
}
