package main

import (
	"github.com/spf13/cobra"

	"grupoeconomico/internal/container"
	"grupoeconomico/server"
)

func newServeCmd(a *app) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				a.config.Port = port
				if err := a.config.Validate(); err != nil {
					return err
				}
			}

			c, err := container.NewContainer(a.config, a.logger)
			if err != nil {
				return err
			}
			return server.NewServer(c).Start(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides SERVER_PORT)")
	return cmd
}
