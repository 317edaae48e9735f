package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"grupoeconomico/internal/container"
)

func newConfigCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config-check",
		Short: "Validate configuration and show configured services",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := container.NewContainer(a.config, a.logger)
			if err != nil {
				return err
			}
			status := c.Status()
			w := cmd.OutOrStdout()

			fmt.Fprintln(w, "Configuration OK")
			fmt.Fprintln(w)
			fmt.Fprintf(w, "Port:        %s\n", a.config.Port)
			fmt.Fprintf(w, "Batch pause: %v\n", a.config.BatchPause)
			fmt.Fprintln(w)

			fmt.Fprintln(w, "Registry services:")
			if len(status.RegistryServices) == 0 {
				fmt.Fprintln(w, "  none")
			}
			for _, name := range status.RegistryServices {
				fmt.Fprintf(w, "  %s\n", name)
			}
			fmt.Fprintln(w)

			fmt.Fprintln(w, "AI providers (in order):")
			for _, p := range status.Providers {
				state := "not configured"
				if p.Available {
					state = "configured"
				}
				fmt.Fprintf(w, "  %-12s %-15s %s\n", p.Name, state, strings.Join(p.Models, ", "))
			}
			fmt.Fprintln(w)

			switch {
			case !status.Arbitration.Enabled:
				fmt.Fprintln(w, "Arbitration: disabled")
			case status.Arbitration.Available:
				fmt.Fprintf(w, "Arbitration: judge %s, fallback %s\n", status.Arbitration.Judge, status.Arbitration.Fallback)
			default:
				fmt.Fprintln(w, "Arbitration: enabled, judge not configured")
			}
			fmt.Fprintf(w, "Known groups: %s\n", strings.Join(status.Groups, ", "))
			return nil
		},
	}
}
