package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"grupoeconomico/exporter"
)

func newTemplateCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write an input spreadsheet template",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f, err := os.Create(output)
			if err != nil {
				return eris.Wrapf(err, "failed to create %s", output)
			}
			defer func() {
				if cerr := f.Close(); cerr != nil && err == nil {
					err = eris.Wrapf(cerr, "failed to close %s", output)
				}
			}()

			if err := exporter.WriteTemplate(f); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Template written to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", exporter.TemplateFileName, "output file")
	return cmd
}
