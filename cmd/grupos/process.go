package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"grupoeconomico/exporter"
	"grupoeconomico/importer"
	"grupoeconomico/internal/container"
	"grupoeconomico/pipeline"
)

func newProcessCmd(a *app) *cobra.Command {
	var (
		input  string
		output string
		column string
		format string
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Classify every row of a spreadsheet",
		Example: `  grupos process -i empresas.xlsx
  grupos process -i empresas.csv -o resultado.csv --column documento`,
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := resolveFormat(format, output)
			if err != nil {
				return err
			}
			if column == "" {
				column = a.config.CNPJColumn
			}
			if output == "" {
				output = exporter.FileName(time.Now(), outFormat)
			}

			table, err := importer.ParseFile(input)
			if err != nil {
				return err
			}

			c, err := container.NewContainer(a.config, a.logger)
			if err != nil {
				return err
			}
			orchestrator, err := c.NewOrchestrator(pipeline.NewLogReporter(a.logger))
			if err != nil {
				return err
			}

			result, err := orchestrator.Run(cmd.Context(), table, column)
			if err != nil {
				return err
			}

			if err := writeResult(output, result, outFormat); err != nil {
				return err
			}
			a.logger.Info("Result written", zap.String("path", output))

			printSummary(cmd.OutOrStdout(), result, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "input spreadsheet (.xlsx, .xlsm or .csv)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default grupos_economicos_<timestamp>.<ext>)")
	cmd.Flags().StringVar(&column, "column", "", "name of the CNPJ column (default: first header containing \"cnpj\")")
	cmd.Flags().StringVar(&format, "format", "", "output format: xlsx, csv or json (default: from output extension)")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

// resolveFormat берет формат из флага, иначе из расширения выходного файла
func resolveFormat(flag, output string) (exporter.Format, error) {
	if flag != "" || output == "" {
		return exporter.ParseFormat(flag)
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(output)), ".")
	if format, err := exporter.ParseFormat(ext); err == nil {
		return format, nil
	}
	return exporter.FormatExcel, nil
}

func writeResult(path string, result *pipeline.BatchResult, format exporter.Format) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = eris.Wrapf(cerr, "failed to close %s", path)
		}
	}()

	return exporter.Write(f, result, format)
}

func printSummary(w io.Writer, result *pipeline.BatchResult, output string) {
	summary := result.Summary
	fmt.Fprintf(w, "Batch %s\n", result.ID)
	fmt.Fprintf(w, "  Rows:      %d\n", summary.Total)
	fmt.Fprintf(w, "  Succeeded: %d\n", summary.Succeeded)
	fmt.Fprintf(w, "  Failed:    %d\n", summary.Failed)
	if len(summary.Groups) > 0 {
		fmt.Fprintln(w, "  Groups:")
		for _, g := range summary.Groups {
			fmt.Fprintf(w, "    %-24s %d\n", g.Group, g.Count)
		}
	}
	fmt.Fprintf(w, "  Output:    %s\n", output)
}
