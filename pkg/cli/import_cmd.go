package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sheetbase/internal/domain"
)

func newImportCmd(opts *rootOptions) *cobra.Command {
	var (
		indexColumns []string
		method       string
		noFast       bool
	)

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a CSV or XLSX file into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			importOpts := domain.ImportOptions{
				Method:      method,
				DisableFast: noFast,
			}
			if opts.output == "table" {
				importOpts.Progress = func(p domain.ImportProgress) {
					fmt.Fprintf(cmd.OutOrStdout(), "\r%d/%d rows (%.1f%%)", p.RowsProcessed, p.TotalRows, p.Percent)
				}
			}

			result := a.Importer.ImportFile(ctx, args[0], indexColumns, importOpts)
			if importOpts.Progress != nil && result.Method == domain.MethodStreaming {
				fmt.Fprintln(cmd.OutOrStdout())
			}

			if opts.output == "json" {
				if err := printJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				if result.Success {
					fmt.Fprintf(cmd.OutOrStdout(),
						"Imported %s as file %d: %d rows in %.2fs (%s)\n",
						result.Filename, result.FileID, result.RowsImported,
						result.DurationSeconds, result.Method)
				}
			}
			if !result.Success {
				return fmt.Errorf("import %s: %s", result.Filename, result.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&indexColumns, "index", "i", nil, "columns to index for search (repeatable or comma-separated)")
	cmd.Flags().StringVar(&method, "method", "", "pin a single import method (native-bulk, appender-bulk, csv-bridge, streaming)")
	cmd.Flags().BoolVar(&noFast, "no-fast", false, "skip bulk strategies and stream in chunks")
	return cmd
}
