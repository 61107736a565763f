package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sheetbase/internal/search"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format  string
		outPath string
		fileIDs []int64
		columns []string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "export TERM",
		Short: "Export search matches to a CSV or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			var w = out
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			n, err := a.Search.Export(ctx, w, format, args[0], search.Options{
				FileIDs: fileIDs,
				Columns: columns,
				Limit:   limit,
			})
			if err != nil {
				return err
			}
			if outPath != "" {
				fmt.Fprintf(out, "Wrote %d rows to %s\n", n, outPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", search.FormatCSV, "export format (csv, json)")
	cmd.Flags().StringVar(&outPath, "out", "", "output file (default stdout)")
	cmd.Flags().Int64SliceVar(&fileIDs, "files", nil, "restrict to these file IDs")
	cmd.Flags().StringSliceVarP(&columns, "columns", "c", nil, "columns to search")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum rows to export")
	return cmd
}
