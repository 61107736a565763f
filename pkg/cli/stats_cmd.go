package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store totals across active files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.Catalog.Stats(ctx)
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), stats)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Files:     %d\n", stats.TotalFiles)
			fmt.Fprintf(out, "Records:   %d\n", stats.TotalRecords)
			fmt.Fprintf(out, "Data size: %.1f MB\n", stats.TotalFileSizeMB)
			fmt.Fprintf(out, "DB size:   %.1f MB\n", stats.DatabaseSizeMB)
			return nil
		},
	}
}
