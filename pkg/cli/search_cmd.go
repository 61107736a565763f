package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"sheetbase/internal/domain"
	"sheetbase/internal/search"
)

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		fileIDs []int64
		columns []string
		limit   int
		offset  int
		grouped bool
	)

	cmd := &cobra.Command{
		Use:   "search [TERM]",
		Short: "Search across every imported file (no term lists everything)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			term := ""
			if len(args) > 0 {
				term = args[0]
			}
			ctx, cancel := signalContext()
			defer cancel()

			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			searchOpts := search.Options{
				FileIDs: fileIDs,
				Columns: columns,
				Limit:   limit,
				Offset:  offset,
			}

			if grouped {
				res, err := a.Search.SearchGrouped(ctx, term, searchOpts)
				if err != nil {
					return err
				}
				if opts.output == "json" {
					return printJSON(cmd.OutOrStdout(), res)
				}
				printGrouped(cmd, res)
				return nil
			}

			res, err := a.Search.Search(ctx, term, searchOpts)
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), res)
			}
			printFlat(cmd, res)
			return nil
		},
	}

	cmd.Flags().Int64SliceVar(&fileIDs, "files", nil, "restrict to these file IDs")
	cmd.Flags().StringSliceVarP(&columns, "columns", "c", nil, "columns to search (default: indexed columns)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum rows to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	cmd.Flags().BoolVarP(&grouped, "grouped", "g", false, "group results by source file")
	return cmd
}

func printFlat(cmd *cobra.Command, res search.Result) {
	out := cmd.OutOrStdout()
	if len(res.Rows) == 0 {
		fmt.Fprintln(out, "No matches.")
		return
	}

	cols := rowColumns(res.Rows)
	header := append([]string{"FILE"}, cols...)
	rows := make([][]string, len(res.Rows))
	for i, r := range res.Rows {
		row := []string{r.SourceFile}
		for _, c := range cols {
			row = append(row, truncate(r.Columns[c], 40))
		}
		rows[i] = row
	}
	printTable(out, header, rows)
	fmt.Fprintf(out, "\n%d of %d matches (searched: %v)\n", len(res.Rows), res.TotalCount, res.Columns)
}

func printGrouped(cmd *cobra.Command, res domain.GroupedResult) {
	out := cmd.OutOrStdout()
	if res.FileCount == 0 {
		fmt.Fprintln(out, "No matches.")
		return
	}

	names := make([]string, 0, len(res.Files))
	for name := range res.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		group := res.Files[name]
		fmt.Fprintf(out, "%s (file %d): %d of %d rows match\n",
			name, group.FileID, group.Count, group.TotalRows)
	}
	fmt.Fprintf(out, "\n%d matches across %d files\n", res.TotalCount, res.FileCount)
}

// rowColumns returns the union of column names across rows, sorted.
func rowColumns(rows []domain.SearchRow) []string {
	seen := map[string]struct{}{}
	for _, r := range rows {
		for c := range r.Columns {
			seen[c] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for c := range seen {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// formatID renders a file ID for table output.
func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
