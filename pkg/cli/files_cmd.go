package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"sheetbase/internal/domain"
)

func newFilesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage imported files",
	}
	cmd.AddCommand(newFilesListCmd(opts))
	cmd.AddCommand(newFilesShowCmd(opts))
	cmd.AddCommand(newFilesDeleteCmd(opts))
	cmd.AddCommand(newFilesReindexCmd(opts))
	return cmd
}

func newFilesListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every imported file, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			files, err := a.Catalog.ListFiles(ctx)
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), files)
			}

			rows := make([][]string, len(files))
			for i, f := range files {
				rows[i] = []string{
					formatID(f.FileID),
					truncate(f.Filename, 40),
					f.ImportDate.Format("2006-01-02 15:04"),
					strconv.FormatInt(f.RowCount, 10),
					fmt.Sprintf("%.1f", f.FileSizeMB),
					string(f.Status),
				}
			}
			printTable(cmd.OutOrStdout(),
				[]string{"ID", "FILENAME", "IMPORTED", "ROWS", "SIZE(MB)", "STATUS"}, rows)
			return nil
		},
	}
}

func newFilesShowCmd(opts *rootOptions) *cobra.Command {
	var sample int

	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show one file's registry entry, columns, and sample rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID, err := parseFileID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			file, err := a.Catalog.GetFile(ctx, fileID)
			if err != nil {
				return err
			}
			cols, err := a.Catalog.ColumnsForFile(ctx, fileID)
			if err != nil {
				return err
			}
			sampleRows, err := a.Search.SampleRows(ctx, fileID, sample)
			if err != nil {
				return err
			}
			detail := domain.FileDetail{
				File:           file,
				Columns:        cols,
				IndexedColumns: file.IndexedColumns,
				SampleRows:     sampleRows,
			}

			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), detail)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "File %d: %s\n", file.FileID, file.Filename)
			fmt.Fprintf(out, "  imported: %s\n", file.ImportDate.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "  rows:     %d\n", file.RowCount)
			fmt.Fprintf(out, "  size:     %.1f MB\n", file.FileSizeMB)
			fmt.Fprintf(out, "  status:   %s\n", file.Status)
			names := make([]string, len(cols))
			for i, c := range cols {
				names[i] = c.Name
				if c.Indexed {
					names[i] += "*"
				}
			}
			fmt.Fprintf(out, "  columns:  %s (* = indexed)\n", strings.Join(names, ", "))
			return nil
		},
	}

	cmd.Flags().IntVar(&sample, "sample", 5, "sample rows to include in JSON output")
	return cmd
}

func newFilesDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a file's rows; the registry entry is kept as deleted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID, err := parseFileID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Catalog.DeleteFile(ctx, fileID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted file %d\n", fileID)
			return nil
		},
	}
}

func newFilesReindexCmd(opts *rootOptions) *cobra.Command {
	var columns []string

	cmd := &cobra.Command{
		Use:   "reindex ID",
		Short: "Replace a file's indexed column set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID, err := parseFileID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Catalog.UpdateIndexedColumns(ctx, fileID, columns); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated indexes for file %d\n", fileID)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&columns, "columns", "c", nil, "columns to index")
	_ = cmd.MarkFlagRequired("columns")
	return cmd
}

func parseFileID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid file id %q", raw)
	}
	return id, nil
}
