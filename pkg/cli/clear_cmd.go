package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sheetbase/internal/domain"
)

func newClearCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every active file's rows from the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				return fmt.Errorf("refusing to clear the store without --force")
			}
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
			cleared := 0
			for _, f := range files {
				if f.Status != domain.FileActive {
					continue
				}
				if err := a.Catalog.DeleteFile(ctx, f.FileID); err != nil {
					return fmt.Errorf("delete file %d: %w", f.FileID, err)
				}
				cleared++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d files\n", cleared)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "confirm clearing every imported file")
	return cmd
}
