package cli

import (
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if listenAddr != "" {
				a.Cfg.ListenAddr = listenAddr
			}
			return a.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (default $LISTEN_ADDR or :8080)")
	return cmd
}
