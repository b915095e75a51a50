package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/rotisserie/internal/server"
	"github.com/andresmejia3/rotisserie/internal/utils"
)

var serveOpts Options

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve /process_<title>, /info, /streams, /current and /metrics over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runServe(cmd.Context(), serveOpts)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&serveOpts.Port, "port", "p", 0, "Listen port (default: $PORT or 3001)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, opts Options) error {
	port := opts.Port
	if port == 0 {
		port = Cfg.Port
	}

	metrics := server.NewMetrics()
	rt, err := newInproc(ctx, nil, metrics.Observe)
	if err != nil {
		utils.ShowError("Failed to start extraction service", err, nil)
		return err
	}
	defer rt.close()

	// The ranking endpoint is optional; extraction works without a store.
	q, err := openQueue(ctx)
	if err != nil {
		Log.Warnw("store unavailable, /streams disabled", "error", err)
		q = nil
	}

	fmt.Fprintf(os.Stderr, "🍗 Serving %v on :%d\n", rt.registry.Titles(), port)
	srv := server.New(rt.service, q, metrics, Cfg.Debug, Log.Named("http"))
	if err := srv.Run(ctx, fmt.Sprintf(":%d", port)); err != nil {
		utils.ShowError("HTTP server failed", err, nil)
		return err
	}
	return nil
}
