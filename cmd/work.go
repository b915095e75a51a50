package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/rotisserie/internal/config"
	"github.com/andresmejia3/rotisserie/internal/orchestrator"
	"github.com/andresmejia3/rotisserie/internal/types"
	"github.com/andresmejia3/rotisserie/internal/utils"
)

var workOpts Options

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Drain the pending stream set and score each stream",
	Long: "Runs queue workers that pop a stream, capture its players-remaining counter and write the\n" +
		"reading to the ranking. By default captures are posted to ROTISSERIE_OCR_URL; use --local to\n" +
		"classify in-process instead.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := validateWorkFlags(&workOpts); err != nil {
			utils.ShowError("Invalid work options", err, nil)
			return err
		}
		return runWork(cmd.Context(), workOpts)
	},
}

var workLocal bool

func init() {
	workCmd.Flags().IntVarP(&workOpts.Workers, "workers", "w", 1, "Number of concurrent queue workers")
	workCmd.Flags().BoolVar(&workLocal, "local", false, "Classify in-process instead of calling the OCR service")
	rootCmd.AddCommand(workCmd)
}

func validateWorkFlags(opts *Options) error {
	opts.Remote = !workLocal
	if opts.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", opts.Workers)
	}
	if opts.Remote {
		return Cfg.Validate(config.NeedStore, config.NeedOCR)
	}
	return Cfg.Validate(config.NeedStore, config.NeedModels)
}

func runWork(ctx context.Context, opts Options) error {
	q, err := openQueue(ctx)
	if err != nil {
		utils.ShowError("Failed to open queue store", err, nil)
		return err
	}
	source, err := newSource()
	if err != nil {
		utils.ShowError("Missing capture tooling", err, nil)
		return err
	}

	var submit orchestrator.Submitter
	if opts.Remote {
		submit = orchestrator.NewHTTPSubmitter(Cfg.OCRURL, types.PUBG, Cfg.CaptureTimeout+Cfg.ResolveTimeout)
		fmt.Fprintf(os.Stderr, "📡 Submitting captures to %s\n", Cfg.OCRURL)
	} else {
		rt, err := newInproc(ctx, []types.Title{types.PUBG}, nil)
		if err != nil {
			utils.ShowError("Failed to load PUBG model", err, nil)
			return err
		}
		defer rt.close()
		submit = orchestrator.LocalSubmitter{Service: rt.service, Title: types.PUBG}
	}

	fmt.Fprintf(os.Stderr, "🔁 Starting %d worker(s), idle backoff %s\n", opts.Workers, Cfg.IdleBackoff)
	cfg := orchestrator.Config{IdleBackoff: Cfg.IdleBackoff, Crop: types.PUBGWorkerCrop}
	err = orchestrator.RunPool(ctx, opts.Workers, func(id int) *orchestrator.Worker {
		return orchestrator.NewWorker(id, q, source, submit, cfg, Log.Named("worker"))
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		utils.ShowError("Worker pool stopped", err, nil)
		return err
	}
	fmt.Fprintln(os.Stderr, "👋 Workers stopped.")
	return nil
}
