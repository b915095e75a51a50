package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/rotisserie/internal/extraction"
	"github.com/andresmejia3/rotisserie/internal/types"
	"github.com/andresmejia3/rotisserie/internal/utils"
)

var extractOpts Options

var extractCmd = &cobra.Command{
	Use:   "extract [stream...]",
	Short: "Read the players-remaining counter of streams or an image",
	Long: "Runs one extraction per stream in-process and prints the readings. With --image the file is\n" +
		"classified directly: the full 1280x720 frame for blackout, the cropped counter otherwise.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		t, err := validateExtractFlags(&extractOpts, args)
		if err != nil {
			utils.ShowError("Invalid extract options", err, nil)
			return err
		}
		return runExtract(cmd.Context(), t, args, extractOpts)
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractOpts.Title, "title", "t", string(types.PUBG), "Game title: fortnite, pubg or blackout")
	extractCmd.Flags().StringVarP(&extractOpts.ImagePath, "image", "i", "", "Classify this image file instead of capturing a stream")
	rootCmd.AddCommand(extractCmd)
}

func validateExtractFlags(opts *Options, args []string) (types.Title, error) {
	t, err := types.ParseTitle(opts.Title)
	if err != nil {
		return "", err
	}
	if opts.ImagePath == "" && len(args) == 0 {
		return "", errors.New("give at least one stream name or --image")
	}
	if opts.ImagePath != "" {
		if len(args) > 0 {
			return "", errors.New("--image cannot be combined with stream names")
		}
		info, err := os.Stat(opts.ImagePath)
		if err != nil {
			return "", err
		}
		if info.IsDir() {
			return "", fmt.Errorf("%s is a directory, expected an image file", opts.ImagePath)
		}
	}
	return t, nil
}

type extractRow struct {
	name string
	res  extraction.Result
}

func runExtract(ctx context.Context, t types.Title, streams []string, opts Options) error {
	rt, err := newInproc(ctx, []types.Title{t}, nil)
	if err != nil {
		utils.ShowError("Failed to start extraction service", err, nil)
		return err
	}
	defer rt.close()

	var rows []extractRow
	if opts.ImagePath != "" {
		data, err := os.ReadFile(opts.ImagePath)
		if err != nil {
			utils.ShowError("Failed to read image file", err, nil)
			return err
		}
		res, err := rt.service.Extract(ctx, t, extraction.ImageRequest{Image: data})
		if err != nil {
			utils.ShowError("Extraction failed", err, nil)
			return err
		}
		rows = append(rows, extractRow{name: opts.ImagePath, res: res})
	} else {
		var bar *progressbar.ProgressBar
		if len(streams) > 1 {
			bar = progressbar.NewOptions(len(streams),
				progressbar.OptionSetDescription("🔍 Extracting"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
			)
		}
		for _, name := range streams {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res, err := rt.service.Extract(ctx, t, extraction.StreamRequest{Name: name})
			if err != nil {
				utils.ShowError("Extraction failed", err, nil)
				return err
			}
			rows = append(rows, extractRow{name: name, res: res})
			if bar != nil {
				bar.Add(1)
			}
		}
		if bar != nil {
			bar.Finish()
			fmt.Fprintln(os.Stderr)
		}
	}

	printReadings(rows)
	return nil
}

func printReadings(rows []extractRow) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tALIVE\tPROBABILITY")
	fmt.Fprintln(w, "------\t-----\t-----------")
	for _, r := range rows {
		alive := fmt.Sprint(r.res.Value)
		if r.res.IsUnknown() {
			alive = "unknown"
		}
		fmt.Fprintf(w, "%s\t%s\t%5.2f%%\n", r.name, alive, r.res.Confidence*100)
	}
	w.Flush()
}
