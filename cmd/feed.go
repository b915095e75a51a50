package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/rotisserie/internal/config"
	"github.com/andresmejia3/rotisserie/internal/feeder"
	"github.com/andresmejia3/rotisserie/internal/types"
	"github.com/andresmejia3/rotisserie/internal/utils"
)

var (
	feedOnce bool
	feedOpts Options
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Periodically queue live or configured channels for scoring",
	Long: "Pushes channels into the pending set every ROTISSERIE_FEED_INTERVAL, keeping whitelisted\n" +
		"and skipping blacklisted names. ROTISSERIE_CHANNELS wins when set; otherwise, with\n" +
		"TWITCH_CLIENT_ID, the live non-mature streams of --title are listed from Twitch;\n" +
		"otherwise the whitelist itself is queued.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := Cfg.Validate(config.NeedStore, config.NeedChannels); err != nil {
			utils.ShowError("Invalid feed configuration", err, nil)
			return err
		}
		src, err := feedSource(feedOpts.Title)
		if err != nil {
			utils.ShowError("Invalid feed configuration", err, nil)
			return err
		}
		return runFeed(cmd.Context(), src)
	},
}

func init() {
	feedCmd.Flags().BoolVar(&feedOnce, "once", false, "Queue the channels once and exit")
	feedCmd.Flags().StringVarP(&feedOpts.Title, "title", "t", string(types.PUBG), "Game whose live streams are listed from Twitch")
	rootCmd.AddCommand(feedCmd)
}

func feedSource(title string) (feeder.Source, error) {
	if len(Cfg.Channels) > 0 {
		return feeder.Static(Cfg.Channels), nil
	}
	if Cfg.Twitch.ClientID != "" {
		t, err := types.ParseTitle(title)
		if err != nil {
			return nil, err
		}
		return feeder.NewTwitch(Cfg.Twitch.URL, Cfg.Twitch.ClientID, Cfg.Token, t)
	}
	return feeder.Static(Cfg.Whitelist), nil
}

func describeSource(src feeder.Source) string {
	switch s := src.(type) {
	case feeder.Static:
		return fmt.Sprintf("%d channel(s)", len(s))
	case *feeder.Twitch:
		return "live Twitch streams for game " + s.GameID
	}
	return "channels"
}

func runFeed(ctx context.Context, src feeder.Source) error {
	q, err := openQueue(ctx)
	if err != nil {
		utils.ShowError("Failed to open queue store", err, nil)
		return err
	}

	filter := feeder.Filter{Whitelist: Cfg.Whitelist, Blacklist: Cfg.Blacklist}
	f := feeder.New(src, filter, q, Cfg.FeedInterval, Log.Named("feeder"))

	if feedOnce {
		added, err := f.FeedOnce(ctx)
		if err != nil {
			utils.ShowError("Feed failed", err, nil)
			return err
		}
		fmt.Printf("✅ Queued %d new stream(s)\n", added)
		return nil
	}

	fmt.Fprintf(os.Stderr, "📺 Feeding %s every %s\n", describeSource(src), Cfg.FeedInterval)
	if err := f.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		utils.ShowError("Feeder stopped", err, nil)
		return err
	}
	return nil
}
