package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andresmejia3/rotisserie/internal/config"
	"github.com/andresmejia3/rotisserie/internal/logging"
	"github.com/andresmejia3/rotisserie/internal/store"
)

// Options holds shared flags for the extract, serve and work commands
type Options struct {
	Title     string
	Workers   int
	ImagePath string
	Remote    bool
	Port      int
	Yes       bool
}

var (
	// Cfg is loaded once in PersistentPreRunE and shared by subcommands
	Cfg *config.Config
	// Log is the process logger
	Log *zap.SugaredLogger
	// Queue is opened lazily by commands that need the store
	Queue store.Queue

	configFile string
	dbURL      string
	verbose    bool
)

// Version is the application version.
const Version = "0.4.0"

var rootCmd = &cobra.Command{
	Use:     "rotisserie",
	Short:   "Players-remaining ranking for live battle royale streams",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		Cfg, err = config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if dbURL != "" {
			Cfg.Postgres.URL = dbURL
		}
		Log = logging.New("rotisserie", verbose || Cfg.Debug)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if Queue != nil {
			Queue.Close()
		}
		if Log != nil {
			Log.Sync()
		}
	},
}

// openQueue connects to the configured store and remembers it for PersistentPostRun.
func openQueue(ctx context.Context) (store.Queue, error) {
	if Queue != nil {
		return Queue, nil
	}
	if err := Cfg.Validate(config.NeedStore); err != nil {
		return nil, err
	}
	q, err := store.Open(ctx, Cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s store: %w", Cfg.Store, err)
	}
	Queue = q
	return q, nil
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Optional config file (yaml, json or toml); environment variables take precedence")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string, used when ROTISSERIE_STORE=postgres")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}
