package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/rotisserie/internal/feeder"
	"github.com/andresmejia3/rotisserie/internal/utils"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <stream>...",
	Short: "Add streams to the pending set",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		q, err := openQueue(cmd.Context())
		if err != nil {
			utils.Die("Failed to open queue store", err, nil)
		}
		// Whitelist and blacklist apply here too so manual runs match the feeder.
		names := feeder.Filter{Whitelist: Cfg.Whitelist, Blacklist: Cfg.Blacklist}.Apply(args)
		added, err := q.Push(cmd.Context(), names...)
		if err != nil {
			utils.Die("Failed to enqueue streams", err, nil)
		}
		fmt.Printf("✅ Queued %d new stream(s) (%d skipped)\n", added, len(args)-added)
	},
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
}
