package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/rotisserie/internal/utils"
)

var (
	resetYes   bool
	resetDebug bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the pending set and the ranking",
	Long:  "Empties the pending stream set and the scored ranking. Use --debug to also delete saved debug crops.",
	Run: func(cmd *cobra.Command, args []string) {
		reader := bufio.NewReader(os.Stdin)

		if resetYes || confirm(reader, os.Stdout, "⚠️  Are you sure you want to clear the pending set and ranking?") {
			q, err := openQueue(cmd.Context())
			if err != nil {
				utils.Die("Failed to open queue store", err, nil)
			}
			fmt.Println("🗑️  Clearing queue store...")
			if err := q.Reset(cmd.Context()); err != nil {
				utils.Die("Failed to reset store", err, nil)
			}
		}

		if resetDebug {
			if resetYes || confirm(reader, os.Stdout, fmt.Sprintf("⚠️  Are you sure you want to delete %s?", Cfg.DebugDir)) {
				fmt.Println("🗑️  Clearing debug crops...")
				removeDir(Cfg.DebugDir)
			}
		}

		fmt.Println("✨ Reset complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	resetCmd.Flags().BoolVar(&resetDebug, "debug", false, "Also delete saved debug crops")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
