package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/rotisserie/internal/types"
	"github.com/andresmejia3/rotisserie/internal/utils"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show scored streams, fewest players alive first",
	Run: func(cmd *cobra.Command, args []string) {
		q, err := openQueue(cmd.Context())
		if err != nil {
			utils.Die("Failed to open queue store", err, nil)
		}
		ranked, err := q.Ranked(cmd.Context())
		if err != nil {
			utils.Die("Failed to list streams", err, nil)
		}
		printRanking(os.Stdout, ranked)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func printRanking(out io.Writer, ranked []types.RankedStream) {
	if len(ranked) == 0 {
		fmt.Fprintln(out, "No scored streams yet.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "#\tSTREAM\tALIVE\tURL")
	fmt.Fprintln(w, "-\t------\t-----\t---")
	for i, s := range ranked {
		alive := fmt.Sprintf("%.0f", s.Alive)
		if s.Alive >= types.Sentinel {
			alive = "?"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, s.Name, alive, s.URL)
	}
	w.Flush()
}
