package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sealtrack/pncp-radar/internal/discovery"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show record store totals",
	Long:  "Display counts of stored organizations, tenders and items, and the time of the last discovery run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		store, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		sum, err := store.Summarize(ctx)
		if err != nil {
			return eris.Wrap(err, "status: summarize")
		}

		formatSummary(os.Stdout, sum)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func formatSummary(out io.Writer, s discovery.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ORGANIZATIONS\tTENDERS\tITEMS\tRELEVANT ITEMS\tLAST RUN")
	_, _ = fmt.Fprintln(w, "-------------\t-------\t-----\t--------------\t--------")

	lastRun := "never"
	if !s.LastRun.IsZero() {
		lastRun = s.LastRun.Format("2006-01-02 15:04:05")
	}
	_, _ = fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%s\n",
		s.Organizations, s.Tenders, s.Items, s.RelevantItems, lastRun)
	_ = w.Flush()
}
