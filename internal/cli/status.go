package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent performance profiles from the last analysis",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openEngine(ctx)
	defer closeEngine(app)

	profiles, err := app.Profiles().List(ctx)
	if err != nil {
		slog.Error("Failed to list profiles", "error", err)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "AGENT\tTASK\tSAMPLES\tSUCCESS\tP50\tP95\tCOMPUTED")
	for _, p := range profiles {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%.0f%%\t%s\t%s\t%s\n",
			p.AgentType, p.TaskType, p.Samples, p.SuccessRate*100,
			p.P50.Round(time.Millisecond), p.P95.Round(time.Millisecond),
			p.ComputedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
