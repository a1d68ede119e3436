package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/HR-AR/Project-Conductor-sub000/internal/control"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one pattern analysis pass over the execution history",
	Run:   runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

// openEngine builds an engine for one-shot commands. Nothing is started.
func openEngine(ctx context.Context) *control.Engine {
	if appCfg.Database.URL == "" {
		slog.Warn("No database configured, history is empty")
	}
	app, err := control.NewEngine(ctx, *appCfg)
	if err != nil {
		slog.Error("Failed to initialize engine", "error", err)
		os.Exit(1)
	}
	return app
}

func closeEngine(app *control.Engine) {
	if err := app.Stop(context.Background()); err != nil {
		slog.Warn("Failed to close engine", "error", err)
	}
}

func runAnalyze(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openEngine(ctx)
	defer closeEngine(app)

	report, err := app.Analyzer().RunOnce(ctx)
	if err != nil {
		slog.Error("Analysis failed", "error", err)
		return
	}

	fmt.Printf("Analyzed %d records in %s: %d lessons created, %d updated\n",
		report.Records, report.Duration, report.Created, report.Updated)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TYPE\tAGENT\tTASK\tCONFIDENCE\tEFFECTIVENESS")
	for _, l := range report.Lessons {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.2f\n",
			l.Type, l.AgentType, l.TaskType, l.Confidence, l.Effectiveness)
	}
	_ = w.Flush()
}
