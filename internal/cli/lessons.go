package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/infra/storage"
)

var lessonFilter struct {
	lessonType    string
	agentType     string
	taskType      string
	minConfidence float64
	limit         int
}

var lessonsCmd = &cobra.Command{
	Use:   "lessons",
	Short: "List learned lessons, best first",
	Run:   runLessons,
}

func init() {
	f := lessonsCmd.Flags()
	f.StringVar(&lessonFilter.lessonType, "type", "", "lesson type (agent_selection, time_estimation, ...)")
	f.StringVar(&lessonFilter.agentType, "agent", "", "agent type")
	f.StringVar(&lessonFilter.taskType, "task", "", "task type")
	f.Float64Var(&lessonFilter.minConfidence, "min-confidence", 0, "minimum confidence")
	f.IntVar(&lessonFilter.limit, "limit", 50, "maximum lessons to show")
	rootCmd.AddCommand(lessonsCmd)
}

func runLessons(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openEngine(ctx)
	defer closeEngine(app)

	lessons, err := app.Learning().ListLessons(ctx, storage.LessonFilter{
		Type:          domain.LessonType(lessonFilter.lessonType),
		AgentType:     lessonFilter.agentType,
		TaskType:      lessonFilter.taskType,
		MinConfidence: lessonFilter.minConfidence,
		Limit:         lessonFilter.limit,
	})
	if err != nil {
		slog.Error("Failed to list lessons", "error", err)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tAGENT\tTASK\tCONFIDENCE\tEFFECTIVENESS\tUSED\tPAYLOAD")
	for _, l := range lessons {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%.2f\t%d\t%s\n",
			l.ID, l.Type, l.AgentType, l.TaskType, l.Confidence, l.Effectiveness, l.UsageCount, l.Payload)
	}
	_ = w.Flush()
}
