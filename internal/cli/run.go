package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/HR-AR/Project-Conductor-sub000/internal/control"
	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
)

var (
	planPath   string
	exitOnIdle bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the engine and serve the operator API",
	Long: `Start the engine. With --plan, the plan's tasks are submitted on start;
with --exit-on-idle the process stops once every task has settled.`,
	Run: runEngine,
}

func init() {
	runCmd.Flags().StringVar(&planPath, "plan", "", "workflow plan to submit on start")
	runCmd.Flags().BoolVar(&exitOnIdle, "exit-on-idle", false, "stop once the plan has settled")
	rootCmd.AddCommand(runCmd)
}

func runEngine(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := control.NewEngine(ctx, *appCfg)
	if err != nil {
		slog.Error("Failed to initialize engine", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start engine", "error", err)
		os.Exit(1)
	}
	slog.Info("Conductor started", "config", cfgPath, "port", appCfg.Server.Port)

	idle := make(chan struct{})
	if planPath != "" {
		plan, err := LoadPlan(planPath)
		if err != nil {
			slog.Error("Failed to load plan", "error", err)
			stop(app, 1)
		}
		if err := app.Driver().Submit(plan.Submissions()...); err != nil {
			slog.Error("Failed to submit plan", "error", err)
			stop(app, 1)
		}
		slog.Info("Plan submitted", "goal", plan.Goal, "tasks", len(plan.Tasks))
		if exitOnIdle {
			go func() {
				if err := app.Driver().WaitIdle(ctx); err == nil {
					close(idle)
				}
			}()
		}
	}

	failed := make(chan error, 1)
	go func() { failed <- app.Wait() }()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
	case <-idle:
		status := app.Driver().Status()
		slog.Info("Plan settled",
			"completed", status[domain.TaskStatusCompleted],
			"failed", status[domain.TaskStatusFailed],
			"paused", status[domain.TaskStatusPaused],
			"blocked", status[domain.TaskStatusBlocked],
		)
		if status[domain.TaskStatusCompleted] != len(app.Driver().Tasks()) {
			stop(app, 2)
		}
	case err := <-failed:
		if err != nil {
			slog.Error("Engine stopped unexpectedly", "error", err)
			stop(app, 1)
		}
	}
	stop(app, 0)
}

func stop(app *control.Engine, code int) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		code = 1
	}
	os.Exit(code)
}
