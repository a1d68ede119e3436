package control

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/config"
	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/infra/storage"
	"github.com/HR-AR/Project-Conductor-sub000/internal/orchestration/driver"
	"github.com/HR-AR/Project-Conductor-sub000/internal/orchestration/emitter"
	"github.com/HR-AR/Project-Conductor-sub000/internal/orchestration/health"
)

func testConfig() config.AppConfig {
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Orchestration.AutoOptimize = true
	cfg.CircuitBreaker.RetriableThreshold = 100
	cfg.Learning.AnalysisInterval = 0
	return cfg
}

// agentOp succeeds only when run by agent-a.
func agentOp(ctx context.Context, x driver.Execution) (any, error) {
	if x.Task.AgentType != "agent-a" {
		return nil, errors.New("permission denied writing artifact")
	}
	return "built", nil
}

func waitIdle(t *testing.T, d *driver.Driver) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.WaitIdle(ctx); err != nil {
		t.Fatalf("driver did not go idle: %v", err)
	}
}

func TestEngine_Lifecycle(t *testing.T) {
	e, err := NewEngine(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := e.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestEngine_StopWithoutStart(t *testing.T) {
	e, err := NewEngine(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if err := e.Stop(context.Background()); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestEngine_LearnsAndSwitchesAgent(t *testing.T) {
	events := emitter.NewRecorder()
	e, err := NewEngine(context.Background(), testConfig(), WithSink(events))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.Stop(ctx); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	})

	d := e.Driver()
	var subs []driver.Submission
	for i := range 6 {
		for _, agent := range []string{"agent-a", "agent-b"} {
			subs = append(subs, driver.Submission{
				Task: domain.Task{
					ID:        fmt.Sprintf("%s-%d", agent, i),
					AgentType: agent,
					TaskType:  "build",
					Goal:      fmt.Sprintf("release %d", i),
				},
				Operation: agentOp,
			})
		}
	}
	if err := d.Submit(subs...); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitIdle(t, d)

	status := d.Status()
	if status[domain.TaskStatusCompleted] != 6 || status[domain.TaskStatusFailed] != 6 {
		t.Fatalf("unexpected status counts %v", status)
	}

	report, err := e.Analyzer().RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if report.Records != 12 {
		t.Errorf("expected 12 records analyzed, got %d", report.Records)
	}

	choice, ok, err := e.Learning().GetBestAgentForTask(context.Background(), "build")
	if err != nil || !ok {
		t.Fatalf("GetBestAgentForTask = %v, %v", ok, err)
	}
	if choice.AgentType != "agent-a" || choice.Confidence != 1 {
		t.Errorf("unexpected best agent %+v", choice)
	}

	if _, err := e.Profiles().Get(context.Background(), "agent-a", "build"); err != nil {
		t.Errorf("expected stored profile: %v", err)
	}

	// a new task for the weak agent is moved to the strong one
	err = d.Submit(driver.Submission{
		Task:      domain.Task{ID: "late", AgentType: "agent-b", TaskType: "build", Goal: "hotfix"},
		Operation: agentOp,
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitIdle(t, d)

	info, err := d.Task("late")
	if err != nil {
		t.Fatal(err)
	}
	if info.Status != domain.TaskStatusCompleted || info.Task.AgentType != "agent-a" {
		t.Errorf("expected late task completed by agent-a, got %s by %s", info.Status, info.Task.AgentType)
	}
	if len(events.OfType(domain.EventAgentSwitched)) != 1 {
		t.Errorf("expected one agent-switched event, got %d", len(events.OfType(domain.EventAgentSwitched)))
	}

	lessons, err := e.Learning().ListLessons(context.Background(), storage.LessonFilter{Type: domain.LessonAgentSelection})
	if err != nil || len(lessons) != 1 {
		t.Fatalf("ListLessons = %d lessons, %v", len(lessons), err)
	}
	if lessons[0].UsageCount != 1 || lessons[0].Effectiveness <= 0.5 {
		t.Errorf("expected positive feedback on the applied lesson, got usage=%d effectiveness=%v",
			lessons[0].UsageCount, lessons[0].Effectiveness)
	}
}

func TestEngine_PausedTaskDegradesHealth(t *testing.T) {
	e, err := NewEngine(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = e.Stop(context.Background()) })

	d := e.Driver()
	err = d.Submit(driver.Submission{
		Task: domain.Task{ID: "scan", AgentType: "agent-sec", TaskType: "scan"},
		Operation: func(ctx context.Context, _ driver.Execution) (any, error) {
			return nil, errors.New("found CVE-2024-0001 in base image")
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	waitIdle(t, d)

	report := e.Monitor().CheckHealth(context.Background())
	if report.SystemStatus != health.StatusDegraded {
		t.Errorf("expected degraded, got %s", report.SystemStatus)
	}
	if len(report.PausedTasks) != 1 || report.PausedTasks[0] != "scan" {
		t.Errorf("unexpected paused tasks %v", report.PausedTasks)
	}
}
