package recorder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/infra/storage/memory"
)

func TestRecorder_Record(t *testing.T) {
	store := memory.NewMemoryStorage()
	repo := memory.NewRecordRepo(store)
	r := New(repo)
	ctx := context.Background()

	task := &domain.Task{
		ID:                "t1",
		AgentType:         "coder",
		TaskType:          "implement",
		Goal:              "ship feature",
		Dependencies:      []string{"t0"},
		EstimatedDuration: time.Minute,
	}
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cls := &domain.ErrorClassification{
		Type:     domain.ErrorTypeFatal,
		Category: domain.CategoryPermissionDenied,
		Message:  "EACCES: permission denied",
	}

	rec, err := r.Record(ctx, task, Outcome{
		Status:         domain.TaskStatusFailed,
		Attempts:       1,
		Classification: cls,
		StartedAt:      start,
		CompletedAt:    start.Add(90 * time.Second),
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if rec.ID == "" {
		t.Error("expected ULID id")
	}
	if rec.GoalHash != task.GoalHash() {
		t.Errorf("GoalHash = %q, want %q", rec.GoalHash, task.GoalHash())
	}
	if rec.ActualDuration != 90*time.Second {
		t.Errorf("ActualDuration = %v, want 90s", rec.ActualDuration)
	}
	if rec.ErrorCategory != domain.CategoryPermissionDenied {
		t.Errorf("ErrorCategory = %q", rec.ErrorCategory)
	}

	// Mutating the task after recording must not alter the stored record
	task.Dependencies[0] = "changed"
	stored, _ := repo.ListSince(ctx, time.Time{})
	if len(stored) != 1 || stored[0].Dependencies[0] != "t0" {
		t.Errorf("stored record = %+v", stored)
	}
}

func TestRecorder_FallsBackToErrorText(t *testing.T) {
	repo := memory.NewRecordRepo(memory.NewMemoryStorage())
	r := New(repo)
	now := time.Now()

	rec, err := r.Record(context.Background(), &domain.Task{ID: "t2"}, Outcome{
		Status:      domain.TaskStatusCancelled,
		Err:         errors.New("context canceled"),
		StartedAt:   now,
		CompletedAt: now,
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if rec.ErrorMessage != "context canceled" {
		t.Errorf("ErrorMessage = %q", rec.ErrorMessage)
	}
}

func TestRecorder_GoalAndRun(t *testing.T) {
	r := New(memory.NewRecordRepo(memory.NewMemoryStorage()))
	now := time.Now()
	out := Outcome{Status: domain.TaskStatusCompleted, StartedAt: now, CompletedAt: now}

	rec, err := r.Record(context.Background(), &domain.Task{ID: "t3", Goal: "ship", RunID: "run-1"}, out)
	if err != nil {
		t.Fatal(err)
	}
	if rec.GoalHash == "" || rec.RunID != "run-1" {
		t.Errorf("goal record = %+v", rec)
	}

	rec, err = r.Record(context.Background(), &domain.Task{ID: "t4"}, out)
	if err != nil {
		t.Fatal(err)
	}
	if rec.GoalHash != "" {
		t.Errorf("GoalHash = %q, want empty for a task without a goal", rec.GoalHash)
	}
}

func TestRecorder_IDsAreOrdered(t *testing.T) {
	r := New(memory.NewRecordRepo(memory.NewMemoryStorage()))
	now := time.Now()

	var prev string
	for i := 0; i < 50; i++ {
		rec, err := r.Record(context.Background(), &domain.Task{ID: "t"}, Outcome{
			Status: domain.TaskStatusCompleted, StartedAt: now, CompletedAt: now,
		})
		if err != nil {
			t.Fatal(err)
		}
		if rec.ID <= prev {
			t.Fatalf("id %s not greater than %s", rec.ID, prev)
		}
		prev = rec.ID
	}
}
