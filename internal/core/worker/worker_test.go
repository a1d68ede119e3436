package worker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/infra/storage/memory"
	"github.com/HR-AR/Project-Conductor-sub000/internal/learning/lessons"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAnalyzer struct {
	mu     sync.Mutex
	calls  int
	err    error
	report *lessons.Report
}

func (f *fakeAnalyzer) AnalyzePatterns(ctx context.Context) (*lessons.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

func (f *fakeAnalyzer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestAnalyzer_RunOnceStoresProfiles(t *testing.T) {
	store := memory.NewMemoryStorage()
	profiles := memory.NewProfileRepo(store)
	fa := &fakeAnalyzer{report: &lessons.Report{
		Records: 12,
		Profiles: []*domain.AgentPerformanceProfile{
			{AgentType: "agent-a", TaskType: "build", Samples: 12, SuccessRate: 0.9, P50: time.Minute},
		},
	}}

	a := NewAnalyzer(fa, profiles, time.Minute)
	report, err := a.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if report.Records != 12 {
		t.Errorf("expected 12 records, got %d", report.Records)
	}

	p, err := profiles.Get(context.Background(), "agent-a", "build")
	if err != nil {
		t.Fatalf("profile not stored: %v", err)
	}
	if p.P50 != time.Minute {
		t.Errorf("expected p50 1m, got %v", p.P50)
	}
}

func TestAnalyzer_RunOnceLeavesSummaryToEngine(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	store := memory.NewMemoryStorage()
	fa := &fakeAnalyzer{report: &lessons.Report{
		Profiles: []*domain.AgentPerformanceProfile{{AgentType: "agent-a", TaskType: "build"}},
	}}
	if _, err := NewAnalyzer(fa, memory.NewProfileRepo(store), time.Minute).RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "Pattern analysis complete") {
		t.Errorf("analyzer repeated the pass summary: %s", out)
	}
	if n := strings.Count(out, "Profiles stored"); n != 1 {
		t.Errorf("expected one profiles line, got %d: %s", n, out)
	}
}

func TestAnalyzer_RunOnceError(t *testing.T) {
	fa := &fakeAnalyzer{err: errors.New("store unavailable")}
	a := NewAnalyzer(fa, nil, time.Minute)

	if _, err := a.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestAnalyzer_StartRunsImmediatelyAndStops(t *testing.T) {
	fa := &fakeAnalyzer{report: &lessons.Report{}}
	a := NewAnalyzer(fa, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Start(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return fa.Calls() == 1 })
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("analyzer did not stop")
	}
}

func TestAnalyzer_DisabledInterval(t *testing.T) {
	fa := &fakeAnalyzer{report: &lessons.Report{}}
	NewAnalyzer(fa, nil, 0).Start(context.Background())
	if fa.Calls() != 0 {
		t.Errorf("expected no passes, got %d", fa.Calls())
	}
}

func TestPruner_DeletesOldRecords(t *testing.T) {
	store := memory.NewMemoryStorage()
	records := memory.NewRecordRepo(store)
	ctx := context.Background()
	now := time.Now()

	for i, age := range []time.Duration{48 * time.Hour, 36 * time.Hour, time.Hour} {
		rec := &domain.ExecutionRecord{
			ID:        string(rune('a' + i)),
			TaskID:    "t",
			Status:    domain.TaskStatusCompleted,
			StartedAt: now.Add(-age),
		}
		if err := records.Append(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	p := NewPruner(records, 24*time.Hour, 0)
	p.now = func() time.Time { return now }

	if n := p.Prune(ctx); n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}
	if n, _ := records.Count(ctx); n != 1 {
		t.Errorf("expected 1 remaining, got %d", n)
	}
}

func TestPruner_Interval(t *testing.T) {
	tests := []struct {
		retention time.Duration
		interval  time.Duration
		want      time.Duration
	}{
		{retention: 30 * 24 * time.Hour, want: time.Hour},
		{retention: 5 * time.Minute, want: time.Minute},
		{retention: 2 * time.Hour, want: 12 * time.Minute},
		{retention: 2 * time.Hour, interval: 5 * time.Minute, want: 5 * time.Minute},
	}
	for _, tt := range tests {
		p := NewPruner(nil, tt.retention, tt.interval)
		if p.interval != tt.want {
			t.Errorf("retention %v: expected interval %v, got %v", tt.retention, tt.want, p.interval)
		}
	}
}

func TestPruner_StartPrunesAndStops(t *testing.T) {
	store := memory.NewMemoryStorage()
	records := memory.NewRecordRepo(store)
	ctx, cancel := context.WithCancel(context.Background())

	old := &domain.ExecutionRecord{ID: "old", TaskID: "t", StartedAt: time.Now().Add(-72 * time.Hour)}
	if err := records.Append(ctx, old); err != nil {
		t.Fatal(err)
	}

	p := NewPruner(records, 24*time.Hour, time.Hour)
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	waitFor(t, func() bool {
		n, _ := records.Count(context.Background())
		return n == 0
	})
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pruner did not stop")
	}
}
