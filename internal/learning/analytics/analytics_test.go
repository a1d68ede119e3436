package analytics

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/infra/storage/memory"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func rec(agent, taskType string, status domain.TaskStatus, actual time.Duration) *domain.ExecutionRecord {
	return &domain.ExecutionRecord{
		AgentType:      agent,
		TaskType:       taskType,
		Status:         status,
		ActualDuration: actual,
		StartedAt:      base,
		CompletedAt:    base.Add(actual),
	}
}

func TestSnapshot_SuccessRateExcludesCancelledAndPaused(t *testing.T) {
	recs := []*domain.ExecutionRecord{
		rec("a", "build", domain.TaskStatusCompleted, time.Second),
		rec("a", "build", domain.TaskStatusCompleted, time.Second),
		rec("a", "build", domain.TaskStatusFailed, time.Second),
		rec("a", "build", domain.TaskStatusCancelled, time.Second),
		rec("a", "build", domain.TaskStatusPaused, time.Second),
		rec("b", "build", domain.TaskStatusFailed, time.Second),
	}
	s := NewSnapshot(recs, 3, base)

	r := s.SuccessRate("a", "build")
	assert.Equal(t, 2, r.Successes)
	assert.Equal(t, 1, r.Failures)
	assert.Equal(t, 3, r.Samples)
	assert.InDelta(t, 2.0/3.0, r.Rate, 1e-9)
	assert.True(t, r.Sufficient)

	all := s.SuccessRate("", "build")
	assert.Equal(t, 4, all.Samples)

	none := s.SuccessRate("c", "build")
	assert.Zero(t, none.Rate)
	assert.False(t, none.Sufficient)
}

func TestSnapshot_DurationPercentilesNearestRank(t *testing.T) {
	var recs []*domain.ExecutionRecord
	for i := 1; i <= 100; i++ {
		recs = append(recs, rec("a", "test", domain.TaskStatusCompleted, time.Duration(i)*time.Second))
	}
	recs = append(recs, rec("a", "test", domain.TaskStatusFailed, time.Hour))
	s := NewSnapshot(recs, 5, base)

	p := s.DurationPercentiles("a", "test")
	assert.Equal(t, 100, p.Samples)
	assert.Equal(t, 50*time.Second, p.P50)
	assert.Equal(t, 95*time.Second, p.P95)
	assert.Equal(t, 99*time.Second, p.P99)

	assert.Equal(t, Percentiles{}, s.DurationPercentiles("a", "missing"))
}

func TestSnapshot_CommonFailureSignatures(t *testing.T) {
	mk := func(msg string) *domain.ExecutionRecord {
		r := rec("a", "deploy", domain.TaskStatusFailed, time.Second)
		r.ErrorMessage = msg
		r.ErrorCategory = domain.CategoryResourceLock
		return r
	}
	recs := []*domain.ExecutionRecord{
		mk(`lock held on table "users" by pid 4411`),
		mk(`lock held on table "orders" by pid 12`),
		mk(`Lock held on table 'items' by pid 9`),
		mk("disk full"),
	}
	s := NewSnapshot(recs, 1, base)

	sigs := s.CommonFailureSignatures("deploy")
	require.Len(t, sigs, 2)
	assert.Equal(t, "lock held on table <str> by pid <n>", sigs[0].Signature)
	assert.Equal(t, 3, sigs[0].Count)
	assert.Equal(t, domain.CategoryResourceLock, sigs[0].Category)
	assert.Equal(t, 1, sigs[1].Count)
}

func TestSnapshot_TimeEstimationAccuracy(t *testing.T) {
	var recs []*domain.ExecutionRecord
	for i := 0; i < 6; i++ {
		r := rec("a", "build", domain.TaskStatusCompleted, 90*time.Second)
		r.EstimatedDuration = time.Minute
		recs = append(recs, r)
	}
	noEstimate := rec("a", "build", domain.TaskStatusCompleted, time.Hour)
	recs = append(recs, noEstimate)

	acc := NewSnapshot(recs, 5, base).TimeEstimationAccuracy()
	require.Len(t, acc, 1)
	assert.Equal(t, 6, acc[0].Samples)
	assert.InDelta(t, 1.5, acc[0].Ratio, 1e-9)
	assert.InDelta(t, 0.5, acc[0].Deviation(), 1e-9)
	assert.InDelta(t, 0, acc[0].Spread, 1e-9)
	assert.Equal(t, 90*time.Second, acc[0].Median)
	assert.True(t, acc[0].Sufficient)
}

func TestSnapshot_AgentRates(t *testing.T) {
	var recs []*domain.ExecutionRecord
	for i := 0; i < 25; i++ {
		st := domain.TaskStatusCompleted
		if i < 2 {
			st = domain.TaskStatusFailed
		}
		recs = append(recs, rec("AgentA", "review", st, time.Second))
	}
	for i := 0; i < 10; i++ {
		st := domain.TaskStatusCompleted
		if i < 4 {
			st = domain.TaskStatusFailed
		}
		recs = append(recs, rec("AgentB", "review", st, time.Second))
	}

	rates := NewSnapshot(recs, 5, base).AgentRates("review")
	require.Len(t, rates, 2)
	assert.Equal(t, "AgentA", rates[0].AgentType)
	assert.InDelta(t, 0.92, rates[0].Rate.Rate, 1e-9)
	assert.Equal(t, "AgentB", rates[1].AgentType)
	assert.InDelta(t, 0.6, rates[1].Rate.Rate, 1e-9)
}

func TestSnapshot_Profiles(t *testing.T) {
	recs := []*domain.ExecutionRecord{
		rec("a", "build", domain.TaskStatusCompleted, time.Second),
		rec("a", "build", domain.TaskStatusFailed, time.Second),
		rec("b", "build", domain.TaskStatusCompleted, 3*time.Second),
	}
	profiles := NewSnapshot(recs, 1, base).Profiles()
	require.Len(t, profiles, 2)
	assert.Equal(t, "a", profiles[0].AgentType)
	assert.Equal(t, 2, profiles[0].Samples)
	assert.InDelta(t, 0.5, profiles[0].SuccessRate, 1e-9)
	assert.Equal(t, time.Second, profiles[0].P50)
	assert.Equal(t, base, profiles[0].ComputedAt)
	assert.Equal(t, 3*time.Second, profiles[1].P99)
}

func TestEngine_RespectsLookback(t *testing.T) {
	store := memory.NewMemoryStorage()
	repo := memory.NewRecordRepo(store)
	ctx := context.Background()

	now := base.Add(40 * 24 * time.Hour)
	old := rec("a", "build", domain.TaskStatusFailed, time.Second)
	old.StartedAt = now.Add(-35 * 24 * time.Hour)
	require.NoError(t, repo.Append(ctx, old))
	for i := 0; i < 5; i++ {
		r := rec("a", "build", domain.TaskStatusCompleted, time.Second)
		r.ID = fmt.Sprintf("r%d", i)
		r.StartedAt = now.Add(-time.Duration(i+1) * time.Hour)
		require.NoError(t, repo.Append(ctx, r))
	}

	e := New(repo, Config{})
	e.now = func() time.Time { return now }

	rate, err := e.SuccessRate(ctx, "a", "build")
	require.NoError(t, err)
	assert.Equal(t, 5, rate.Samples)
	assert.Equal(t, 1.0, rate.Rate)
	assert.True(t, rate.Sufficient)
}

func TestNormalizeSignature(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Timeout after 3000ms", "timeout after <n>ms"},
		{"task 3f2b8c1e-9a4d-4c1b-8e2f-0a1b2c3d4e5f failed", "task <id> failed"},
		{"commit 0xdeadBEEF rejected", "commit <id> rejected"},
		{"object a1b2c3d4e5f6 missing", "object <id> missing"},
		{"file 'config.yaml'   not   found", "file <str> not found"},
		{"bad cafe", "bad cafe"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSignature(tt.in))
		})
	}

	long := NormalizeSignature(strings.Repeat("word ", 100))
	assert.Len(t, []rune(long), 160)
}
