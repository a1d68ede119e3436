package lessons

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/infra/storage"
	"github.com/HR-AR/Project-Conductor-sub000/internal/infra/storage/memory"
	"github.com/HR-AR/Project-Conductor-sub000/internal/learning/analytics"
)

type fixture struct {
	store   *memory.MemoryStorage
	records *memory.RecordRepo
	lessons *memory.LessonRepo
	engine  *Engine
	base    time.Time
	seq     int
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := memory.NewMemoryStorage()
	f := &fixture{
		store:   store,
		records: memory.NewRecordRepo(store),
		lessons: memory.NewLessonRepo(store),
		base:    time.Now().Add(-24 * time.Hour),
	}
	a := analytics.New(f.records, analytics.DefaultConfig())
	f.engine = NewEngine(a, f.lessons, DefaultConfig(), opts...)
	return f
}

// add appends a record; each call starts 10 minutes after the previous
// one unless at is set.
func (f *fixture) add(t *testing.T, r domain.ExecutionRecord) {
	t.Helper()
	f.seq++
	if r.ID == "" {
		r.ID = fmt.Sprintf("rec-%04d", f.seq)
	}
	if r.TaskID == "" {
		r.TaskID = fmt.Sprintf("task-%04d", f.seq)
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = f.base.Add(time.Duration(f.seq) * 10 * time.Minute)
	}
	if r.ActualDuration == 0 {
		r.ActualDuration = time.Minute
	}
	r.CompletedAt = r.StartedAt.Add(r.ActualDuration)
	require.NoError(t, f.records.Append(context.Background(), &r))
}

func (f *fixture) addAgentHistory(t *testing.T, agent, taskType string, total, failures int) {
	for i := 0; i < total; i++ {
		status := domain.TaskStatusCompleted
		if i < failures {
			status = domain.TaskStatusFailed
		}
		f.add(t, domain.ExecutionRecord{AgentType: agent, TaskType: taskType, Status: status})
	}
}

func lessonsOfType(ls []*domain.Lesson, typ domain.LessonType) []*domain.Lesson {
	var out []*domain.Lesson
	for _, l := range ls {
		if l.Type == typ {
			out = append(out, l)
		}
	}
	return out
}

func TestGetBestAgentForTask(t *testing.T) {
	f := newFixture(t)
	f.addAgentHistory(t, "AgentA", "code-review", 25, 2)
	f.addAgentHistory(t, "AgentB", "code-review", 10, 4)

	choice, ok, err := f.engine.GetBestAgentForTask(context.Background(), "code-review")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "AgentA", choice.AgentType)
	assert.InDelta(t, 0.92, choice.Confidence, 1e-9)
	assert.Equal(t, 25, choice.Samples)
}

func TestGetBestAgentForTask_InsufficientHistory(t *testing.T) {
	f := newFixture(t)
	f.addAgentHistory(t, "AgentA", "code-review", 3, 0)

	_, ok, err := f.engine.GetBestAgentForTask(context.Background(), "code-review")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAnalyzePatterns_AgentSelection(t *testing.T) {
	f := newFixture(t)
	f.addAgentHistory(t, "AgentA", "code-review", 25, 2)
	f.addAgentHistory(t, "AgentB", "code-review", 10, 4)
	f.addAgentHistory(t, "AgentC", "deploy", 10, 5)

	report, err := f.engine.AnalyzePatterns(context.Background())
	require.NoError(t, err)

	sel := lessonsOfType(report.Lessons, domain.LessonAgentSelection)
	require.Len(t, sel, 1, "deploy's best agent is below threshold")
	assert.Equal(t, "AgentA", sel[0].AgentType)
	assert.Equal(t, "code-review", sel[0].TaskType)
	assert.InDelta(t, 0.92, sel[0].Confidence, 1e-9)
	assert.Equal(t, InitialEffectiveness, sel[0].Effectiveness)

	var p domain.AgentSelectionPayload
	require.NoError(t, sel[0].DecodePayload(&p))
	assert.Equal(t, "AgentA", p.Agent)
	assert.InDelta(t, 0.6, p.Alternatives["AgentB"], 1e-9)
}

func TestAnalyzePatterns_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.addAgentHistory(t, "AgentA", "code-review", 25, 2)
	ctx := context.Background()

	first, err := f.engine.AnalyzePatterns(ctx)
	require.NoError(t, err)
	require.NotZero(t, first.Created)

	second, err := f.engine.AnalyzePatterns(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Equal(t, first.Created, second.Updated)

	all, err := f.lessons.List(ctx, storage.LessonFilter{})
	require.NoError(t, err)
	assert.Len(t, all, first.Created)
}

func TestAnalyzePatterns_ConcurrentPassesDoNotDuplicate(t *testing.T) {
	f := newFixture(t)
	f.addAgentHistory(t, "AgentA", "code-review", 25, 2)
	f.addAgentHistory(t, "AgentA", "deploy", 10, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.AnalyzePatterns(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	all, err := f.lessons.List(ctx, storage.LessonFilter{Type: domain.LessonAgentSelection})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAnalyzePatterns_TaskOrdering(t *testing.T) {
	f := newFixture(t)
	for g := 0; g < 3; g++ {
		goal := domain.HashGoal(fmt.Sprintf("goal-%d", g))
		for _, tt := range []string{"design", "build", "test"} {
			f.add(t, domain.ExecutionRecord{AgentType: "a", TaskType: tt, GoalHash: goal, Status: domain.TaskStatusCompleted})
		}
	}
	// a failing goal with a different order
	failing := domain.HashGoal("goal-bad")
	f.add(t, domain.ExecutionRecord{AgentType: "a", TaskType: "build", GoalHash: failing, Status: domain.TaskStatusCompleted})
	f.add(t, domain.ExecutionRecord{AgentType: "a", TaskType: "design", GoalHash: failing, Status: domain.TaskStatusFailed})

	report, err := f.engine.AnalyzePatterns(context.Background())
	require.NoError(t, err)

	ord := lessonsOfType(report.Lessons, domain.LessonTaskOrdering)
	require.Len(t, ord, 1)
	var p domain.TaskOrderingPayload
	require.NoError(t, ord[0].DecodePayload(&p))
	assert.Equal(t, []string{"design", "build", "test"}, p.Sequence)
	assert.Equal(t, 3, p.Goals)
	assert.Equal(t, 1.0, ord[0].Confidence)
}

func TestAnalyzePatterns_TaskOrderingSplitsRuns(t *testing.T) {
	f := newFixture(t)
	goal := domain.HashGoal("nightly release")
	for run := 0; run < 3; run++ {
		for _, tt := range []string{"design", "build", "test"} {
			f.add(t, domain.ExecutionRecord{
				AgentType: "a", TaskType: tt, GoalHash: goal, RunID: fmt.Sprintf("run-%d", run),
				Status: domain.TaskStatusCompleted,
			})
		}
	}
	// tasks without a goal never form a sequence
	for i := 0; i < 3; i++ {
		for _, tt := range []string{"lint", "deploy"} {
			f.add(t, domain.ExecutionRecord{AgentType: "a", TaskType: tt, Status: domain.TaskStatusCompleted})
		}
	}

	report, err := f.engine.AnalyzePatterns(context.Background())
	require.NoError(t, err)

	ord := lessonsOfType(report.Lessons, domain.LessonTaskOrdering)
	require.Len(t, ord, 1)
	var p domain.TaskOrderingPayload
	require.NoError(t, ord[0].DecodePayload(&p))
	assert.Equal(t, []string{"design", "build", "test"}, p.Sequence)
	assert.Equal(t, 3, p.Goals)
}

func TestAnalyzePatterns_TimeEstimation(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.add(t, domain.ExecutionRecord{
			AgentType:         "a",
			TaskType:          "migrate",
			Status:            domain.TaskStatusCompleted,
			EstimatedDuration: time.Minute,
			ActualDuration:    2 * time.Minute,
		})
	}
	// accurate estimates produce no lesson
	for i := 0; i < 5; i++ {
		f.add(t, domain.ExecutionRecord{
			AgentType:         "a",
			TaskType:          "lint",
			Status:            domain.TaskStatusCompleted,
			EstimatedDuration: time.Minute,
			ActualDuration:    65 * time.Second,
		})
	}

	report, err := f.engine.AnalyzePatterns(context.Background())
	require.NoError(t, err)

	te := lessonsOfType(report.Lessons, domain.LessonTimeEstimation)
	require.Len(t, te, 1)
	assert.Equal(t, "migrate", te[0].TaskType)
	assert.Equal(t, 1.0, te[0].Confidence)

	var p domain.TimeEstimationPayload
	require.NoError(t, te[0].DecodePayload(&p))
	assert.InDelta(t, 2.0, p.Ratio, 1e-9)
	assert.Equal(t, 2*time.Minute, p.CorrectedEstimate)

	est, err := f.engine.GetTimeEstimate(context.Background(), &domain.Task{
		AgentType: "a", TaskType: "migrate", EstimatedDuration: time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, est)
}

func TestAnalyzePatterns_ErrorPrevention(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.add(t, domain.ExecutionRecord{
			AgentType:     "a",
			TaskType:      "deploy",
			Status:        domain.TaskStatusFailed,
			ErrorCategory: domain.CategoryResourceLock,
			ErrorMessage:  fmt.Sprintf("lock held by pid %d", 100+i),
		})
	}
	f.add(t, domain.ExecutionRecord{
		AgentType: "a", TaskType: "deploy", Status: domain.TaskStatusFailed, ErrorMessage: "disk full",
	})

	report, err := f.engine.AnalyzePatterns(context.Background())
	require.NoError(t, err)

	ep := lessonsOfType(report.Lessons, domain.LessonErrorPrevention)
	require.Len(t, ep, 1)
	assert.InDelta(t, 0.75, ep[0].Confidence, 1e-9)

	var p domain.ErrorPreventionPayload
	require.NoError(t, ep[0].DecodePayload(&p))
	assert.Equal(t, "lock held by pid <n>", p.Signature)
	assert.Equal(t, 3, p.Occurrences)
	assert.NotEmpty(t, p.Precondition)
}

func TestAnalyzePatterns_Parallelization(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		start := f.base.Add(time.Duration(i) * time.Hour)
		f.add(t, domain.ExecutionRecord{AgentType: "a", TaskType: "frontend", Status: domain.TaskStatusCompleted, StartedAt: start})
		f.add(t, domain.ExecutionRecord{AgentType: "b", TaskType: "backend", Status: domain.TaskStatusCompleted, StartedAt: start.Add(20 * time.Second)})
	}
	// dependent pair inside the window never qualifies
	for i := 0; i < 5; i++ {
		start := f.base.Add(time.Duration(i)*time.Hour + 30*time.Minute)
		id := fmt.Sprintf("schema-%d", i)
		f.add(t, domain.ExecutionRecord{TaskID: id, AgentType: "a", TaskType: "schema", Status: domain.TaskStatusCompleted, StartedAt: start})
		f.add(t, domain.ExecutionRecord{AgentType: "a", TaskType: "seed", Dependencies: []string{id}, Status: domain.TaskStatusCompleted, StartedAt: start.Add(5 * time.Second)})
	}

	report, err := f.engine.AnalyzePatterns(context.Background())
	require.NoError(t, err)

	par := lessonsOfType(report.Lessons, domain.LessonParallelization)
	require.Len(t, par, 1)
	var p domain.ParallelizationPayload
	require.NoError(t, par[0].DecodePayload(&p))
	assert.Equal(t, [2]string{"backend", "frontend"}, p.TaskTypes)
	assert.Equal(t, 5, p.Cooccurrence)
}

func TestGetRecommendations(t *testing.T) {
	f := newFixture(t, WithMinConfidence(0.7))
	ctx := context.Background()

	mk := func(typ domain.LessonType, agent, taskType string, conf, eff float64, payload string) {
		_, _, err := f.lessons.Upsert(ctx, &domain.Lesson{
			Type:          typ,
			PatternHash:   domain.PatternHash(typ, agent, taskType, payload),
			AgentType:     agent,
			TaskType:      taskType,
			Payload:       []byte(payload),
			Confidence:    conf,
			Effectiveness: eff,
		})
		require.NoError(t, err)
	}
	mk(domain.LessonAgentSelection, "AgentA", "review", 0.9, 0.5, `{}`)
	mk(domain.LessonErrorPrevention, "", "review", 0.8, 0.9, `{}`)
	mk(domain.LessonErrorPrevention, "", "review", 0.65, 1, `{"x":1}`)  // below floor
	mk(domain.LessonTimeEstimation, "AgentB", "review", 0.95, 0.5, `{}`) // other agent
	mk(domain.LessonTaskOrdering, "", "", 0.9, 0.5, `{"sequence":["design","review"]}`)
	mk(domain.LessonParallelization, "", "", 0.9, 0.5, `{"taskTypes":["build","deploy"]}`)

	recs, err := f.engine.GetRecommendations(ctx, &domain.Task{AgentType: "AgentA", TaskType: "review"})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, domain.LessonErrorPrevention, recs[0].Type, "0.8*0.9 ranks first")
	for _, r := range recs {
		assert.GreaterOrEqual(t, r.Confidence, 0.7)
	}

	empty, err := newFixture(t).engine.GetRecommendations(ctx, &domain.Task{TaskType: "review"})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestUpdateEffectiveness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l, _, err := f.lessons.Upsert(ctx, &domain.Lesson{
		Type:          domain.LessonAgentSelection,
		PatternHash:   "h",
		Payload:       []byte(`{}`),
		Confidence:    0.9,
		Effectiveness: InitialEffectiveness,
	})
	require.NoError(t, err)

	got, err := f.engine.UpdateEffectiveness(ctx, l.ID, true)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, got.Effectiveness, 1e-9)
	assert.Equal(t, 1, got.UsageCount)

	got, err = f.engine.UpdateEffectiveness(ctx, l.ID, false)
	require.NoError(t, err)
	assert.InDelta(t, 0.48, got.Effectiveness, 1e-9)
	assert.Equal(t, 2, got.UsageCount)

	_, err = f.engine.UpdateEffectiveness(ctx, "missing", true)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetTimeEstimate_FallsBackToProfileThenTask(t *testing.T) {
	store := memory.NewMemoryStorage()
	profiles := memory.NewProfileRepo(store)
	a := analytics.New(memory.NewRecordRepo(store), analytics.DefaultConfig())
	e := NewEngine(a, memory.NewLessonRepo(store), DefaultConfig(), WithProfiles(profiles))
	ctx := context.Background()

	task := &domain.Task{AgentType: "a", TaskType: "build", EstimatedDuration: time.Minute}
	est, err := e.GetTimeEstimate(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, est)

	require.NoError(t, profiles.ReplaceAll(ctx, []*domain.AgentPerformanceProfile{
		{AgentType: "a", TaskType: "build", Samples: 12, P50: 3 * time.Minute},
	}))
	est, err = e.GetTimeEstimate(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Minute, est)
}
