package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/infra/storage"
)

type MemoryStorage struct {
	records  []*domain.ExecutionRecord
	lessons  map[string]*domain.Lesson // by id
	lessonIx map[string]string         // type|patternHash -> id
	profiles map[string]*domain.AgentPerformanceProfile
	mu       sync.RWMutex
	now      func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		lessons:  make(map[string]*domain.Lesson),
		lessonIx: make(map[string]string),
		profiles: make(map[string]*domain.AgentPerformanceProfile),
		now:      time.Now,
	}
}

// -----------------------------------------------------------------------------
// Record Repository
// -----------------------------------------------------------------------------

type RecordRepo struct {
	store *MemoryStorage
}

func NewRecordRepo(store *MemoryStorage) *RecordRepo {
	return &RecordRepo{store: store}
}

func (r *RecordRepo) Append(ctx context.Context, rec *domain.ExecutionRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.records = append(r.store.records, cloneRecord(rec))
	return nil
}

func (r *RecordRepo) ListSince(ctx context.Context, since time.Time) ([]*domain.ExecutionRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.ExecutionRecord
	for _, rec := range r.store.records {
		if !rec.StartedAt.Before(since) {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (r *RecordRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	kept := r.store.records[:0]
	var deleted int64
	for _, rec := range r.store.records {
		if rec.StartedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	r.store.records = kept
	return deleted, nil
}

func (r *RecordRepo) Count(ctx context.Context) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return int64(len(r.store.records)), nil
}

func cloneRecord(rec *domain.ExecutionRecord) *domain.ExecutionRecord {
	cp := *rec
	cp.Dependencies = slices.Clone(rec.Dependencies)
	cp.Context = maps.Clone(rec.Context)
	return &cp
}

// -----------------------------------------------------------------------------
// Lesson Repository
// -----------------------------------------------------------------------------

type LessonRepo struct {
	store *MemoryStorage
}

func NewLessonRepo(store *MemoryStorage) *LessonRepo {
	return &LessonRepo{store: store}
}

func lessonKey(t domain.LessonType, hash string) string {
	return string(t) + "|" + hash
}

func (r *LessonRepo) Upsert(ctx context.Context, l *domain.Lesson) (*domain.Lesson, bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := r.store.now()
	key := lessonKey(l.Type, l.PatternHash)
	if id, ok := r.store.lessonIx[key]; ok {
		existing := r.store.lessons[id]
		existing.Payload = append(existing.Payload[:0:0], l.Payload...)
		existing.Confidence = l.Confidence
		existing.AgentType = l.AgentType
		existing.TaskType = l.TaskType
		existing.UpdatedAt = now
		return existing.Clone(), false, nil
	}

	created := l.Clone()
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	created.CreatedAt = now
	created.UpdatedAt = now
	r.store.lessons[created.ID] = created
	r.store.lessonIx[key] = created.ID
	return created.Clone(), true, nil
}

func (r *LessonRepo) Get(ctx context.Context, id string) (*domain.Lesson, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	l, ok := r.store.lessons[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return l.Clone(), nil
}

func (r *LessonRepo) List(ctx context.Context, f storage.LessonFilter) ([]*domain.Lesson, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.Lesson
	for _, l := range r.store.lessons {
		if f.Type != "" && l.Type != f.Type {
			continue
		}
		if f.AgentType != "" && l.AgentType != f.AgentType {
			continue
		}
		if f.TaskType != "" && l.TaskType != f.TaskType {
			continue
		}
		if l.Confidence < f.MinConfidence {
			continue
		}
		out = append(out, l.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if si, sj := out[i].Score(), out[j].Score(); si != sj {
			return si > sj
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *LessonRepo) UpdateEffectiveness(ctx context.Context, id string, outcome, alpha float64) (*domain.Lesson, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	l, ok := r.store.lessons[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	l.Effectiveness = l.Effectiveness*(1-alpha) + outcome*alpha
	l.UsageCount++
	l.UpdatedAt = r.store.now()
	return l.Clone(), nil
}

// -----------------------------------------------------------------------------
// Profile Repository
// -----------------------------------------------------------------------------

type ProfileRepo struct {
	store *MemoryStorage
}

func NewProfileRepo(store *MemoryStorage) *ProfileRepo {
	return &ProfileRepo{store: store}
}

func profileKey(agentType, taskType string) string {
	return agentType + "|" + taskType
}

func (r *ProfileRepo) ReplaceAll(ctx context.Context, profiles []*domain.AgentPerformanceProfile) error {
	next := make(map[string]*domain.AgentPerformanceProfile, len(profiles))
	for _, p := range profiles {
		cp := *p
		cp.FailureSignatures = slices.Clone(p.FailureSignatures)
		next[profileKey(p.AgentType, p.TaskType)] = &cp
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.profiles = next
	return nil
}

func (r *ProfileRepo) Get(ctx context.Context, agentType, taskType string) (*domain.AgentPerformanceProfile, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	p, ok := r.store.profiles[profileKey(agentType, taskType)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *ProfileRepo) List(ctx context.Context) ([]*domain.AgentPerformanceProfile, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.AgentPerformanceProfile, 0, len(r.store.profiles))
	for _, p := range r.store.profiles {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AgentType != out[j].AgentType {
			return out[i].AgentType < out[j].AgentType
		}
		return out[i].TaskType < out[j].TaskType
	})
	return out, nil
}
