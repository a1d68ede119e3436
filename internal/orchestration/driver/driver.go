// Package driver schedules tasks across agents with bounded concurrency.
//
// Each task runs through the retry executor. Risky tasks are checkpointed
// first. Terminal outcomes are recorded and emitted as events, and
// learned lessons may adjust a task before it starts.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/core/lifecycle"
	"github.com/HR-AR/Project-Conductor-sub000/internal/learning/recorder"
	"github.com/HR-AR/Project-Conductor-sub000/internal/orchestration/emitter"
	"github.com/HR-AR/Project-Conductor-sub000/internal/resilience/breaker"
	"github.com/HR-AR/Project-Conductor-sub000/internal/resilience/checkpoint"
	"github.com/HR-AR/Project-Conductor-sub000/internal/resilience/retry"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrDuplicateTask     = errors.New("duplicate task id")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrDependencyCycle   = errors.New("dependency cycle")
	ErrInvalidTransition = lifecycle.ErrInvalidTransition
	ErrAlreadyRunning    = errors.New("driver already running")
)

// Operation is the work a task performs. It must honor ctx.
type Operation func(ctx context.Context, exec Execution) (any, error)

// Execution is what an operation sees of its task and the workflow.
type Execution struct {
	Task  domain.Task
	State StateHolder
}

// Shared returns the state as a *SharedState, or nil when a custom holder
// is in use.
func (x Execution) Shared() *SharedState {
	s, _ := x.State.(*SharedState)
	return s
}

// Submission pairs a task with its operation.
type Submission struct {
	Task      domain.Task
	Operation Operation
	// Retry overrides the per-type policy for every attempt. Optional.
	Retry *domain.RetryConfig
	// Scope is the circuit breaker key. Defaults to the task's agent type.
	Scope string
}

// Recommender serves lessons and takes outcome feedback.
type Recommender interface {
	GetRecommendations(ctx context.Context, task *domain.Task) ([]*domain.Lesson, error)
	UpdateEffectiveness(ctx context.Context, lessonID string, success bool) (*domain.Lesson, error)
}

// Recorder persists terminal outcomes.
type Recorder interface {
	Record(ctx context.Context, task *domain.Task, out recorder.Outcome) (*domain.ExecutionRecord, error)
}

// Deps are the collaborators of a Driver. Learning, Sink and State are
// optional.
type Deps struct {
	Executor    *retry.Executor
	Breakers    *breaker.Registry
	Checkpoints *checkpoint.Store
	Recorder    Recorder
	Learning    Recommender
	Sink        emitter.Sink
	State       StateHolder
}

// TaskInfo is a read-only view of a submitted task.
type TaskInfo struct {
	Task           domain.Task                 `json:"task"`
	Status         domain.TaskStatus           `json:"status"`
	BlockedBy      string                      `json:"blockedBy,omitempty"`
	Attempts       int                         `json:"attempts"`
	Rollbacks      int                         `json:"rollbacks"`
	CheckpointID   string                      `json:"checkpointId,omitempty"`
	Classification *domain.ErrorClassification `json:"classification,omitempty"`
	Error          string                      `json:"error,omitempty"`
	AppliedLessons []string                    `json:"appliedLessons,omitempty"`
	StartedAt      time.Time                   `json:"startedAt,omitzero"`
	CompletedAt    time.Time                   `json:"completedAt,omitzero"`
	Transitions    []lifecycle.Transition      `json:"transitions"`
}

type entry struct {
	task  domain.Task
	op    Operation
	retry *domain.RetryConfig
	scope string
	seq   int

	status         domain.TaskStatus
	blockedBy      string
	attempts       int
	rollbacks      int
	checkpointID   string
	classification *domain.ErrorClassification
	err            error
	applied        []string
	startedAt      time.Time
	completedAt    time.Time
	transitions    []lifecycle.Transition

	cancel context.CancelFunc
}

func (e *entry) info() TaskInfo {
	t := e.task
	t.Dependencies = slices.Clone(e.task.Dependencies)
	info := TaskInfo{
		Task:           t,
		Status:         e.status,
		BlockedBy:      e.blockedBy,
		Attempts:       e.attempts,
		Rollbacks:      e.rollbacks,
		CheckpointID:   e.checkpointID,
		AppliedLessons: slices.Clone(e.applied),
		StartedAt:      e.startedAt,
		CompletedAt:    e.completedAt,
		Transitions:    slices.Clone(e.transitions),
	}
	if e.classification != nil {
		c := *e.classification
		info.Classification = &c
	}
	if e.err != nil {
		info.Error = e.err.Error()
	}
	return info
}

// Driver owns the task graph. All methods are safe for concurrent use.
type Driver struct {
	cfg         Config
	executor    *retry.Executor
	breakers    *breaker.Registry
	checkpoints *checkpoint.Store
	recorder    Recorder
	learning    Recommender
	sink        emitter.Sink
	state       StateHolder
	now         func() time.Time

	mu      sync.Mutex
	tasks   map[string]*entry
	seq     int
	changed chan struct{}
	running bool
	wg      sync.WaitGroup
}

// New creates a driver and subscribes it to breaker state changes, so it
// must be created before any breaker in deps.Breakers is used.
func New(cfg Config, deps Deps) *Driver {
	d := &Driver{
		cfg:         cfg,
		executor:    deps.Executor,
		breakers:    deps.Breakers,
		checkpoints: deps.Checkpoints,
		recorder:    deps.Recorder,
		learning:    deps.Learning,
		sink:        deps.Sink,
		state:       deps.State,
		now:         time.Now,
		tasks:       make(map[string]*entry),
		changed:     make(chan struct{}),
	}
	if d.state == nil {
		d.state = NewSharedState()
	}
	if d.breakers != nil {
		d.breakers.SetStateChangeCallback(d.onBreakerChange)
	}
	return d
}

func (d *Driver) Config() Config {
	return d.cfg
}

// State returns the workflow state handed to operations.
func (d *Driver) State() StateHolder {
	return d.state
}

// Submit validates and enqueues a batch of tasks. Dependencies may point at
// tasks in the same batch or already submitted. The batch is rejected as a
// whole on duplicate ids, unknown dependencies or cycles.
func (d *Driver) Submit(subs ...Submission) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	batch := make(map[string]*Submission, len(subs))
	for i := range subs {
		s := &subs[i]
		id := s.Task.ID
		if id == "" {
			return fmt.Errorf("task at index %d has no id", i)
		}
		if s.Operation == nil {
			return fmt.Errorf("task %s has no operation", id)
		}
		if _, ok := d.tasks[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, id)
		}
		if _, ok := batch[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, id)
		}
		batch[id] = s
	}
	for _, s := range subs {
		for _, dep := range s.Task.Dependencies {
			_, inBatch := batch[dep]
			_, known := d.tasks[dep]
			if !inBatch && !known {
				return fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, s.Task.ID, dep)
			}
		}
	}
	if cycle := findCycle(subs); len(cycle) > 0 {
		return fmt.Errorf("%w: %v", ErrDependencyCycle, cycle)
	}

	// insert in topological order so dependency state is known on insert
	runID := uuid.NewString()
	for _, s := range topoOrder(subs) {
		d.seq++
		e := &entry{
			task:   s.Task,
			op:     s.Operation,
			retry:  s.Retry,
			scope:  s.Scope,
			seq:    d.seq,
			status: domain.TaskStatusPending,
		}
		e.task.Dependencies = slices.Clone(s.Task.Dependencies)
		if e.task.RunID == "" {
			e.task.RunID = d.inheritRunIDLocked(e.task, runID)
		}
		d.tasks[e.task.ID] = e
		e.transitions = append(e.transitions, lifecycle.Transition{
			TaskID:    e.task.ID,
			To:        domain.TaskStatusPending,
			Reason:    "submitted",
			Timestamp: d.now(),
		})

		if root := d.blockingRootLocked(e); root != "" {
			_ = d.transitionLocked(e, domain.TaskStatusBlocked, "prerequisite "+root+" did not complete")
			e.blockedBy = root
		}
	}
	slog.Info("Tasks submitted", "count", len(subs), "total", len(d.tasks))
	d.broadcastLocked()
	return nil
}

// inheritRunIDLocked continues the run of the first dependency serving the
// same goal, so follow-up batches stay in one sequence. Otherwise the task
// starts the batch's run.
func (d *Driver) inheritRunIDLocked(t domain.Task, batchRun string) string {
	for _, dep := range t.Dependencies {
		if de, ok := d.tasks[dep]; ok && de.task.Goal == t.Goal && de.task.RunID != "" {
			return de.task.RunID
		}
	}
	return batchRun
}

// blockingRootLocked returns the task whose outcome prevents e from ever
// becoming ready, or "" if none does.
func (d *Driver) blockingRootLocked(e *entry) string {
	for _, dep := range e.task.Dependencies {
		de := d.tasks[dep]
		switch de.status {
		case domain.TaskStatusFailed, domain.TaskStatusCancelled, domain.TaskStatusPaused:
			return dep
		case domain.TaskStatusBlocked:
			return de.blockedBy
		}
	}
	return ""
}

// findCycle runs Kahn's algorithm over the batch. Edges to tasks outside
// the batch cannot close a cycle because existing tasks never depend on
// new ones. It returns the ids left with unresolved in-degree.
func findCycle(subs []Submission) []string {
	indeg := make(map[string]int, len(subs))
	children := make(map[string][]string)
	for _, s := range subs {
		indeg[s.Task.ID] += 0
	}
	for _, s := range subs {
		for _, dep := range s.Task.Dependencies {
			if _, ok := indeg[dep]; !ok {
				continue
			}
			indeg[s.Task.ID]++
			children[dep] = append(children[dep], s.Task.ID)
		}
	}

	var queue []string
	for id, n := range indeg {
		if n == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, c := range children[id] {
			indeg[c]--
			if indeg[c] == 0 {
				queue = append(queue, c)
			}
		}
	}
	if visited == len(indeg) {
		return nil
	}

	var stuck []string
	for id, n := range indeg {
		if n > 0 {
			stuck = append(stuck, id)
		}
	}
	sort.Strings(stuck)
	return stuck
}

// topoOrder orders an acyclic batch so every task follows its in-batch
// dependencies, keeping submission order otherwise.
func topoOrder(subs []Submission) []Submission {
	pos := make(map[string]int, len(subs))
	for i, s := range subs {
		pos[s.Task.ID] = i
	}
	done := make(map[string]bool, len(subs))
	out := make([]Submission, 0, len(subs))

	var visit func(i int)
	visit = func(i int) {
		id := subs[i].Task.ID
		if done[id] {
			return
		}
		done[id] = true
		for _, dep := range subs[i].Task.Dependencies {
			if j, ok := pos[dep]; ok {
				visit(j)
			}
		}
		out = append(out, subs[i])
	}
	for i := range subs {
		visit(i)
	}
	return out
}

// transitionLocked moves e to status `to` if the state machine allows it.
func (d *Driver) transitionLocked(e *entry, to domain.TaskStatus, reason string) error {
	from := e.status
	if !lifecycle.CanTransition(from, to) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, e.task.ID, from, to)
	}
	tr := lifecycle.NewTransition(e.task.ID, from, to, reason)
	tr.Timestamp = d.now()
	e.transitions = append(e.transitions, tr)
	e.status = to
	if to != domain.TaskStatusBlocked {
		e.blockedBy = ""
	}

	slog.Debug("Task transition",
		"task", e.task.ID,
		"from", from,
		"to", to,
		"reason", reason,
	)
	return nil
}

// blockDependentsLocked marks every pending transitive dependent of root as
// Blocked and returns their ids.
func (d *Driver) blockDependentsLocked(root string) []string {
	var blocked []string
	frontier := []string{root}
	seen := map[string]bool{root: true}
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		for _, e := range d.sortedLocked() {
			if seen[e.task.ID] || !slices.Contains(e.task.Dependencies, id) {
				continue
			}
			seen[e.task.ID] = true
			if e.status != domain.TaskStatusPending {
				continue
			}
			if err := d.transitionLocked(e, domain.TaskStatusBlocked, "prerequisite "+root+" did not complete"); err == nil {
				e.blockedBy = root
				blocked = append(blocked, e.task.ID)
				frontier = append(frontier, e.task.ID)
			}
		}
	}
	return blocked
}

// sortedLocked returns tasks in submission order.
func (d *Driver) sortedLocked() []*entry {
	out := make([]*entry, 0, len(d.tasks))
	for _, e := range d.tasks {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// broadcastLocked wakes every goroutine waiting for a state change.
func (d *Driver) broadcastLocked() {
	close(d.changed)
	d.changed = make(chan struct{})
}

// Task returns a view of one task.
func (d *Driver) Task(id string) (TaskInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.tasks[id]
	if !ok {
		return TaskInfo{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return e.info(), nil
}

// Tasks returns every task in submission order.
func (d *Driver) Tasks() []TaskInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := d.sortedLocked()
	out := make([]TaskInfo, len(entries))
	for i, e := range entries {
		out[i] = e.info()
	}
	return out
}

// Status counts tasks per status.
func (d *Driver) Status() map[domain.TaskStatus]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[domain.TaskStatus]int)
	for _, e := range d.tasks {
		out[e.status]++
	}
	return out
}
