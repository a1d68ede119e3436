// Package control wires the conductor's components into a runnable engine.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/config"
	"github.com/HR-AR/Project-Conductor-sub000/internal/core/worker"
	redisclient "github.com/HR-AR/Project-Conductor-sub000/internal/infra/redis"
	"github.com/HR-AR/Project-Conductor-sub000/internal/infra/storage"
	"github.com/HR-AR/Project-Conductor-sub000/internal/infra/storage/memory"
	"github.com/HR-AR/Project-Conductor-sub000/internal/infra/storage/postgres"
	"github.com/HR-AR/Project-Conductor-sub000/internal/learning/analytics"
	"github.com/HR-AR/Project-Conductor-sub000/internal/learning/lessons"
	"github.com/HR-AR/Project-Conductor-sub000/internal/learning/recorder"
	"github.com/HR-AR/Project-Conductor-sub000/internal/orchestration/driver"
	"github.com/HR-AR/Project-Conductor-sub000/internal/orchestration/emitter"
	"github.com/HR-AR/Project-Conductor-sub000/internal/orchestration/health"
	"github.com/HR-AR/Project-Conductor-sub000/internal/resilience/breaker"
	"github.com/HR-AR/Project-Conductor-sub000/internal/resilience/checkpoint"
	"github.com/HR-AR/Project-Conductor-sub000/internal/resilience/retry"
)

var ErrAlreadyStarted = errors.New("engine already started")

// Engine owns every long-lived component: storage, resilience, learning,
// the driver and the operator server.
type Engine struct {
	cfg config.AppConfig

	db    *postgres.DB
	redis *redisclient.Client

	records  storage.RecordRepository
	lessons  storage.LessonRepository
	profiles storage.ProfileRepository

	breakers    *breaker.Registry
	executor    *retry.Executor
	checkpoints *checkpoint.Store
	analytics   *analytics.Engine
	learning    *lessons.Engine
	sink        emitter.Sink
	driver      *driver.Driver

	analyzer *worker.Analyzer
	pruner   *worker.Pruner
	monitor  *health.Monitor
	server   *health.Server

	cancel context.CancelFunc
	group  *errgroup.Group
}

type Option func(*engineOptions)

type engineOptions struct {
	sinks []emitter.Sink
	state driver.StateHolder
}

// WithSink adds an event sink next to the log sink and redis publisher.
func WithSink(s emitter.Sink) Option {
	return func(o *engineOptions) { o.sinks = append(o.sinks, s) }
}

// WithState replaces the driver's default SharedState.
func WithState(s driver.StateHolder) Option {
	return func(o *engineOptions) { o.state = s }
}

// NewEngine connects storage and builds every component. An empty
// database URL selects the in-memory store; an empty redis URL disables
// the checkpoint mirror and the event publisher. A non-positive server
// port disables the operator server.
func NewEngine(ctx context.Context, cfg config.AppConfig, opts ...Option) (*Engine, error) {
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{cfg: cfg}

	// 1. Storage
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := postgres.Migrate(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		e.db = db
		e.records = postgres.NewRecordRepo(db)
		e.lessons = postgres.NewLessonRepo(db)
		e.profiles = postgres.NewProfileRepo(db)
		slog.Info("Using PostgreSQL storage", "driver", cfg.Database.Driver)
	} else {
		store := memory.NewMemoryStorage()
		e.records = memory.NewRecordRepo(store)
		e.lessons = memory.NewLessonRepo(store)
		e.profiles = memory.NewProfileRepo(store)
		slog.Info("Using Memory storage")
	}

	// 2. Redis
	sinks := []emitter.Sink{emitter.NewLogSink(slog.LevelInfo)}
	var mirror checkpoint.Mirror
	var cpMirror *redisclient.CheckpointMirror
	if cfg.Redis.Enabled() {
		client, err := redisclient.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, mirror and publisher disabled", "error", err)
		} else {
			e.redis = client
			cpMirror = redisclient.NewCheckpointMirror(client, cfg.Redis.CheckpointTTL)
			mirror = cpMirror
			sinks = append(sinks, redisclient.NewEventPublisher(client, cfg.Redis.EventChannel))
			slog.Info("Redis enabled", "channel", cfg.Redis.EventChannel)
		}
	}
	sinks = append(sinks, o.sinks...)
	e.sink = emitter.NewMulti(sinks...)

	// 3. Resilience
	e.breakers = breaker.NewRegistry(cfg.CircuitBreaker, nil)
	e.executor = retry.NewExecutor(e.breakers, cfg.Retry)
	e.checkpoints = checkpoint.NewStore(cfg.Checkpoint, mirror)
	if cpMirror != nil {
		recent, err := cpMirror.LoadRecent(ctx, e.checkpoints.Capacity())
		if err != nil {
			slog.Warn("Failed to preload checkpoints", "error", err)
		} else {
			e.checkpoints.Preload(recent)
			slog.Info("Preloaded checkpoints", "count", len(recent))
		}
	}

	// 4. Learning
	e.analytics = analytics.New(e.records, cfg.Analytics)
	e.learning = lessons.NewEngine(e.analytics, e.lessons, cfg.Learning,
		lessons.WithMinConfidence(cfg.Orchestration.MinConfidence),
		lessons.WithProfiles(e.profiles),
	)

	// 5. Driver
	e.driver = driver.New(cfg.Orchestration, driver.Deps{
		Executor:    e.executor,
		Breakers:    e.breakers,
		Checkpoints: e.checkpoints,
		Recorder:    recorder.New(e.records),
		Learning:    e.learning,
		Sink:        e.sink,
		State:       o.state,
	})

	// 6. Workers
	e.analyzer = worker.NewAnalyzer(e.learning, e.profiles, cfg.Learning.AnalysisInterval)
	if cfg.Retention.Records > 0 {
		e.pruner = worker.NewPruner(e.records, cfg.Retention.Records, cfg.Retention.PruneInterval)
	}

	// 7. Health
	monitorOpts := []health.MonitorOption{}
	if e.db != nil {
		monitorOpts = append(monitorOpts, health.WithProbe("database", e.db))
	}
	if e.redis != nil {
		monitorOpts = append(monitorOpts, health.WithProbe("redis", e.redis))
	}
	e.monitor = health.NewMonitor(e.breakers, e.driver, monitorOpts...)
	if cfg.Server.Port > 0 {
		e.server = health.NewServer(e.monitor, health.API{
			Tasks:    e.driver,
			Breakers: e.breakers,
			Lessons:  e.learning,
		}, cfg.Server.Port)
	}

	return e, nil
}

// Start launches the driver, the background workers and the operator
// server. It does not block; use Wait or Stop.
func (e *Engine) Start(ctx context.Context) error {
	if e.group != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	e.cancel = cancel
	e.group = g

	if e.db != nil {
		e.db.StartMetricsCollector(gctx)
	}

	g.Go(func() error {
		if err := e.driver.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("driver stopped: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		e.analyzer.Start(gctx)
		return nil
	})

	if e.pruner != nil {
		g.Go(func() error {
			e.pruner.Start(gctx)
			return nil
		})
	}

	if e.server != nil {
		g.Go(e.server.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return e.server.Stop(shutdownCtx)
		})
	}

	slog.Info("Engine started",
		"learning", e.cfg.Orchestration.EnableLearning,
		"auto_optimize", e.cfg.Orchestration.AutoOptimize,
		"max_concurrent_tasks", e.cfg.Orchestration.Concurrency(),
	)
	return nil
}

// Wait blocks until every component started by Start has returned.
func (e *Engine) Wait() error {
	if e.group == nil {
		return nil
	}
	return e.group.Wait()
}

// Stop cancels running components, waits for them and releases
// connections. In-flight tasks observe cancellation and settle as
// Cancelled.
func (e *Engine) Stop(ctx context.Context) error {
	slog.Info("Stopping engine...")

	var errs []error
	if e.cancel != nil {
		e.cancel()
		done := make(chan error, 1)
		go func() { done <- e.group.Wait() }()
		select {
		case err := <-done:
			errs = append(errs, err)
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("timed out waiting for components: %w", ctx.Err()))
		}
	}

	if err := e.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close sinks: %w", err))
	}
	if e.redis != nil {
		if err := e.redis.Close(); err != nil {
			slog.Warn("Failed to close Redis", "error", err)
		}
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close db: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) Driver() *driver.Driver {
	return e.driver
}

func (e *Engine) Learning() *lessons.Engine {
	return e.learning
}

func (e *Engine) Analytics() *analytics.Engine {
	return e.analytics
}

func (e *Engine) Analyzer() *worker.Analyzer {
	return e.analyzer
}

func (e *Engine) Profiles() storage.ProfileRepository {
	return e.profiles
}

func (e *Engine) Breakers() *breaker.Registry {
	return e.breakers
}

func (e *Engine) Executor() *retry.Executor {
	return e.executor
}

func (e *Engine) Checkpoints() *checkpoint.Store {
	return e.checkpoints
}

func (e *Engine) Monitor() *health.Monitor {
	return e.monitor
}
