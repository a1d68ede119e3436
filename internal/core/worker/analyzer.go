// Package worker holds the engine's background loops.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HR-AR/Project-Conductor-sub000/internal/infra/storage"
	"github.com/HR-AR/Project-Conductor-sub000/internal/learning/lessons"
)

// PatternAnalyzer runs one learning pass.
type PatternAnalyzer interface {
	AnalyzePatterns(ctx context.Context) (*lessons.Report, error)
}

// Analyzer periodically mines execution history for lessons and persists
// the agent performance profiles computed by each pass.
type Analyzer struct {
	learning PatternAnalyzer
	profiles storage.ProfileRepository
	interval time.Duration
}

func NewAnalyzer(learning PatternAnalyzer, profiles storage.ProfileRepository, interval time.Duration) *Analyzer {
	return &Analyzer{
		learning: learning,
		profiles: profiles,
		interval: interval,
	}
}

// Start runs a pass immediately and then every interval until ctx is done.
// A non-positive interval disables the loop.
func (a *Analyzer) Start(ctx context.Context) {
	if a.interval <= 0 {
		return
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.run(ctx)
		}
	}
}

func (a *Analyzer) run(ctx context.Context) {
	if _, err := a.RunOnce(ctx); err != nil && ctx.Err() == nil {
		slog.Error("Pattern analysis failed", "error", err)
	}
}

// RunOnce analyzes patterns and replaces the stored profiles.
func (a *Analyzer) RunOnce(ctx context.Context) (*lessons.Report, error) {
	report, err := a.learning.AnalyzePatterns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze patterns: %w", err)
	}

	if a.profiles != nil {
		if err := a.profiles.ReplaceAll(ctx, report.Profiles); err != nil {
			return report, fmt.Errorf("failed to store profiles: %w", err)
		}
		slog.Debug("Profiles stored", "profiles", len(report.Profiles))
	}
	return report, nil
}
