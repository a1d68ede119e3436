package lessons

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/learning/analytics"
)

// detector turns a snapshot into candidate lessons. Candidates carry no ID;
// the repository deduplicates them by (Type, PatternHash).
type detector func(s *analytics.Snapshot, cfg Config) []*domain.Lesson

var detectors = []struct {
	name string
	fn   detector
}{
	{"agent_selection", detectAgentSelection},
	{"task_ordering", detectTaskOrdering},
	{"time_estimation", detectTimeEstimation},
	{"error_prevention", detectErrorPrevention},
	{"parallelization", detectParallelization},
}

func newLesson(t domain.LessonType, hash, agentType, taskType string, payload any, confidence float64) *domain.Lesson {
	data, err := json.Marshal(payload)
	if err != nil {
		// payload types always marshal
		panic(fmt.Sprintf("lesson payload: %v", err))
	}
	return &domain.Lesson{
		Type:          t,
		PatternHash:   hash,
		AgentType:     agentType,
		TaskType:      taskType,
		Payload:       data,
		Confidence:    clamp01(confidence),
		Effectiveness: InitialEffectiveness,
	}
}

func detectAgentSelection(s *analytics.Snapshot, cfg Config) []*domain.Lesson {
	var out []*domain.Lesson
	for _, taskType := range s.TaskTypes() {
		var top *analytics.AgentRate
		alternatives := make(map[string]float64)
		for _, ar := range s.AgentRates(taskType) {
			if !ar.Sufficient {
				continue
			}
			if top == nil {
				top = &ar
				continue
			}
			alternatives[ar.AgentType] = ar.Rate.Rate
		}
		if top == nil || top.Rate.Rate < cfg.AgentSuccessThreshold {
			continue
		}

		payload := domain.AgentSelectionPayload{
			TaskType:    taskType,
			Agent:       top.AgentType,
			SuccessRate: top.Rate.Rate,
			Samples:     top.Samples,
		}
		if len(alternatives) > 0 {
			payload.Alternatives = alternatives
		}
		out = append(out, newLesson(
			domain.LessonAgentSelection,
			domain.PatternHash(domain.LessonAgentSelection, taskType),
			top.AgentType, taskType, payload, top.Rate.Rate,
		))
	}
	return out
}

// detectTaskOrdering groups records by goal run and scores the task-type
// sequence each run followed. A run succeeds when none of its decisive
// records failed. Records without a goal are ignored.
func detectTaskOrdering(s *analytics.Snapshot, cfg Config) []*domain.Lesson {
	type goal struct {
		sequence  []string
		decisive  int
		succeeded bool
	}
	goals := make(map[string]*goal)
	var goalOrder []string
	for _, r := range s.Records {
		if r.GoalHash == "" {
			continue
		}
		key := r.GoalHash + "/" + r.RunID
		g, ok := goals[key]
		if !ok {
			g = &goal{succeeded: true}
			goals[key] = g
			goalOrder = append(goalOrder, key)
		}
		if n := len(g.sequence); n == 0 || g.sequence[n-1] != r.TaskType {
			g.sequence = append(g.sequence, r.TaskType)
		}
		if r.Decisive() {
			g.decisive++
			if !r.Succeeded() {
				g.succeeded = false
			}
		}
	}

	type seqStat struct {
		sequence  []string
		goals     int
		successes int
	}
	stats := make(map[string]*seqStat)
	var keys []string
	for _, h := range goalOrder {
		g := goals[h]
		if len(g.sequence) < 2 || g.decisive == 0 {
			continue
		}
		key := strings.Join(g.sequence, "\x00")
		st, ok := stats[key]
		if !ok {
			st = &seqStat{sequence: g.sequence}
			stats[key] = st
			keys = append(keys, key)
		}
		st.goals++
		if g.succeeded {
			st.successes++
		}
	}

	var out []*domain.Lesson
	for _, key := range keys {
		st := stats[key]
		if st.goals < cfg.MinSequenceSamples {
			continue
		}
		rate := float64(st.successes) / float64(st.goals)
		if rate < cfg.SequenceSuccessThreshold {
			continue
		}
		out = append(out, newLesson(
			domain.LessonTaskOrdering,
			domain.PatternHash(domain.LessonTaskOrdering, st.sequence...),
			"", "",
			domain.TaskOrderingPayload{Sequence: st.sequence, SuccessRate: rate, Goals: st.goals},
			rate,
		))
	}
	return out
}

// detectTimeEstimation flags pairs whose mean actual/estimated ratio is off
// by the deviation threshold or more. Confidence falls as the ratios
// scatter.
func detectTimeEstimation(s *analytics.Snapshot, cfg Config) []*domain.Lesson {
	var out []*domain.Lesson
	for _, acc := range s.TimeEstimationAccuracy() {
		if !acc.Sufficient || acc.Deviation() < cfg.TimeDeviationThreshold {
			continue
		}
		out = append(out, newLesson(
			domain.LessonTimeEstimation,
			domain.PatternHash(domain.LessonTimeEstimation, acc.AgentType, acc.TaskType),
			acc.AgentType, acc.TaskType,
			domain.TimeEstimationPayload{
				AgentType:         acc.AgentType,
				TaskType:          acc.TaskType,
				Ratio:             acc.Ratio,
				CorrectedEstimate: acc.Median,
				P95:               acc.P95,
				Samples:           acc.Samples,
			},
			1-acc.Spread,
		))
	}
	return out
}

// detectErrorPrevention emits one lesson per recurring failure signature.
// Confidence is the share of the task type's failures the signature covers.
func detectErrorPrevention(s *analytics.Snapshot, cfg Config) []*domain.Lesson {
	var out []*domain.Lesson
	for _, taskType := range s.TaskTypes() {
		failures := s.SuccessRate("", taskType).Failures
		if failures == 0 {
			continue
		}
		for _, sig := range s.CommonFailureSignatures(taskType) {
			if sig.Count < cfg.ErrorMinOccurrences {
				break
			}
			out = append(out, newLesson(
				domain.LessonErrorPrevention,
				domain.PatternHash(domain.LessonErrorPrevention, taskType, sig.Signature),
				"", taskType,
				domain.ErrorPreventionPayload{
					TaskType:     taskType,
					Signature:    sig.Signature,
					Category:     sig.Category,
					Occurrences:  sig.Count,
					Precondition: precondition(sig.Category),
				},
				float64(sig.Count)/float64(failures),
			))
		}
	}
	return out
}

func precondition(c domain.ErrorCategory) string {
	switch c {
	case domain.CategoryNetworkTimeout, domain.CategoryNetworkError, domain.CategoryServiceUnavailable:
		return "check upstream service health before scheduling"
	case domain.CategoryRateLimit:
		return "check remaining rate-limit budget before scheduling"
	case domain.CategoryResourceLock, domain.CategoryConcurrentModification:
		return "ensure no concurrent task holds the target resource"
	case domain.CategoryDependencyFailure:
		return "verify upstream dependencies completed successfully"
	case domain.CategoryValidationError:
		return "validate task inputs before scheduling"
	case domain.CategoryPermissionDenied:
		return "verify the agent has the required permissions"
	case domain.CategoryConfigurationError:
		return "verify required configuration is present"
	case domain.CategoryNotFound:
		return "verify referenced resources exist"
	case domain.CategorySyntaxError:
		return "lint generated artifacts before execution"
	case domain.CategoryOutOfMemory:
		return "check available memory before scheduling"
	case domain.CategorySecurityVulnerability:
		return "run a dependency vulnerability scan before scheduling"
	case domain.CategoryBusinessRule, domain.CategoryPolicyViolation:
		return "confirm the change is approved under current policy"
	case domain.CategoryDataIntegrity:
		return "verify data consistency before scheduling"
	default:
		return "review recent failures of this task type before scheduling"
	}
}

// detectParallelization counts pairs of different task types that started
// within the window of each other. Pairs ever linked by a declared
// dependency are excluded.
func detectParallelization(s *analytics.Snapshot, cfg Config) []*domain.Lesson {
	type pairStat struct {
		count     int
		successes int
	}
	pairs := make(map[[2]string]*pairStat)
	dependent := make(map[[2]string]bool)

	recs := s.Records
	for i, a := range recs {
		for j := i + 1; j < len(recs); j++ {
			b := recs[j]
			if b.StartedAt.Sub(a.StartedAt) > cfg.ParallelWindow {
				break
			}
			if a.TaskType == b.TaskType {
				continue
			}
			key := orderedPair(a.TaskType, b.TaskType)
			if slices.Contains(a.Dependencies, b.TaskID) || slices.Contains(b.Dependencies, a.TaskID) {
				dependent[key] = true
				continue
			}
			st, ok := pairs[key]
			if !ok {
				st = &pairStat{}
				pairs[key] = st
			}
			st.count++
			if a.Succeeded() && b.Succeeded() {
				st.successes++
			}
		}
	}

	keys := make([][2]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(x, y [2]string) int {
		if c := strings.Compare(x[0], y[0]); c != 0 {
			return c
		}
		return strings.Compare(x[1], y[1])
	})

	var out []*domain.Lesson
	for _, key := range keys {
		st := pairs[key]
		if dependent[key] || st.count < cfg.ParallelMinCooccurrence {
			continue
		}
		rate := float64(st.successes) / float64(st.count)
		out = append(out, newLesson(
			domain.LessonParallelization,
			domain.PatternHash(domain.LessonParallelization, key[0], key[1]),
			"", "",
			domain.ParallelizationPayload{TaskTypes: key, Cooccurrence: st.count, SuccessRate: rate},
			rate,
		))
	}
	return out
}

func orderedPair(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
