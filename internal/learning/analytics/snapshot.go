package analytics

import (
	"math"
	"slices"
	"sort"
	"time"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
)

// Rate is a success rate over decisive records (completed or failed).
type Rate struct {
	Successes  int     `json:"successes"`
	Failures   int     `json:"failures"`
	Samples    int     `json:"samples"`
	Rate       float64 `json:"rate"`
	Sufficient bool    `json:"sufficient"`
}

// Percentiles of actual durations of completed records, nearest-rank.
type Percentiles struct {
	P50     time.Duration `json:"p50"`
	P95     time.Duration `json:"p95"`
	P99     time.Duration `json:"p99"`
	Samples int           `json:"samples"`
}

// EstimationAccuracy compares actual to estimated durations for one
// (agentType, taskType).
type EstimationAccuracy struct {
	AgentType string `json:"agentType"`
	TaskType  string `json:"taskType"`
	Samples   int    `json:"samples"`
	// Ratio is the mean of actual/estimated; 1.0 means perfectly estimated.
	Ratio float64 `json:"ratio"`
	// Spread is the coefficient of variation of the ratios.
	Spread     float64       `json:"spread"`
	Median     time.Duration `json:"median"`
	P95        time.Duration `json:"p95"`
	Sufficient bool          `json:"sufficient"`
}

// Deviation is |Ratio - 1|.
func (a EstimationAccuracy) Deviation() float64 {
	return math.Abs(a.Ratio - 1)
}

// AgentRate pairs an agent with its success rate on a task type.
type AgentRate struct {
	AgentType string `json:"agentType"`
	Rate
}

// Snapshot is an immutable set of records taken at one point in time.
type Snapshot struct {
	Records    []*domain.ExecutionRecord
	MinSamples int
	TakenAt    time.Time
}

// NewSnapshot wraps recs, which must be ordered by start time.
func NewSnapshot(recs []*domain.ExecutionRecord, minSamples int, takenAt time.Time) *Snapshot {
	if minSamples < 1 {
		minSamples = 1
	}
	return &Snapshot{Records: recs, MinSamples: minSamples, TakenAt: takenAt}
}

func (s *Snapshot) filter(agentType, taskType string) []*domain.ExecutionRecord {
	var out []*domain.ExecutionRecord
	for _, r := range s.Records {
		if agentType != "" && r.AgentType != agentType {
			continue
		}
		if taskType != "" && r.TaskType != taskType {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (s *Snapshot) rate(recs []*domain.ExecutionRecord) Rate {
	var r Rate
	for _, rec := range recs {
		switch {
		case rec.Succeeded():
			r.Successes++
		case rec.Decisive():
			r.Failures++
		}
	}
	r.Samples = r.Successes + r.Failures
	if r.Samples > 0 {
		r.Rate = float64(r.Successes) / float64(r.Samples)
	}
	r.Sufficient = r.Samples >= s.MinSamples
	return r
}

// SuccessRate over records matching agentType and taskType. An empty
// argument matches every value.
func (s *Snapshot) SuccessRate(agentType, taskType string) Rate {
	return s.rate(s.filter(agentType, taskType))
}

func (s *Snapshot) DurationPercentiles(agentType, taskType string) Percentiles {
	var ds []time.Duration
	for _, r := range s.filter(agentType, taskType) {
		if r.Succeeded() {
			ds = append(ds, r.ActualDuration)
		}
	}
	return percentiles(ds)
}

func percentiles(ds []time.Duration) Percentiles {
	if len(ds) == 0 {
		return Percentiles{}
	}
	sorted := slices.Clone(ds)
	slices.Sort(sorted)
	return Percentiles{
		P50:     nearestRank(sorted, 50),
		P95:     nearestRank(sorted, 95),
		P99:     nearestRank(sorted, 99),
		Samples: len(sorted),
	}
}

func nearestRank(sorted []time.Duration, p float64) time.Duration {
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

// CommonFailureSignatures groups failed records of taskType by normalized
// message, most frequent first. An empty taskType covers all task types.
func (s *Snapshot) CommonFailureSignatures(taskType string) []domain.FailureSignature {
	return failureSignatures(s.filter("", taskType))
}

func failureSignatures(recs []*domain.ExecutionRecord) []domain.FailureSignature {
	bySig := make(map[string]*domain.FailureSignature)
	var order []string
	for _, r := range recs {
		if r.Status != domain.TaskStatusFailed {
			continue
		}
		msg := r.ErrorMessage
		if msg == "" {
			msg = string(r.ErrorCategory)
		}
		sig := NormalizeSignature(msg)
		if sig == "" {
			continue
		}
		fs, ok := bySig[sig]
		if !ok {
			fs = &domain.FailureSignature{Signature: sig, Category: r.ErrorCategory, Example: r.ErrorMessage}
			bySig[sig] = fs
			order = append(order, sig)
		}
		fs.Count++
	}

	out := make([]domain.FailureSignature, 0, len(order))
	for _, sig := range order {
		out = append(out, *bySig[sig])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Signature < out[j].Signature
	})
	return out
}

// TimeEstimationAccuracy reports, per (agentType, taskType), how completed
// durations compare with their estimates. Records without an estimate are
// ignored.
func (s *Snapshot) TimeEstimationAccuracy() []EstimationAccuracy {
	type acc struct {
		ratios []float64
		actual []time.Duration
	}
	groups := make(map[[2]string]*acc)
	for _, r := range s.Records {
		if !r.Succeeded() || r.EstimatedDuration <= 0 {
			continue
		}
		key := [2]string{r.AgentType, r.TaskType}
		g, ok := groups[key]
		if !ok {
			g = &acc{}
			groups[key] = g
		}
		g.ratios = append(g.ratios, float64(r.ActualDuration)/float64(r.EstimatedDuration))
		g.actual = append(g.actual, r.ActualDuration)
	}

	out := make([]EstimationAccuracy, 0, len(groups))
	for key, g := range groups {
		mean, spread := meanAndSpread(g.ratios)
		p := percentiles(g.actual)
		out = append(out, EstimationAccuracy{
			AgentType:  key[0],
			TaskType:   key[1],
			Samples:    len(g.ratios),
			Ratio:      mean,
			Spread:     spread,
			Median:     p.P50,
			P95:        p.P95,
			Sufficient: len(g.ratios) >= s.MinSamples,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AgentType != out[j].AgentType {
			return out[i].AgentType < out[j].AgentType
		}
		return out[i].TaskType < out[j].TaskType
	})
	return out
}

// meanAndSpread returns the mean and the coefficient of variation.
func meanAndSpread(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if mean == 0 {
		return 0, 0
	}
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq/float64(len(xs))) / mean
}

// TaskTypes lists the distinct task types in the snapshot, sorted.
func (s *Snapshot) TaskTypes() []string {
	seen := make(map[string]struct{})
	for _, r := range s.Records {
		seen[r.TaskType] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// AgentRates ranks the agents that ran taskType by success rate, highest
// first. Ties break on sample count, then name.
func (s *Snapshot) AgentRates(taskType string) []AgentRate {
	byAgent := make(map[string][]*domain.ExecutionRecord)
	for _, r := range s.filter("", taskType) {
		byAgent[r.AgentType] = append(byAgent[r.AgentType], r)
	}

	out := make([]AgentRate, 0, len(byAgent))
	for agent, recs := range byAgent {
		rate := s.rate(recs)
		if rate.Samples == 0 {
			continue
		}
		out = append(out, AgentRate{AgentType: agent, Rate: rate})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rate.Rate != out[j].Rate.Rate {
			return out[i].Rate.Rate > out[j].Rate.Rate
		}
		if out[i].Samples != out[j].Samples {
			return out[i].Samples > out[j].Samples
		}
		return out[i].AgentType < out[j].AgentType
	})
	return out
}

// Profiles aggregates every (agentType, taskType) pair in the snapshot.
func (s *Snapshot) Profiles() []*domain.AgentPerformanceProfile {
	groups := make(map[[2]string][]*domain.ExecutionRecord)
	for _, r := range s.Records {
		key := [2]string{r.AgentType, r.TaskType}
		groups[key] = append(groups[key], r)
	}

	out := make([]*domain.AgentPerformanceProfile, 0, len(groups))
	for key, recs := range groups {
		rate := s.rate(recs)
		var ds []time.Duration
		for _, r := range recs {
			if r.Succeeded() {
				ds = append(ds, r.ActualDuration)
			}
		}
		p := percentiles(ds)
		sigs := failureSignatures(recs)
		if len(sigs) > 5 {
			sigs = sigs[:5]
		}
		out = append(out, &domain.AgentPerformanceProfile{
			AgentType:         key[0],
			TaskType:          key[1],
			Samples:           rate.Samples,
			SuccessRate:       rate.Rate,
			P50:               p.P50,
			P95:               p.P95,
			P99:               p.P99,
			FailureSignatures: sigs,
			ComputedAt:        s.TakenAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AgentType != out[j].AgentType {
			return out[i].AgentType < out[j].AgentType
		}
		return out[i].TaskType < out[j].TaskType
	})
	return out
}
