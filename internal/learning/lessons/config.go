package lessons

import "time"

// Config holds the detector thresholds of the learning engine.
type Config struct {
	AnalysisInterval         time.Duration `yaml:"analysis_interval"`
	AgentSuccessThreshold    float64       `yaml:"agent_success_threshold"`
	SequenceSuccessThreshold float64       `yaml:"sequence_success_threshold"`
	MinSequenceSamples       int           `yaml:"min_sequence_samples"`
	TimeDeviationThreshold   float64       `yaml:"time_deviation_threshold"`
	ErrorMinOccurrences      int           `yaml:"error_min_occurrences"`
	ParallelWindow           time.Duration `yaml:"parallel_window"`
	ParallelMinCooccurrence  int           `yaml:"parallel_min_cooccurrence"`
	EffectivenessAlpha       float64       `yaml:"effectiveness_alpha"`
}

func DefaultConfig() Config {
	return Config{
		AnalysisInterval:         10 * time.Minute,
		AgentSuccessThreshold:    0.8,
		SequenceSuccessThreshold: 0.85,
		MinSequenceSamples:       3,
		TimeDeviationThreshold:   0.2,
		ErrorMinOccurrences:      3,
		ParallelWindow:           60 * time.Second,
		ParallelMinCooccurrence:  5,
		EffectivenessAlpha:       0.2,
	}
}

// InitialEffectiveness is assigned to newly created lessons.
const InitialEffectiveness = 0.5
