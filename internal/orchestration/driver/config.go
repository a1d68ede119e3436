package driver

// Config holds the orchestration options recognized by the driver.
type Config struct {
	EnableLearning           bool    `yaml:"enable_learning"`
	AutoOptimize             bool    `yaml:"auto_optimize"`
	MinConfidence            float64 `yaml:"min_confidence"`
	ParallelExecutionEnabled bool    `yaml:"parallel_execution_enabled"`
	MaxConcurrentTasks       int     `yaml:"max_concurrent_tasks"`
	// MaxAutoRollbacks caps automatic rollback cycles per task; further
	// rollback-classified failures escalate to fatal.
	MaxAutoRollbacks int `yaml:"max_auto_rollbacks"`
}

func DefaultConfig() Config {
	return Config{
		EnableLearning:           true,
		AutoOptimize:             false,
		MinConfidence:            0.6,
		ParallelExecutionEnabled: true,
		MaxConcurrentTasks:       4,
		MaxAutoRollbacks:         1,
	}
}

// Concurrency is the effective number of tasks allowed to run at once.
func (c Config) Concurrency() int {
	if !c.ParallelExecutionEnabled || c.MaxConcurrentTasks < 1 {
		return 1
	}
	return c.MaxConcurrentTasks
}
