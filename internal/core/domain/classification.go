package domain

// ErrorType is the coarse failure class that drives retry policy.
type ErrorType string

const (
	ErrorTypeTransient ErrorType = "transient"
	ErrorTypeRetriable ErrorType = "retriable"
	ErrorTypeFatal     ErrorType = "fatal"
	ErrorTypeConflict  ErrorType = "conflict"
)

type ErrorCategory string

const (
	// Transient
	CategoryNetworkTimeout     ErrorCategory = "network_timeout"
	CategoryRateLimit          ErrorCategory = "rate_limit"
	CategoryServiceUnavailable ErrorCategory = "service_unavailable"
	CategoryNetworkError       ErrorCategory = "network_error"

	// Retriable
	CategoryResourceLock           ErrorCategory = "resource_lock"
	CategoryDependencyFailure      ErrorCategory = "dependency_failure"
	CategoryValidationError        ErrorCategory = "validation_error"
	CategoryConcurrentModification ErrorCategory = "concurrent_modification"
	CategoryUnknown                ErrorCategory = "unknown"

	// Fatal
	CategoryPermissionDenied   ErrorCategory = "permission_denied"
	CategoryConfigurationError ErrorCategory = "configuration_error"
	CategoryNotFound           ErrorCategory = "not_found"
	CategorySyntaxError        ErrorCategory = "syntax_error"
	CategoryOutOfMemory        ErrorCategory = "out_of_memory"

	// Conflict
	CategorySecurityVulnerability ErrorCategory = "security_vulnerability"
	CategoryBusinessRule          ErrorCategory = "business_rule_violation"
	CategoryDataIntegrity         ErrorCategory = "data_integrity"
	CategoryPolicyViolation       ErrorCategory = "policy_violation"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RecoveryAction tells the executor and driver what to do with a failure.
type RecoveryAction string

const (
	ActionRetry            RecoveryAction = "retry"
	ActionRetryWithBackoff RecoveryAction = "retry_with_backoff"
	ActionFailImmediately  RecoveryAction = "fail_immediately"
	ActionPauseWorkflow    RecoveryAction = "pause_workflow"
	ActionCircuitBreak     RecoveryAction = "circuit_break"
	ActionRollback         RecoveryAction = "rollback"
)

// ErrorClassification is computed per error and only ever embedded in
// records and events.
type ErrorClassification struct {
	Type           ErrorType      `json:"type"`
	Category       ErrorCategory  `json:"category"`
	Severity       Severity       `json:"severity"`
	RecoveryAction RecoveryAction `json:"recoveryAction"`
	// Pattern is the table entry that matched, empty for the default.
	Pattern string `json:"pattern,omitempty"`
	Message string `json:"message,omitempty"`
}

// ShouldRetry reports whether the action allows another attempt.
func (c ErrorClassification) ShouldRetry() bool {
	return c.RecoveryAction == ActionRetry || c.RecoveryAction == ActionRetryWithBackoff
}
