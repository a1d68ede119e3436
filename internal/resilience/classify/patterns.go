package classify

import (
	"regexp"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
)

type rule struct {
	re             *regexp.Regexp
	typ            domain.ErrorType
	category       domain.ErrorCategory
	severity       domain.Severity
	recoveryAction domain.RecoveryAction
}

func r(pattern string, typ domain.ErrorType, cat domain.ErrorCategory, sev domain.Severity, action domain.RecoveryAction) rule {
	return rule{
		re:             regexp.MustCompile("(?i)" + pattern),
		typ:            typ,
		category:       cat,
		severity:       sev,
		recoveryAction: action,
	}
}

const (
	transient = domain.ErrorTypeTransient
	retriable = domain.ErrorTypeRetriable
	fatal     = domain.ErrorTypeFatal
	conflict  = domain.ErrorTypeConflict
)

// defaultRules is evaluated top to bottom; the first match wins. Conflicts
// come first so a security finding is never downgraded to a retry, and
// locks precede transient network patterns so "lock wait timeout" is not
// mistaken for a network timeout.
var defaultRules = []rule{
	// Conflict: human intervention required.
	r(`\bCVE-\d{4}-\d{4,}\b`, conflict, domain.CategorySecurityVulnerability, domain.SeverityCritical, domain.ActionPauseWorkflow),
	r(`vulnerab`, conflict, domain.CategorySecurityVulnerability, domain.SeverityCritical, domain.ActionPauseWorkflow),
	r(`\bexploit`, conflict, domain.CategorySecurityVulnerability, domain.SeverityCritical, domain.ActionPauseWorkflow),
	r(`\bsecurity\b`, conflict, domain.CategorySecurityVulnerability, domain.SeverityCritical, domain.ActionPauseWorkflow),
	r(`malicious|malware|injection (attack|detected)|\bxss\b`, conflict, domain.CategorySecurityVulnerability, domain.SeverityCritical, domain.ActionPauseWorkflow),
	r(`data integrity|integrity check`, conflict, domain.CategoryDataIntegrity, domain.SeverityCritical, domain.ActionPauseWorkflow),
	r(`checksum mismatch|hash mismatch`, conflict, domain.CategoryDataIntegrity, domain.SeverityHigh, domain.ActionPauseWorkflow),
	r(`\bcorrupt(ed|ion)?\b`, conflict, domain.CategoryDataIntegrity, domain.SeverityCritical, domain.ActionPauseWorkflow),
	r(`violates (unique|foreign key|check) constraint|referential integrity`, conflict, domain.CategoryDataIntegrity, domain.SeverityHigh, domain.ActionPauseWorkflow),
	r(`policy violation|violates .*policy|denied by policy`, conflict, domain.CategoryPolicyViolation, domain.SeverityHigh, domain.ActionPauseWorkflow),
	r(`compliance|license violation`, conflict, domain.CategoryPolicyViolation, domain.SeverityHigh, domain.ActionPauseWorkflow),
	r(`business rule|rule violation|invariant violated`, conflict, domain.CategoryBusinessRule, domain.SeverityHigh, domain.ActionPauseWorkflow),
	r(`approval required|requires approval|insufficient (funds|balance)`, conflict, domain.CategoryBusinessRule, domain.SeverityHigh, domain.ActionPauseWorkflow),

	// Fatal: no retry.
	r(`out of memory|\bOOM\b|heap exhausted|memory limit exceeded`, fatal, domain.CategoryOutOfMemory, domain.SeverityCritical, domain.ActionCircuitBreak),
	r(`\bENOMEM\b|cannot allocate memory`, fatal, domain.CategoryOutOfMemory, domain.SeverityCritical, domain.ActionCircuitBreak),
	r(`permission denied|\bEACCES\b|\bEPERM\b`, fatal, domain.CategoryPermissionDenied, domain.SeverityCritical, domain.ActionFailImmediately),
	r(`\b401\b|unauthori[sz]ed`, fatal, domain.CategoryPermissionDenied, domain.SeverityCritical, domain.ActionFailImmediately),
	r(`\b403\b|forbidden|access denied`, fatal, domain.CategoryPermissionDenied, domain.SeverityCritical, domain.ActionFailImmediately),
	r(`invalid (api )?key|invalid token|authentication failed`, fatal, domain.CategoryPermissionDenied, domain.SeverityCritical, domain.ActionFailImmediately),
	r(`configuration error|misconfigur|invalid configuration`, fatal, domain.CategoryConfigurationError, domain.SeverityHigh, domain.ActionFailImmediately),
	r(`missing (required )?(config|configuration|setting|environment variable)`, fatal, domain.CategoryConfigurationError, domain.SeverityHigh, domain.ActionFailImmediately),
	r(`environment variable \S+ (is )?not set`, fatal, domain.CategoryConfigurationError, domain.SeverityHigh, domain.ActionFailImmediately),
	r(`\b404\b`, fatal, domain.CategoryNotFound, domain.SeverityHigh, domain.ActionFailImmediately),
	r(`not found|does not exist`, fatal, domain.CategoryNotFound, domain.SeverityHigh, domain.ActionFailImmediately),
	r(`\bENOENT\b|no such file or directory`, fatal, domain.CategoryNotFound, domain.SeverityHigh, domain.ActionFailImmediately),
	r(`syntax ?error|unexpected token|parse error`, fatal, domain.CategorySyntaxError, domain.SeverityHigh, domain.ActionFailImmediately),
	r(`compilation failed|cannot compile|undefined: \w+`, fatal, domain.CategorySyntaxError, domain.SeverityHigh, domain.ActionFailImmediately),

	// Retriable: contention.
	r(`deadlock`, retriable, domain.CategoryResourceLock, domain.SeverityMedium, domain.ActionRetryWithBackoff),
	r(`lock wait timeout|lock timeout|could not obtain lock`, retriable, domain.CategoryResourceLock, domain.SeverityMedium, domain.ActionRetryWithBackoff),
	r(`resource (is )?(locked|busy)|\bEBUSY\b`, retriable, domain.CategoryResourceLock, domain.SeverityMedium, domain.ActionRetryWithBackoff),
	r(`concurrent(ly)? modifi`, retriable, domain.CategoryConcurrentModification, domain.SeverityMedium, domain.ActionRollback),
	r(`stale (write|object|version|state)|version mismatch|optimistic lock`, retriable, domain.CategoryConcurrentModification, domain.SeverityMedium, domain.ActionRollback),
	r(`\b409\b|merge conflict|write conflict`, retriable, domain.CategoryConcurrentModification, domain.SeverityMedium, domain.ActionRollback),

	// Transient: bounded automatic retry.
	r(`rate.?limit`, transient, domain.CategoryRateLimit, domain.SeverityMedium, domain.ActionRetryWithBackoff),
	r(`too many requests|\b429\b`, transient, domain.CategoryRateLimit, domain.SeverityMedium, domain.ActionRetryWithBackoff),
	r(`throttl|quota exceeded`, transient, domain.CategoryRateLimit, domain.SeverityMedium, domain.ActionRetryWithBackoff),
	r(`service unavailable|\b503\b`, transient, domain.CategoryServiceUnavailable, domain.SeverityMedium, domain.ActionRetryWithBackoff),
	r(`bad gateway|gateway timeout|\b502\b|\b504\b`, transient, domain.CategoryServiceUnavailable, domain.SeverityMedium, domain.ActionRetryWithBackoff),
	r(`temporarily unavailable|try again later|overloaded|\bEAGAIN\b`, transient, domain.CategoryServiceUnavailable, domain.SeverityMedium, domain.ActionRetryWithBackoff),
	r(`timeout|timed out|\bETIMEDOUT\b|deadline exceeded`, transient, domain.CategoryNetworkTimeout, domain.SeverityLow, domain.ActionRetryWithBackoff),
	r(`\bECONNRESET\b|connection reset`, transient, domain.CategoryNetworkError, domain.SeverityLow, domain.ActionRetryWithBackoff),
	r(`\bECONNREFUSED\b|connection refused`, transient, domain.CategoryNetworkError, domain.SeverityMedium, domain.ActionRetryWithBackoff),
	r(`\bEPIPE\b|broken pipe|unexpected EOF`, transient, domain.CategoryNetworkError, domain.SeverityLow, domain.ActionRetryWithBackoff),
	r(`network is unreachable|\bENETUNREACH\b|\bEHOSTUNREACH\b|no such host|\bENOTFOUND\b`, transient, domain.CategoryNetworkError, domain.SeverityMedium, domain.ActionRetryWithBackoff),

	// Retriable: may succeed once inputs or prerequisites change.
	r(`dependency (failed|failure|unavailable)|upstream .*failed|prerequisite`, retriable, domain.CategoryDependencyFailure, domain.SeverityMedium, domain.ActionRetryWithBackoff),
	r(`validation (failed|error)|schema mismatch|\b422\b`, retriable, domain.CategoryValidationError, domain.SeverityMedium, domain.ActionRetry),
	r(`invalid (input|argument|parameter|request)|\b400\b`, retriable, domain.CategoryValidationError, domain.SeverityMedium, domain.ActionRetry),
}

var unknown = domain.ErrorClassification{
	Type:           domain.ErrorTypeRetriable,
	Category:       domain.CategoryUnknown,
	Severity:       domain.SeverityMedium,
	RecoveryAction: domain.ActionRetryWithBackoff,
}
