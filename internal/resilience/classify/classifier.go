package classify

import (
	"errors"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
)

// Coder is implemented by errors that carry a machine-readable code
// (errno names, HTTP statuses, vendor codes).
type Coder interface {
	Code() string
}

// Classifier maps errors to classifications through an ordered pattern
// table. It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	rules []rule
}

// Rule is a caller-supplied table entry. Rules given to New are evaluated
// before the built-in table.
type Rule struct {
	Pattern        string
	Type           domain.ErrorType
	Category       domain.ErrorCategory
	Severity       domain.Severity
	RecoveryAction domain.RecoveryAction
}

// New returns a classifier with extra rules ahead of the default table.
func New(extra ...Rule) *Classifier {
	rules := make([]rule, 0, len(extra)+len(defaultRules))
	for _, e := range extra {
		rules = append(rules, r(e.Pattern, e.Type, e.Category, e.Severity, e.RecoveryAction))
	}
	rules = append(rules, defaultRules...)
	return &Classifier{rules: rules}
}

var std = New()

// Classify uses the default table.
func Classify(err error) domain.ErrorClassification {
	return std.Classify(err)
}

// Classify returns the classification of the first matching rule, or
// Retriable/Unknown/Medium when nothing matches.
func (c *Classifier) Classify(err error) domain.ErrorClassification {
	if err == nil {
		return unknown
	}

	msg := err.Error()
	text := msg
	var coder Coder
	if errors.As(err, &coder) && coder.Code() != "" {
		text = coder.Code() + " " + msg
	}

	for _, rl := range c.rules {
		if rl.re.MatchString(text) {
			return domain.ErrorClassification{
				Type:           rl.typ,
				Category:       rl.category,
				Severity:       rl.severity,
				RecoveryAction: rl.recoveryAction,
				Pattern:        rl.re.String(),
				Message:        msg,
			}
		}
	}

	out := unknown
	out.Message = msg
	return out
}

// Len reports the number of rules in the table.
func (c *Classifier) Len() int {
	return len(c.rules)
}
