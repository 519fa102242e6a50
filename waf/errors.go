package waf

import (
	"errors"
	"fmt"
)

// ConfigError reports a problem with stored configuration: an unresolvable
// rule reference, a cyclic compound reference, or a malformed expression.
// The affected rule is treated as non-matching.
type ConfigError struct {
	RuleId string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in rule %s: %v", e.RuleId, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError wraps err as a ConfigError for the given rule.
func NewConfigError(ruleId string, format string, args ...interface{}) *ConfigError {
	return &ConfigError{RuleId: ruleId, Err: fmt.Errorf(format, args...)}
}

// EvaluationError reports a runtime failure while evaluating a rule, such as
// a regex that fails to compile. The affected rule fails open.
type EvaluationError struct {
	RuleId string
	Err    error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation error in rule %s: %v", e.RuleId, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// DependencyError reports an external collaborator failure, such as a
// geolocation lookup timeout. The operator that needed it fails open.
type DependencyError struct {
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency %s failed: %v", e.Dependency, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
