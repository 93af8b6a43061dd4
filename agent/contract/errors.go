package contract

import (
	"errors"
	"fmt"
)

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")

	ErrRoutingAmbiguity = errors.New("routing selected an undeclared handler")
	ErrAuthRequired     = errors.New("authentication required")
	ErrSafetyRejection  = errors.New("query rejected by safety gate")
	ErrStoreFailure     = errors.New("store failure")
	ErrStreamFailure    = errors.New("stream write failed")
)

// Rule identifies the gate check that rejected a statement.
type Rule string

const (
	RuleReadOnly      Rule = "read_only"
	RuleRelation      Rule = "relation"
	RuleDeniedColumn  Rule = "denied_column"
	RuleAllowedValue  Rule = "allowed_value"
	RuleIdentity      Rule = "identity"
	RuleLimit         Rule = "limit"
	RuleBindParameter Rule = "bind_parameter"
)

// SafetyRejection is returned when a generated statement violates a gate rule.
type SafetyRejection struct {
	Rule   Rule
	Reason string
}

func (e *SafetyRejection) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrSafetyRejection, e.Rule, e.Reason)
}

func (e *SafetyRejection) Is(target error) bool {
	return target == ErrSafetyRejection
}

// Reject builds a SafetyRejection with a formatted reason.
func Reject(rule Rule, format string, args ...any) *SafetyRejection {
	return &SafetyRejection{Rule: rule, Reason: fmt.Sprintf(format, args...)}
}

// StoreFailure hides the underlying store error from Error() so callers that
// surface the message to end users never leak driver detail.
type StoreFailure struct {
	Op  string
	err error
}

func NewStoreFailure(op string, err error) *StoreFailure {
	return &StoreFailure{Op: op, err: err}
}

func (e *StoreFailure) Error() string {
	return fmt.Sprintf("%s: %s", ErrStoreFailure, e.Op)
}

func (e *StoreFailure) Unwrap() error {
	return e.err
}

func (e *StoreFailure) Is(target error) bool {
	return target == ErrStoreFailure
}
