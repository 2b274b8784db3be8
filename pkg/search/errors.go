package search

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinels matched with errors.Is against the typed errors below.
var (
	ErrValidation       = errors.New("validation failed")
	ErrStrategyNotFound = errors.New("strategy not found")
	ErrCircuitOpen      = errors.New("circuit breaker open")
	ErrTimeout          = errors.New("strategy timed out")
)

// Severity grades a strategy failure.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from low (0) to critical (3).
func (s Severity) Rank() int {
	switch s {
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// ValidationError reports malformed input. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError formats a ValidationError.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StrategyError wraps a strategy failure with its classification.
type StrategyError struct {
	Strategy    string
	Operation   string
	Severity    Severity
	Recoverable bool
	Err         error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy %s: %s failed: %v", e.Strategy, e.Operation, e.Err)
}

func (e *StrategyError) Unwrap() error { return e.Err }

// TimeoutError reports a strategy exceeding its configured deadline.
type TimeoutError struct {
	Strategy string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("strategy %s timed out after %s", e.Strategy, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout || target == context.DeadlineExceeded
}

// ConfigurationError reports a schema or range violation.
type ConfigurationError struct {
	Strategy string
	Field    string
	Message  string
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Strategy != "" && e.Field != "":
		return fmt.Sprintf("invalid configuration for %s: %s: %s", e.Strategy, e.Field, e.Message)
	case e.Strategy != "":
		return fmt.Sprintf("invalid configuration for %s: %s", e.Strategy, e.Message)
	default:
		return "invalid configuration: " + e.Message
	}
}

// BackendError wraps a failure returned by the memory store.
type BackendError struct {
	Op  string
	Err error
}

// WrapBackend wraps err unless it is nil or already classified.
func WrapBackend(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &BackendError{Op: op, Err: err}
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// CircuitOpenError is returned without invoking a strategy whose breaker
// is open.
type CircuitOpenError struct {
	Strategy string
	RetryAt  time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for strategy %s until %s", e.Strategy, e.RetryAt.Format(time.RFC3339))
}

func (e *CircuitOpenError) Is(target error) bool { return target == ErrCircuitOpen }

// StrategyNotFoundError reports an unknown strategy name.
type StrategyNotFoundError struct {
	Name string
}

func (e *StrategyNotFoundError) Error() string {
	return fmt.Sprintf("strategy not found: %s", e.Name)
}

func (e *StrategyNotFoundError) Is(target error) bool { return target == ErrStrategyNotFound }

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsConfiguration reports whether err is a configuration failure.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
