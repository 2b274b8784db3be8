package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotRunning is returned by Stop on an engine that was never started.
var ErrNotRunning = errors.New("engine is not running")

// NoStrategyError is returned when no enabled strategy can handle a query.
type NoStrategyError struct {
	Query string
}

func (e *NoStrategyError) Error() string {
	return fmt.Sprintf("no strategy can handle query %q", e.Query)
}

// AllStrategiesFailedError is returned when every selected strategy failed.
type AllStrategiesFailedError struct {
	Errors []error
}

func (e *AllStrategiesFailedError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		parts[i] = err.Error()
	}
	return "all strategies failed: " + strings.Join(parts, "; ")
}

func (e *AllStrategiesFailedError) Unwrap() []error { return e.Errors }
