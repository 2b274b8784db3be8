package resilience

import (
	"context"
	"errors"
	"strings"

	"github.com/goclaw/recall/pkg/search"
)

// Error messages containing any of these are never retried.
var nonRecoverable = []string{
	"syntax error",
	"unauthorized",
	"authentication",
	"permission denied",
	"corrupt",
	"malformed",
	"not implemented",
}

// Error messages containing any of these are worth a recovery attempt.
var recoverable = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"database is busy",
	"database is locked",
	"busy",
	"locked",
	"temporarily unavailable",
	"connection reset",
	"full-text index unavailable",
}

var criticalOperations = []string{"init", "config", "validat"}

// Classification is the verdict on a strategy failure.
type Classification struct {
	Severity    search.Severity `json:"severity"`
	Recoverable bool            `json:"recoverable"`
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// Classify grades an error raised by operation.
func Classify(operation string, err error) Classification {
	if err == nil {
		return Classification{Severity: search.SeverityLow}
	}
	msg := strings.ToLower(err.Error())
	return Classification{
		Severity:    severity(strings.ToLower(operation), msg, err),
		Recoverable: IsRecoverable(err),
	}
}

func severity(operation, msg string, err error) search.Severity {
	switch {
	case containsAny(operation, criticalOperations), search.IsConfiguration(err):
		return search.SeverityCritical
	case containsAny(msg, []string{"corrupt", "malformed", "unauthorized", "authentication", "permission denied"}):
		return search.SeverityHigh
	case errors.Is(err, search.ErrTimeout), errors.Is(err, context.DeadlineExceeded),
		containsAny(msg, []string{"timeout", "timed out", "busy", "locked"}):
		return search.SeverityMedium
	}
	return search.SeverityLow
}

// IsRecoverable applies the blacklist, then the whitelist. Timeouts are
// recoverable; validation errors never are.
func IsRecoverable(err error) bool {
	if err == nil || search.IsValidation(err) {
		return false
	}
	msg := strings.ToLower(err.Error())
	if containsAny(msg, nonRecoverable) {
		return false
	}
	if errors.Is(err, search.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return containsAny(msg, recoverable)
}
