package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/goclaw/recall/pkg/engine"
	"github.com/goclaw/recall/pkg/search"
	"github.com/goclaw/recall/pkg/strategyconfig"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id"`
}

// Common error codes
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeUnprocessable      = "UNPROCESSABLE_ENTITY"
	ErrCodeTooManyRequests    = "TOO_MANY_REQUESTS"
	ErrCodeInternalServer     = "INTERNAL_SERVER_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeGatewayTimeout     = "GATEWAY_TIMEOUT"
)

// Common errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrValidationFailed   = errors.New("validation failed")
	ErrConflict           = errors.New("resource conflict")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("request timeout")
	ErrInternalServer     = errors.New("internal server error")
)

// HTTPStatusFromError maps common and search errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	var (
		noStrategy *engine.NoStrategyError
		allFailed  *engine.AllStrategiesFailedError
	)
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, search.ErrStrategyNotFound),
		errors.Is(err, strategyconfig.ErrConfigNotFound),
		errors.Is(err, strategyconfig.ErrBackupNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidationFailed),
		search.IsValidation(err), search.IsConfiguration(err),
		errors.Is(err, strategyconfig.ErrStrategyMismatch):
		return http.StatusBadRequest
	case errors.As(err, &noStrategy):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrConflict), errors.Is(err, strategyconfig.ErrBackupCorrupt):
		return http.StatusConflict
	case errors.Is(err, ErrTimeout), errors.Is(err, search.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrServiceUnavailable), errors.Is(err, search.ErrCircuitOpen), errors.As(err, &allFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCodeFromStatus returns an error code for the given HTTP status.
func ErrorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeBadRequest
	case http.StatusUnauthorized:
		return ErrCodeUnauthorized
	case http.StatusForbidden:
		return ErrCodeForbidden
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusMethodNotAllowed:
		return ErrCodeMethodNotAllowed
	case http.StatusConflict:
		return ErrCodeConflict
	case http.StatusUnprocessableEntity:
		return ErrCodeUnprocessable
	case http.StatusTooManyRequests:
		return ErrCodeTooManyRequests
	case http.StatusServiceUnavailable:
		return ErrCodeServiceUnavailable
	case http.StatusGatewayTimeout:
		return ErrCodeGatewayTimeout
	default:
		return ErrCodeInternalServer
	}
}

// HandleError is a convenience function to handle errors and write appropriate responses.
func HandleError(w http.ResponseWriter, err error, requestID string) {
	status := HTTPStatusFromError(err)
	code := ErrorCodeFromStatus(status)
	if search.IsValidation(err) || search.IsConfiguration(err) {
		code = ErrCodeValidationFailed
	}
	var details map[string]interface{}
	var ve *search.ValidationError
	if errors.As(err, &ve) && ve.Field != "" {
		details = map[string]interface{}{"field": ve.Field}
	}
	ErrorWithDetails(w, status, code, err.Error(), details, requestID)
}
