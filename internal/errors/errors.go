package errors

import (
	"fmt"
	"net/http"
	"time"
)

// ErrorCode identifies a class of application error
type ErrorCode string

const (
	// Generic errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeTimeout      ErrorCode = "TIMEOUT"
	ErrCodeRateLimit    ErrorCode = "RATE_LIMIT"

	// Storage errors
	ErrCodeDBConnection ErrorCode = "DB_CONNECTION_ERROR"
	ErrCodeDBQuery      ErrorCode = "DB_QUERY_ERROR"
	ErrCodeDBConstraint ErrorCode = "DB_CONSTRAINT_ERROR"

	// Cache errors
	ErrCodeCacheConnection ErrorCode = "CACHE_CONNECTION_ERROR"
	ErrCodeCacheOperation  ErrorCode = "CACHE_OPERATION_ERROR"

	// Pipeline errors
	ErrCodeConfigNotFound      ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid       ErrorCode = "CONFIG_INVALID"
	ErrCodeNoActiveConfig      ErrorCode = "NO_ACTIVE_CONFIG"
	ErrCodeDetectorUnavailable ErrorCode = "DETECTOR_UNAVAILABLE"
	ErrCodeDetectorTimeout     ErrorCode = "DETECTOR_TIMEOUT"
	ErrCodeDeliveryFailed      ErrorCode = "DELIVERY_FAILED"
	ErrCodeSchedulerBusy       ErrorCode = "SCHEDULER_BUSY"
)

// ErrorSeverity ranks how urgently an error needs operator attention
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// AppError represents a typed application error
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Severity  ErrorSeverity          `json:"severity"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Cause     error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error code onto an HTTP status code
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeNotFound, ErrCodeConfigNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidInput, ErrCodeConfigInvalid:
		return http.StatusBadRequest
	case ErrCodeConflict, ErrCodeSchedulerBusy:
		return http.StatusConflict
	case ErrCodeTimeout, ErrCodeDetectorTimeout:
		return http.StatusRequestTimeout
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeNoActiveConfig:
		return http.StatusPreconditionFailed
	case ErrCodeDetectorUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  getSeverityByCode(code),
		Timestamp: time.Now(),
		Cause:     cause,
		Context:   make(map[string]interface{}),
	}
}

// NewAppErrorWithDetails creates an application error with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	err := NewAppError(code, message, cause)
	err.Details = details
	return err
}

// WithContext attaches a context value
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRequestID attaches the originating request ID
func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

func getSeverityByCode(code ErrorCode) ErrorSeverity {
	switch code {
	case ErrCodeInternal, ErrCodeDBConnection, ErrCodeNoActiveConfig:
		return SeverityCritical
	case ErrCodeDBQuery, ErrCodeDBConstraint, ErrCodeDeliveryFailed:
		return SeverityHigh
	case ErrCodeCacheConnection, ErrCodeCacheOperation,
		ErrCodeDetectorUnavailable, ErrCodeDetectorTimeout:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// IsRetryable reports whether the operation may succeed on retry
func (e *AppError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeTimeout, ErrCodeDBConnection, ErrCodeCacheConnection,
		ErrCodeDetectorUnavailable, ErrCodeDetectorTimeout:
		return true
	default:
		return false
	}
}

// ErrorResponse is the API error envelope
type ErrorResponse struct {
	Error     *AppError `json:"error"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path,omitempty"`
}

// NewErrorResponse creates an error response for a request path
func NewErrorResponse(err *AppError, path string) *ErrorResponse {
	return &ErrorResponse{
		Error:     err,
		Success:   false,
		Timestamp: time.Now(),
		Path:      path,
	}
}

// Predefined common errors
var (
	ErrInternalServer = NewAppError(ErrCodeInternal, "Internal server error", nil)
	ErrInvalidInput   = NewAppError(ErrCodeInvalidInput, "Invalid input parameters", nil)
	ErrNotFound       = NewAppError(ErrCodeNotFound, "Resource not found", nil)
	ErrTimeout        = NewAppError(ErrCodeTimeout, "Request timeout", nil)
	ErrRateLimit      = NewAppError(ErrCodeRateLimit, "Rate limit exceeded", nil)
)

// WrapError wraps a standard error into an application error
func WrapError(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return NewAppError(code, message, err)
}

// IsAppError checks whether err is an application error
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError extracts the application error, or nil
func GetAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return nil
}
