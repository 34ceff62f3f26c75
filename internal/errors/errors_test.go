package errors

import (
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestNewAppError(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "Test error", nil)

	if err.Code != ErrCodeInvalidInput {
		t.Errorf("Expected code %s, got %s", ErrCodeInvalidInput, err.Code)
	}

	if err.Message != "Test error" {
		t.Errorf("Expected message 'Test error', got %s", err.Message)
	}

	if err.Severity != SeverityLow {
		t.Errorf("Expected severity %s, got %s", SeverityLow, err.Severity)
	}

	if time.Since(err.Timestamp) > time.Second {
		t.Error("Timestamp should be recent")
	}
}

func TestNewAppErrorWithDetails(t *testing.T) {
	cause := fmt.Errorf("underlying failure")
	err := NewAppErrorWithDetails(ErrCodeDBQuery, "Query failed", "relation missing", cause)

	if err.Details != "relation missing" {
		t.Errorf("Expected details 'relation missing', got %s", err.Details)
	}

	if err.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	want := "[DB_QUERY_ERROR] Query failed: relation missing"
	if err.Error() != want {
		t.Errorf("Expected error string %q, got %q", want, err.Error())
	}
}

func TestAppErrorHTTPStatus(t *testing.T) {
	tests := []struct {
		code           ErrorCode
		expectedStatus int
	}{
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeConfigNotFound, http.StatusNotFound},
		{ErrCodeInvalidInput, http.StatusBadRequest},
		{ErrCodeConfigInvalid, http.StatusBadRequest},
		{ErrCodeConflict, http.StatusConflict},
		{ErrCodeSchedulerBusy, http.StatusConflict},
		{ErrCodeTimeout, http.StatusRequestTimeout},
		{ErrCodeDetectorTimeout, http.StatusRequestTimeout},
		{ErrCodeRateLimit, http.StatusTooManyRequests},
		{ErrCodeNoActiveConfig, http.StatusPreconditionFailed},
		{ErrCodeDetectorUnavailable, http.StatusBadGateway},
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeDBQuery, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := NewAppError(tt.code, "test", nil)
			if got := err.HTTPStatus(); got != tt.expectedStatus {
				t.Errorf("Expected status %d for %s, got %d", tt.expectedStatus, tt.code, got)
			}
		})
	}
}

func TestSeverityByCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected ErrorSeverity
	}{
		{ErrCodeInternal, SeverityCritical},
		{ErrCodeDBConnection, SeverityCritical},
		{ErrCodeNoActiveConfig, SeverityCritical},
		{ErrCodeDBQuery, SeverityHigh},
		{ErrCodeDeliveryFailed, SeverityHigh},
		{ErrCodeDetectorUnavailable, SeverityMedium},
		{ErrCodeCacheOperation, SeverityMedium},
		{ErrCodeInvalidInput, SeverityLow},
		{ErrCodeRateLimit, SeverityLow},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := NewAppError(tt.code, "test", nil)
			if err.Severity != tt.expected {
				t.Errorf("Expected severity %s for %s, got %s", tt.expected, tt.code, err.Severity)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []ErrorCode{
		ErrCodeTimeout,
		ErrCodeDBConnection,
		ErrCodeCacheConnection,
		ErrCodeDetectorUnavailable,
		ErrCodeDetectorTimeout,
	}
	for _, code := range retryable {
		if !NewAppError(code, "test", nil).IsRetryable() {
			t.Errorf("Expected %s to be retryable", code)
		}
	}

	permanent := []ErrorCode{
		ErrCodeInvalidInput,
		ErrCodeNotFound,
		ErrCodeConfigInvalid,
		ErrCodeDeliveryFailed,
	}
	for _, code := range permanent {
		if NewAppError(code, "test", nil).IsRetryable() {
			t.Errorf("Expected %s not to be retryable", code)
		}
	}
}

func TestWithContext(t *testing.T) {
	err := NewAppError(ErrCodeDetectorUnavailable, "fetch failed", nil).
		WithContext("ticker", "AAPL").
		WithContext("timeframe", "1h").
		WithRequestID("req-123")

	if err.Context["ticker"] != "AAPL" {
		t.Errorf("Expected ticker context AAPL, got %v", err.Context["ticker"])
	}

	if err.Context["timeframe"] != "1h" {
		t.Errorf("Expected timeframe context 1h, got %v", err.Context["timeframe"])
	}

	if err.RequestID != "req-123" {
		t.Errorf("Expected request ID req-123, got %s", err.RequestID)
	}
}

func TestWrapError(t *testing.T) {
	if WrapError(nil, ErrCodeInternal, "nothing") != nil {
		t.Error("Wrapping nil should return nil")
	}

	base := fmt.Errorf("connection refused")
	wrapped := WrapError(base, ErrCodeDBConnection, "Database unreachable")
	if wrapped.Code != ErrCodeDBConnection {
		t.Errorf("Expected code %s, got %s", ErrCodeDBConnection, wrapped.Code)
	}
	if wrapped.Cause != base {
		t.Error("Expected cause to be preserved")
	}

	// Wrapping an AppError should not double wrap
	again := WrapError(wrapped, ErrCodeInternal, "other")
	if again != wrapped {
		t.Error("Expected wrapping an AppError to return it unchanged")
	}
}

func TestGetAppError(t *testing.T) {
	appErr := NewAppError(ErrCodeNotFound, "gone", nil)
	if GetAppError(appErr) != appErr {
		t.Error("Expected GetAppError to return the same error")
	}

	if GetAppError(fmt.Errorf("plain")) != nil {
		t.Error("Expected nil for a plain error")
	}

	if !IsAppError(appErr) {
		t.Error("Expected IsAppError to be true for AppError")
	}

	if IsAppError(fmt.Errorf("plain")) {
		t.Error("Expected IsAppError to be false for a plain error")
	}
}

func TestNewErrorResponse(t *testing.T) {
	appErr := NewAppError(ErrCodeRateLimit, "slow down", nil)
	resp := NewErrorResponse(appErr, "/api/v1/check")

	if resp.Success {
		t.Error("Expected success to be false")
	}

	if resp.Error != appErr {
		t.Error("Expected error to be attached")
	}

	if resp.Path != "/api/v1/check" {
		t.Errorf("Expected path /api/v1/check, got %s", resp.Path)
	}
}
