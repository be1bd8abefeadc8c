package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Constructors & Unwrapping
// ==========================

func TestAs_FindsWrappedStandardError(t *testing.T) {
	cause := fmt.Errorf("dial tcp: refused")
	stdErr := NewDatabaseQueryFailedError("list_lenders", cause)
	wrapped := fmt.Errorf("evaluate: %w", stdErr)

	found := As(wrapped)
	require.NotNil(t, found)
	assert.Equal(t, ErrCodeDatabaseQueryFailed, found.Code)
	assert.Contains(t, found.Details, "operation: list_lenders")
	assert.ErrorIs(t, wrapped, cause)

	assert.Nil(t, As(cause))
	assert.Nil(t, As(nil))
}

func TestConstructors_Retryable(t *testing.T) {
	assert.False(t, NewInvalidInputError("x").Retryable)
	assert.False(t, NewNoLendersError(nil).Retryable)
	assert.False(t, NewMalformedResponseError(nil).Retryable)
	assert.True(t, NewOracleTimeoutError(nil).Retryable)
	assert.True(t, NewNotificationSendFailedError("email", nil).Retryable)
	assert.Empty(t, NewNoLendersError(nil).Details)
}

// ==========================
// BPMN Conversion
// ==========================

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name        string
		err         *StandardError
		wantCode    string
		wantRetries int
	}{
		{"database errors share a code", NewDatabaseInsertFailedError("save", nil), "DATABASE_ERROR", 3},
		{"oracle timeout retries once", NewOracleTimeoutError(nil), "ORACLE_TIMEOUT", 1},
		{"invalid input is thrown", NewInvalidInputError("bad"), "INVALID_INPUT", 0},
		{"internal falls back to its own code", NewInternalError(nil), "INTERNAL_ERROR", 0},
		{
			name:        "non-retryable instance overrides the code policy",
			err:         &StandardError{Code: ErrCodeDatabaseQueryFailed, Message: "m"},
			wantCode:    "DATABASE_ERROR",
			wantRetries: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmn := ConvertToBPMNError(tt.err)
			assert.Equal(t, tt.wantCode, bpmn.Code)
			assert.Equal(t, tt.wantRetries, bpmn.Retries)
			assert.Equal(t, string(tt.err.Code), bpmn.ErrorVariables["originalErrorCode"])
		})
	}
}

func TestToErrorVariables(t *testing.T) {
	bpmn := ConvertToBPMNError(NewReportNotFoundError("app-1", nil))
	vars := bpmn.ToErrorVariables()

	assert.Equal(t, "REPORT_NOT_FOUND", vars["errorCode"])
	assert.Equal(t, "applicationId: app-1", vars["errorDetails"])
	assert.Equal(t, false, vars["retryable"])
	assert.Contains(t, vars, "timestamp")
}

// ==========================
// HTTP & Categories
// ==========================

func TestHTTPStatus(t *testing.T) {
	tests := map[ErrorCode]int{
		ErrCodeInvalidInput:         http.StatusBadRequest,
		ErrCodeNoLenders:            http.StatusBadRequest,
		ErrCodeApplicationNotFound:  http.StatusNotFound,
		ErrCodeReportNotFound:       http.StatusNotFound,
		ErrCodeLenderNotFound:       http.StatusNotFound,
		ErrCodeCriterionNotFound:    http.StatusNotFound,
		ErrCodeOracleError:          http.StatusBadGateway,
		ErrCodeMalformedResponse:    http.StatusBadGateway,
		ErrCodeOracleTimeout:        http.StatusGatewayTimeout,
		ErrCodeDatabaseInsertFailed: http.StatusInternalServerError,
		ErrCodeInternal:             http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, HTTPStatus(code), string(code))
	}
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "AI", GetErrorCategory(ErrCodeMalformedResponse))
	assert.Equal(t, "AI", GetErrorCategory(ErrCodeExtractionFailed))
	assert.Equal(t, "DATABASE", GetErrorCategory(ErrCodeDatabaseQueryFailed))
	assert.Equal(t, "BUSINESS", GetErrorCategory(ErrCodeNoLenders))
	assert.Equal(t, "BUSINESS", GetErrorCategory(ErrCodeLenderNotFound))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeInvalidInput))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
	assert.True(t, IsRetryableErrorCode(ErrCodeSearchIndexFailed))
	assert.False(t, IsRetryableErrorCode(ErrCodeApplicationNotFound))
}
