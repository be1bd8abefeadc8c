// Package errors provides the process-wide error taxonomy shared by the HTTP
// API and the Zeebe job workers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidInput         ErrorCode = "INVALID_INPUT"
	ErrCodeNoLenders            ErrorCode = "NO_LENDERS"
	ErrCodeApplicationNotFound  ErrorCode = "APPLICATION_NOT_FOUND"
	ErrCodeLenderNotFound       ErrorCode = "LENDER_NOT_FOUND"
	ErrCodeCriterionNotFound    ErrorCode = "CRITERION_NOT_FOUND"
	ErrCodeReportNotFound       ErrorCode = "REPORT_NOT_FOUND"
	ErrCodeOracleError          ErrorCode = "ORACLE_ERROR"
	ErrCodeOracleTimeout        ErrorCode = "ORACLE_TIMEOUT"
	ErrCodeMalformedResponse    ErrorCode = "MALFORMED_RESPONSE"
	ErrCodeExtractionFailed     ErrorCode = "EXTRACTION_FAILED"
	ErrCodeDatabaseQueryFailed  ErrorCode = "DATABASE_QUERY_FAILED"
	ErrCodeDatabaseInsertFailed ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeSearchIndexFailed    ErrorCode = "SEARCH_INDEX_FAILED"
	ErrCodeNotificationFailed   ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeInternal             ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// As returns the StandardError in err's chain, or nil.
func As(err error) *StandardError {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return nil
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func detailsOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Invalid input", details, false, nil)
}

// NewNoLendersError is returned when an evaluation is requested with an empty lender set.
func NewNoLendersError(cause error) *StandardError {
	return newError(ErrCodeNoLenders, "No lenders available for evaluation", detailsOf(cause), false, cause)
}

func NewApplicationNotFoundError(applicationID string, cause error) *StandardError {
	return newError(ErrCodeApplicationNotFound, "Application not found",
		fmt.Sprintf("applicationId: %s", applicationID), false, cause)
}

func NewLenderNotFoundError(lenderID string, cause error) *StandardError {
	return newError(ErrCodeLenderNotFound, "Lender not found",
		fmt.Sprintf("lenderId: %s", lenderID), false, cause)
}

func NewCriterionNotFoundError(criterionID string, cause error) *StandardError {
	return newError(ErrCodeCriterionNotFound, "Criterion not found",
		fmt.Sprintf("criterionId: %s", criterionID), false, cause)
}

func NewReportNotFoundError(applicationID string, cause error) *StandardError {
	return newError(ErrCodeReportNotFound, "No eligibility report for application",
		fmt.Sprintf("applicationId: %s", applicationID), false, cause)
}

func NewOracleError(err error) *StandardError {
	return newError(ErrCodeOracleError, "Oracle request failed", detailsOf(err), true, err)
}

func NewOracleTimeoutError(err error) *StandardError {
	return newError(ErrCodeOracleTimeout, "Oracle request timed out", detailsOf(err), true, err)
}

func NewMalformedResponseError(err error) *StandardError {
	return newError(ErrCodeMalformedResponse, "Oracle response could not be parsed", detailsOf(err), false, err)
}

func NewExtractionFailedError(details string, cause error) *StandardError {
	return newError(ErrCodeExtractionFailed, "Criteria extraction failed", details, false, cause)
}

func NewDatabaseQueryFailedError(operation string, err error) *StandardError {
	return newError(ErrCodeDatabaseQueryFailed, "Database query failed",
		fmt.Sprintf("operation: %s, error: %s", operation, detailsOf(err)), true, err)
}

func NewDatabaseInsertFailedError(operation string, err error) *StandardError {
	return newError(ErrCodeDatabaseInsertFailed, "Database insert failed",
		fmt.Sprintf("operation: %s, error: %s", operation, detailsOf(err)), true, err)
}

func NewSearchIndexFailedError(err error) *StandardError {
	return newError(ErrCodeSearchIndexFailed, "Search index operation failed", detailsOf(err), true, err)
}

func NewNotificationSendFailedError(notificationType string, err error) *StandardError {
	return newError(ErrCodeNotificationFailed, "Failed to send notification",
		fmt.Sprintf("type: %s, error: %s", notificationType, detailsOf(err)), true, err)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", detailsOf(err), false, err)
}

// ==========================
// 4. Mapping
// ==========================

// BPMNErrorMapping maps internal codes to the error codes modelled on boundary events.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidInput:         "INVALID_INPUT",
	ErrCodeNoLenders:            "NO_LENDERS",
	ErrCodeApplicationNotFound:  "APPLICATION_NOT_FOUND",
	ErrCodeLenderNotFound:       "LENDER_NOT_FOUND",
	ErrCodeCriterionNotFound:    "CRITERION_NOT_FOUND",
	ErrCodeReportNotFound:       "REPORT_NOT_FOUND",
	ErrCodeOracleError:          "ORACLE_ERROR",
	ErrCodeOracleTimeout:        "ORACLE_TIMEOUT",
	ErrCodeMalformedResponse:    "MALFORMED_RESPONSE",
	ErrCodeExtractionFailed:     "EXTRACTION_FAILED",
	ErrCodeDatabaseQueryFailed:  "DATABASE_ERROR",
	ErrCodeDatabaseInsertFailed: "DATABASE_ERROR",
	ErrCodeSearchIndexFailed:    "SEARCH_ERROR",
	ErrCodeNotificationFailed:   "NOTIFICATION_SEND_FAILED",
}

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseQueryFailed,
		ErrCodeDatabaseInsertFailed,
		ErrCodeSearchIndexFailed,
		ErrCodeNotificationFailed:
		return 3

	case ErrCodeOracleError, ErrCodeOracleTimeout:
		return 1

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// HTTPStatus maps an error code to the response status used by the API.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidInput, ErrCodeNoLenders:
		return http.StatusBadRequest
	case ErrCodeApplicationNotFound, ErrCodeLenderNotFound, ErrCodeCriterionNotFound, ErrCodeReportNotFound:
		return http.StatusNotFound
	case ErrCodeOracleError, ErrCodeMalformedResponse, ErrCodeExtractionFailed:
		return http.StatusBadGateway
	case ErrCodeOracleTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory groups codes for dashboards and log queries.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "ORACLE") || strings.Contains(codeStr, "MALFORMED") || strings.Contains(codeStr, "EXTRACTION"):
		return "AI"
	case strings.Contains(codeStr, "DATABASE"):
		return "DATABASE"
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.HasSuffix(codeStr, "NOT_FOUND") || codeStr == string(ErrCodeNoLenders):
		return "BUSINESS"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
