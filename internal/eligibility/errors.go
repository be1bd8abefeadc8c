package eligibility

import (
	"errors"
	"fmt"
)

// maxRawDiagnostic bounds the raw oracle text carried on MalformedResponseError.
const maxRawDiagnostic = 500

var (
	// ErrNoLenders is the empty lender list precondition. It aborts the
	// evaluation before any oracle call.
	ErrNoLenders = errors.New("no lenders available for evaluation")

	ErrMissingApplicationData = errors.New("application data is required")
)

// OracleError wraps a failed oracle call for one lender.
type OracleError struct {
	LenderID string
	Err      error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle call failed for lender %s: %v", e.LenderID, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }

// MalformedResponseError means the oracle text could not be turned into the
// expected shape even after one repair pass.
type MalformedResponseError struct {
	Raw string
	Err error
}

func newMalformed(raw string, err error) *MalformedResponseError {
	return &MalformedResponseError{Raw: truncate(raw, maxRawDiagnostic), Err: err}
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed oracle response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
