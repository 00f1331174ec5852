package tool

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AdapterError codes that cross the invocation boundary.
const (
	// CodeInvalidInput is returned when call construction fails before any
	// network I/O happens. Never retried.
	CodeInvalidInput = "INVALID_INPUT"
	// CodeUpstreamContract is returned when a success response cannot be
	// decoded into the expected shape.
	CodeUpstreamContract = "UPSTREAM_CONTRACT_VIOLATION"
	// CodeRejected is returned for definitive upstream refusals. Never retried.
	CodeRejected = "REJECTED"
	// CodeUnavailable is returned after the retry budget is exhausted.
	CodeUnavailable = "UNAVAILABLE"
)

// Intermediate codes for transient attempt failures. These never cross the
// invocation boundary directly; they surface as the last cause inside an
// UNAVAILABLE error.
const (
	codeTimeout     = "TIMEOUT"
	codeTransport   = "TRANSPORT_FAILURE"
	codeUpstream    = "UPSTREAM_FAILURE"
	codeRateLimited = "RATE_LIMITED"
)

// AdapterError is a structured invocation error that flows from adapters to
// the dispatcher and transport without losing retryability or machine codes.
type AdapterError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	// Status is the upstream HTTP status when one was observed.
	Status int `json:"status,omitempty"`
	// Attempts is the number of attempts consumed, set on exhaustion.
	Attempts int `json:"attempts,omitempty"`
	// RetryAfter carries an explicit upstream backoff hint.
	RetryAfter time.Duration `json:"-"`
	Cause      error         `json:"-"`
}

func (e *AdapterError) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	msg := strings.TrimSpace(e.Message)
	switch {
	case code == "" && msg == "":
		return codeTransport
	case code == "":
		return msg
	case msg == "":
		return code
	default:
		return fmt.Sprintf("%s: %s", code, msg)
	}
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *AdapterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newAdapterError(code, message string, retryable bool, cause error) *AdapterError {
	cleanMsg := strings.TrimSpace(message)
	if cleanMsg == "" && cause != nil {
		cleanMsg = cause.Error()
	}
	return &AdapterError{
		Code:      code,
		Message:   cleanMsg,
		Retryable: retryable,
		Cause:     cause,
	}
}

// InvalidInputError reports a call that failed local validation inside an
// adapter before any network I/O.
func InvalidInputError(format string, args ...any) *AdapterError {
	return newAdapterError(CodeInvalidInput, fmt.Sprintf(format, args...), false, nil)
}

// UpstreamContractError reports a success response that did not match the
// documented upstream shape.
func UpstreamContractError(message string, cause error) *AdapterError {
	return newAdapterError(CodeUpstreamContract, message, false, cause)
}

// RejectedError reports a definitive upstream refusal.
func RejectedError(message string, status int) *AdapterError {
	err := newAdapterError(CodeRejected, message, false, nil)
	err.Status = status
	return err
}

func transientError(code, message string, status int, cause error) *AdapterError {
	err := newAdapterError(code, message, true, cause)
	err.Status = status
	return err
}

func unavailableError(attempts int, last error) *AdapterError {
	err := newAdapterError(
		CodeUnavailable,
		fmt.Sprintf("upstream unavailable after %d attempt(s): %s", attempts, lastCauseLabel(last)),
		false,
		last,
	)
	err.Attempts = attempts
	if lastErr, ok := adapterErrorFrom(last); ok {
		err.Status = lastErr.Status
	}
	return err
}

// lastCauseLabel renders a short cause description safe for transport
// boundaries. Structured errors keep their code and message; anything else
// collapses to a generic label so raw transport error strings never leak.
func lastCauseLabel(err error) string {
	if err == nil {
		return "unknown cause"
	}
	if adapterErr, ok := adapterErrorFrom(err); ok {
		return adapterErr.Error()
	}
	return codeTransport
}

func adapterErrorFrom(err error) (*AdapterError, bool) {
	if err == nil {
		return nil, false
	}
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		return adapterErr, true
	}
	return nil, false
}

func adapterErrorCode(err error) string {
	if adapterErr, ok := adapterErrorFrom(err); ok && adapterErr != nil {
		return adapterErr.Code
	}
	return ""
}

// ErrNotFound indicates the requested tool is not registered.
var ErrNotFound = errors.New("tool: not found")

// ArgumentError reports invocation arguments that failed schema validation.
// Validation runs before the adapter, so no network I/O has happened.
type ArgumentError struct {
	Tool   string
	Issues []string
}

func (e *ArgumentError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("tool %q: invalid arguments: %s", e.Tool, strings.Join(e.Issues, "; "))
}
