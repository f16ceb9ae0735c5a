package parley

import (
	"errors"
	"fmt"
)

// Sentinel errors for parley. Use errors.Is to check.
var (
	ErrToolNotFound     = errors.New("tool not found")
	ErrDuplicateTool    = errors.New("tool already registered")
	ErrTimeout          = errors.New("tool execution timeout")
	ErrValidation       = errors.New("validation failed")
	ErrMissingParameter = errors.New("required parameter missing")
	ErrTypeMismatch     = errors.New("parameter type mismatch")
	ErrInvalidEnumValue = errors.New("value not in enum")
	ErrUnknownParamType = errors.New("unknown parameter type")
	ErrShutdown         = errors.New("registry is shutting down")
	ErrTurnLimit        = errors.New("conversation turn limit exceeded")
)

// ClientError is an error that should be sent back to the LLM for
// self-correction (e.g. invalid JSON, schema validation failure, bad enum
// value). Do not expose stack traces or internal details to the LLM.
// Err optionally wraps a sentinel (e.g. ErrValidation) for errors.Is/errors.As.
type ClientError struct {
	Reason string
	// Retryable is set by the application (not by parley). When true, the
	// orchestrator may retry the same call without changing arguments.
	Retryable bool
	Err       error // wrapped sentinel for errors.Is/errors.As
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("invalid tool input: %s", e.Reason)
}

// Unwrap supports errors.Is/errors.As on wrapped chains (e.g. errors.Is(err, ErrValidation)).
func (e *ClientError) Unwrap() error { return e.Err }

// SystemError represents an internal failure (DB down, panic, etc.).
// The LLM should not see the underlying error message or stack.
type SystemError struct {
	Err error
}

func (e *SystemError) Error() string {
	return "internal system error during tool execution"
}

func (e *SystemError) Unwrap() error { return e.Err }

// ModelError wraps an unrecoverable model-backend failure. Unlike tool
// failures, which are data fed back to the model, a ModelError terminates the
// conversation loop; the caller receives it instead of a fabricated answer.
type ModelError struct {
	Err error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model backend error: %v", e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// TransientError marks a model-backend failure as retryable (rate limit,
// temporary network failure). The conversation loop retries transient errors
// with backoff before giving up; anything else fails the session immediately.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient backend error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsClientError returns true if err is or wraps a ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// IsSystemError returns true if err is or wraps a SystemError.
func IsSystemError(err error) bool {
	var se *SystemError
	return errors.As(err, &se)
}

// IsTransient returns true if err is or wraps a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// wrapJSONParseError returns a ClientError for JSON unmarshal failures.
// Used by Extractor.ParseAndValidate and the dynamic-tool execute path so
// parse errors are consistent.
func wrapJSONParseError(err error) error {
	return &ClientError{Reason: "json parse error: " + err.Error(), Err: ErrValidation}
}
