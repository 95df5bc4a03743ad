// Package pipeline holds the error taxonomy shared by every core
// component, plus the JobRunner that orchestrates them.
package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure so the JobRunner can decide retry vs.
// fail without inspecting error strings (spec §7).
type Kind string

const (
	KindParseLine        Kind = "parse_line"
	KindParseFormat      Kind = "parse_format"
	KindStorageMissing   Kind = "storage_missing"
	KindStorageTransient Kind = "storage_transient"
	KindFetchAuth        Kind = "fetch_auth"
	KindFetchTransient   Kind = "fetch_transient"
	KindDBConflict       Kind = "db_conflict"
	KindLLMUnavailable   Kind = "llm_unavailable"
	KindSchemaViolation  Kind = "schema_violation"
)

// Sentinel causes, wrapped by Error at each boundary.
var (
	ErrJobNotFound   = errors.New("job not found")
	ErrLogFileNotFound = errors.New("log file not found")
	ErrStorageNotFound = errors.New("object not found in storage")
)

// Error is a tagged pipeline error: a Kind plus a human message plus the
// wrapped cause. JobRunner classifies on Kind to decide rollback/retry/
// fail semantics per the §7 policy table.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Wrap tags cause with kind and message, matching the teacher's
// wrap-with-%w-at-each-boundary idiom.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *Error, and false otherwise.
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

// Retryable reports whether the JobRunner should retry the task that
// produced err rather than failing it outright. DBConflict retries once
// at the call site (see retryOnConflict); StorageTransient and
// FetchTransient rely on the queue's redelivery/backoff instead of an
// in-process retry.
func Retryable(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	switch kind {
	case KindStorageTransient, KindFetchTransient, KindDBConflict:
		return true
	default:
		return false
	}
}
