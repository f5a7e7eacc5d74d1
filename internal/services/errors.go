package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrToolNotFound    = errors.New("tool not found")
	ErrToolTimeout     = errors.New("tool timeout")
	ErrToolExit        = errors.New("tool exited non-zero")
	ErrMalformedOutput = errors.New("malformed tool output")
	ErrRateLimited     = errors.New("rate limited")
	ErrConfiguration   = errors.New("configuration error")
	ErrInternal        = errors.New("internal error")
)

// ErrorKind is the stable classification persisted in logs, history, and exit summaries.
type ErrorKind string

const (
	KindNone            ErrorKind = ""
	KindToolNotFound    ErrorKind = "tool_not_found"
	KindToolTimeout     ErrorKind = "tool_timeout"
	KindToolNonZeroExit ErrorKind = "tool_non_zero_exit"
	KindMalformedOutput ErrorKind = "malformed_output"
	KindRateLimited     ErrorKind = "rate_limited"
	KindConfigInvalid   ErrorKind = "config_invalid"
	KindCanceled        ErrorKind = "canceled"
	KindInternal        ErrorKind = "internal"
)

// StageError carries stage context alongside a classification marker.
type StageError struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Cause     error
}

func (e *StageError) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%v: %s: %v", e.Marker, detail, e.Cause)
	}
	return fmt.Sprintf("%v: %s", e.Marker, detail)
}

func (e *StageError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Marker}
	}
	return []error{e.Marker, e.Cause}
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrToolExit
	}
	return &StageError{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// ErrorDetails is the flattened view of a classified error used by diagnostics.
type ErrorDetails struct {
	Kind      ErrorKind
	Stage     string
	Operation string
	Message   string
	Cause     error
}

// Details extracts the stage context recorded by Wrap. Errors that did not pass
// through Wrap still receive a kind and their own message.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: KindOf(err)}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		details.Stage = stageErr.Stage
		details.Operation = stageErr.Operation
		details.Message = stageErr.Message
		details.Cause = stageErr.Cause
	}
	if details.Message == "" {
		details.Message = strings.TrimSpace(err.Error())
	}
	return details
}

// KindOf classifies an error into the pipeline taxonomy.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrToolNotFound):
		return KindToolNotFound
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrToolTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindToolTimeout
	case errors.Is(err, ErrMalformedOutput):
		return KindMalformedOutput
	case errors.Is(err, ErrConfiguration):
		return KindConfigInvalid
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrToolExit):
		return KindToolNonZeroExit
	default:
		return KindInternal
	}
}

// MarkerOf returns the sentinel matching err's classification so adapters can
// add context with Wrap without changing how the failure is classified.
func MarkerOf(err error) error {
	switch KindOf(err) {
	case KindToolNotFound:
		return ErrToolNotFound
	case KindToolTimeout:
		return ErrToolTimeout
	case KindRateLimited:
		return ErrRateLimited
	case KindMalformedOutput:
		return ErrMalformedOutput
	case KindConfigInvalid:
		return ErrConfiguration
	case KindToolNonZeroExit:
		return ErrToolExit
	case KindCanceled:
		return context.Canceled
	default:
		return ErrInternal
	}
}

// IsTransient reports whether a failure kind may succeed on retry.
func IsTransient(kind ErrorKind) bool {
	return kind == KindToolTimeout || kind == KindRateLimited
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
