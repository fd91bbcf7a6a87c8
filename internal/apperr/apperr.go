// Package apperr defines the failure kinds shared by the ingestion pipeline,
// the conversation engine and the session store.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrExtractionFailed = errors.New("extraction failed")

	// Extraction kinds. An extraction error always matches ErrExtractionFailed
	// and exactly one of these.
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrEmptyContent      = errors.New("empty content")
	ErrNetwork           = errors.New("network error")
	ErrParse             = errors.New("parse error")

	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInvalidInput         = errors.New("invalid input")
	ErrSummarizationFailed  = errors.New("summarization failed")
	ErrNoDocumentBound      = errors.New("no document bound to session")
	ErrAnswerFailed         = errors.New("answer failed")
	ErrSessionBusy          = errors.New("session busy")
	ErrSessionNotFound      = errors.New("session not found")
	ErrTimeout              = errors.New("timeout")
)

// ExtractionError carries the extraction kind next to the underlying cause.
type ExtractionError struct {
	Kind  error
	Cause error
}

// Extraction builds an ExtractionError of the given kind. Deadline causes are
// additionally tagged with ErrTimeout.
func Extraction(kind, cause error) error {
	return &ExtractionError{Kind: kind, Cause: cause}
}

func (e *ExtractionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", ErrExtractionFailed, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", ErrExtractionFailed, e.Kind, e.Cause)
}

func (e *ExtractionError) Is(target error) bool {
	switch target {
	case ErrExtractionFailed, e.Kind:
		return true
	case ErrTimeout:
		return IsDeadline(e.Cause)
	}
	return false
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// Wrap tags err with kind and, when err was caused by a deadline, with ErrTimeout.
func Wrap(kind error, msg string, err error) error {
	if err == nil {
		return nil
	}
	if IsDeadline(err) && !errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: %w: %s: %w", kind, ErrTimeout, msg, err)
	}
	return fmt.Errorf("%w: %s: %w", kind, msg, err)
}

// IsDeadline reports whether err stems from an expired deadline, either a
// context deadline or a network timeout.
func IsDeadline(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Class groups failures by what the caller should do about them.
type Class int

const (
	ClassInternal Class = iota
	ClassRetry
	ClassFixInput
	ClassNotFound
)

func (c Class) String() string {
	switch c {
	case ClassRetry:
		return "retry"
	case ClassFixInput:
		return "fix_input"
	case ClassNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// ClassOf tells "try again" apart from "fix input" and "not found".
func ClassOf(err error) Class {
	switch {
	case err == nil:
		return ClassInternal
	case errors.Is(err, ErrSessionNotFound):
		return ClassNotFound
	case errors.Is(err, ErrTimeout),
		errors.Is(err, ErrNetwork),
		errors.Is(err, ErrSessionBusy):
		return ClassRetry
	case errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrEmptyContent),
		errors.Is(err, ErrParse),
		errors.Is(err, ErrInvalidConfiguration),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrNoDocumentBound):
		return ClassFixInput
	case errors.Is(err, ErrSummarizationFailed),
		errors.Is(err, ErrAnswerFailed):
		return ClassRetry
	}
	return ClassInternal
}
