package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractionErrorMatchesKind(t *testing.T) {
	err := Extraction(ErrNetwork, errors.New("status 404"))

	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.NotErrorIs(t, err, ErrParse)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "status 404")
}

func TestExtractionErrorDeadlineIsTimeout(t *testing.T) {
	err := Extraction(ErrNetwork, fmt.Errorf("fetch: %w", context.DeadlineExceeded))

	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, ClassRetry, ClassOf(err))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(ErrAnswerFailed, "llm", nil))

	plain := Wrap(ErrAnswerFailed, "llm", errors.New("boom"))
	assert.ErrorIs(t, plain, ErrAnswerFailed)
	assert.NotErrorIs(t, plain, ErrTimeout)

	deadline := Wrap(ErrAnswerFailed, "llm", context.DeadlineExceeded)
	assert.ErrorIs(t, deadline, ErrAnswerFailed)
	assert.ErrorIs(t, deadline, ErrTimeout)
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"not found", fmt.Errorf("get: %w", ErrSessionNotFound), ClassNotFound},
		{"busy", ErrSessionBusy, ClassRetry},
		{"network", Extraction(ErrNetwork, nil), ClassRetry},
		{"unsupported", Extraction(ErrUnsupportedFormat, nil), ClassFixInput},
		{"empty", Extraction(ErrEmptyContent, nil), ClassFixInput},
		{"config", ErrInvalidConfiguration, ClassFixInput},
		{"no document", ErrNoDocumentBound, ClassFixInput},
		{"answer", ErrAnswerFailed, ClassRetry},
		{"other", errors.New("disk on fire"), ClassInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassOf(tt.err))
		})
	}
}
