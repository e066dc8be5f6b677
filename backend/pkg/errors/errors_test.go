package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout call", NewModelCall(FailureTimeout, "deadline", nil), true},
		{"transient call", NewModelCall(FailureTransient, "502", nil), true},
		{"malformed output", NewModelCall(FailureMalformed, "not json", nil), true},
		{"permanent call", NewModelCall(FailurePermanent, "401", nil), false},
		{"cancelled", NewModelCall(FailureCancelled, "cancelled", nil), false},
		{"wrapped transient", fmt.Errorf("stage: %w", NewModelCall(FailureTransient, "reset", nil)), true},
		{"graph connection", NewGraphConnectionFailed("bolt://x", stderrors.New("refused")), true},
		{"context", NewContextCancelled("ingest", nil), false},
		{"plain", stderrors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestKindOf(t *testing.T) {
	failed := NewModelFailed("metadata", FailureTimeout, 3, NewModelCall(FailureTimeout, "deadline", nil))

	assert.Equal(t, FailureTimeout, KindOf(failed))
	assert.True(t, IsTimeout(fmt.Errorf("wrap: %w", failed)))
	assert.Equal(t, FailureKind(""), KindOf(stderrors.New("x")))
	assert.Contains(t, failed.Error(), "after 3 attempts")
}

func TestIsErrorType(t *testing.T) {
	err := fmt.Errorf("load: %w", NewConfigMissingRequired("MODEL_ID"))

	assert.True(t, IsErrorType(err, ErrorTypeConfig))
	assert.False(t, IsErrorType(err, ErrorTypeGraph))
	assert.True(t, IsErrorType(NewValidationFailed("Theory", "Name", "required"), ErrorTypeValidation))
}
