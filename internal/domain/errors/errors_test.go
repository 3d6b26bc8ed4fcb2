package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentmonError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AgentmonError
		want string
	}{
		{
			name: "with cause",
			err:  NewError(CodeNotFound, "acknowledge alert", ErrAlertNotFound),
			want: "[NOT_FOUND] acknowledge alert: alert not found",
		},
		{
			name: "without cause",
			err:  NewError(CodeStorage, "snapshot write", nil),
			want: "[STORAGE] snapshot write",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestAgentmonError_Unwrap(t *testing.T) {
	err := NewError(CodeExecution, "end execution", ErrNoActiveExecution)
	wrapped := fmt.Errorf("monitor: %w", err)

	assert.True(t, Is(wrapped, ErrNoActiveExecution))

	var ae *AgentmonError
	require.True(t, As(wrapped, &ae))
	assert.Equal(t, CodeExecution, ae.Code)
	assert.Equal(t, CodeExecution, CodeOf(wrapped))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}

func TestWithContext(t *testing.T) {
	err := &AgentmonError{Code: CodeValidation, Message: "bad budget"}
	WithContext(WithContext(err, "department", "sales"), "budget", -1.0)

	assert.Equal(t, "sales", err.Context["department"])
	assert.Equal(t, -1.0, err.Context["budget"])
}
