package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	err := NewError(ErrPlanNotFound, "plan missing")
	assert.Equal(t, "[PLAN_NOT_FOUND] plan missing", err.Error())

	cause := errors.New("row not found")
	err = NewError(ErrScenarioNotFound, "scenario missing").WithCause(cause)
	assert.Equal(t, "[SCENARIO_NOT_FOUND] scenario missing: row not found", err.Error())
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestError_Codes(t *testing.T) {
	err := NewErrorf(ErrInvalidVersion, "version %d not greater than %d", 1, 2)
	assert.Equal(t, ErrInvalidVersion, GetErrorCode(err))
	assert.True(t, IsCode(err, ErrInvalidVersion))
	assert.False(t, IsCode(err, ErrDuplicatePlan))

	// wrapped errors still expose their code
	wrapped := fmt.Errorf("loading plan: %w", err)
	assert.Equal(t, ErrInvalidVersion, GetErrorCode(wrapped))

	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}

func TestError_Retryable(t *testing.T) {
	err := NewError(ErrStoreFailure, "connection reset").WithRetryable(true)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(errors.New("plain")))
}
