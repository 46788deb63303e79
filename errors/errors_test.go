package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New("test error")
	require.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestSentinelWrapping(t *testing.T) {
	err := NewNotFoundError("architect %s", "ARC_123")
	assert.True(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), "ARC_123")

	err = NewInvalidRequestError("step %d has no model", 3)
	assert.True(t, IsInvalidRequestError(err))
	assert.False(t, IsNotFoundError(err))

	err = NewTimeoutError("step timed out after %ds", 30)
	assert.True(t, IsTimeoutError(err))

	err = NewForbiddenError("user %s does not own architect", "u1")
	assert.True(t, IsForbiddenError(err))
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	err := Wrap(NewNotFoundError("model gpt-4o"), "loading step 2")
	assert.True(t, IsNotFoundError(err))
	assert.False(t, IsInvalidRequestError(err))
	assert.False(t, IsNotFoundError(nil))
}
