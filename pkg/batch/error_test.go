package batch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeErrorMessage(t *testing.T) {
	err := NewSafeError("resize failed: %s", "bad geometry")
	assert.Equal(t, "resize failed: bad geometry", err.Error())
	assert.False(t, IsUnsafe(err))
}

func TestUnsafeErrorWrapsPathAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewUnsafeError("/photos/a.jpg", cause)
	assert.Equal(t, "connection refused", err.Error())
	assert.True(t, IsUnsafe(err))
}

func TestIsUnsafeFalseForOrdinaryErrors(t *testing.T) {
	assert.False(t, IsUnsafe(errors.New("plain error")))
}
