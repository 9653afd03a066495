package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessageWithAndWithoutCause(t *testing.T) {
	plain := New(KindNotImplemented, "find_by_tags for OR groups")
	assert.Equal(t, "NOT_IMPLEMENTED: find_by_tags for OR groups", plain.Error())

	wrapped := Wrap(KindDBConnectionError, errors.New("dial tcp: refused"), "persist batch %s", "batch-1")
	assert.Equal(t, "DB_CONNECTION_ERROR: persist batch batch-1: dial tcp: refused", wrapped.Error())
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("conflict")
	wrapped := Wrap(KindConflict, cause, "put %s", "oid-1")
	assert.Equal(t, cause, errors.Unwrap(wrapped))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindConflict, KindOf(New(KindConflict, "rev mismatch")))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain error")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestIsFollowsWrappedCauseChain(t *testing.T) {
	inner := New(KindConflict, "rev mismatch")
	outer := Wrap(KindDBConnectionError, inner, "retry failed")

	assert.True(t, Is(outer, KindDBConnectionError))
	assert.True(t, Is(inner, KindConflict))
	assert.False(t, Is(outer, KindNotImplemented))
}
