package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, ErrorNotFound, KindOf(NotFound("no entity %s", "x")))
	assert.Equal(t, ErrorGeneric, KindOf(errors.New("disk on fire")))
	assert.Equal(t, ErrorConflict, KindOf(fmt.Errorf("wrapped: %w", Conflict("taken"))))
}

func TestErrorIs(t *testing.T) {
	err := BadRequest("field %s is required", "title")
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "BadRequest: field title is required", err.Error())
}

func TestGenericKeepsOriginal(t *testing.T) {
	cause := errors.New("connection reset")
	err := AsError(cause)

	assert.Equal(t, ErrorGeneric, err.Kind)
	assert.Equal(t, "connection reset", err.Message)
	assert.ErrorIs(t, err, cause)
}

func TestResult(t *testing.T) {
	ok := Ok(42)
	assert.True(t, ok.IsOk())
	assert.Equal(t, 42, ok.ValueOrPanic())

	failed := Fail[int](NotFound("gone"))
	assert.False(t, failed.IsOk())
	assert.Panics(t, func() { failed.ValueOrPanic() })
}

func TestAsErrorKeepsContextCause(t *testing.T) {
	err := AsError(fmt.Errorf("failed to acquire advisory lock job: %w", context.Canceled))
	assert.Equal(t, ErrorGeneric, err.Kind)
	assert.ErrorIs(t, err, context.Canceled)
}
