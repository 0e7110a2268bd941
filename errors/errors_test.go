package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.class.String())
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"request failed", ErrRequestFailed, true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"timeout in message", fmt.Errorf("dial tcp: i/o timeout"), true},
		{"invalid data", ErrInvalidData, false},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("x")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("x")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsTransient(test.err))
		})
	}
}

func TestIsInvalid(t *testing.T) {
	assert.False(t, IsInvalid(nil))
	assert.True(t, IsInvalid(ErrInvalidConfig))
	assert.True(t, IsInvalid(fmt.Errorf("wrapped: %w", ErrRequiredBinding)))
	assert.False(t, IsInvalid(ErrConnectionLost))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(nil))
	assert.Equal(t, ErrorInvalid, Classify(ErrParsingFailed))
	assert.Equal(t, ErrorFatal, Classify(ErrShuttingDown))
	assert.Equal(t, ErrorTransient, Classify(fmt.Errorf("something odd")))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "Comp", "Op", "act"))

	base := errors.New("boom")
	err := Wrap(base, "Warehouse", "Store", "estimate size")
	require.Error(t, err)
	assert.Equal(t, "Warehouse.Store: estimate size failed: boom", err.Error())
	assert.True(t, errors.Is(err, base))
}

func TestWrapClassified(t *testing.T) {
	base := errors.New("bad url")

	invalid := WrapInvalid(base, "HTTPExecutor", "Execute", "build request")
	assert.True(t, IsInvalid(invalid))
	assert.True(t, errors.Is(invalid, base))

	var ce *ClassifiedError
	require.True(t, errors.As(invalid, &ce))
	assert.Equal(t, "HTTPExecutor", ce.Component)
	assert.Equal(t, "Execute", ce.Operation)

	assert.True(t, IsTransient(WrapTransient(base, "a", "b", "c")))
	assert.True(t, IsFatal(WrapFatal(base, "a", "b", "c")))
	assert.Nil(t, WrapInvalid(nil, "a", "b", "c"))
}

func TestClassifiedError_EmptyMessage(t *testing.T) {
	ce := &ClassifiedError{Class: ErrorInvalid}
	assert.Equal(t, "invalid error", ce.Error())
}
