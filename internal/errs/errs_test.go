package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	base := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, ""},
		{"transient", Transient("slack post", base), CodeTransientIO},
		{"wrapped transient", fmt.Errorf("channel C1: %w", Transient("store", base)), CodeTransientIO},
		{"spillover", &SpilloverError{Week: "2023-10-22", ChannelID: "C1", OldCount: 1, NewCount: 2}, CodeUnsafeSpillover},
		{"malformed", &MalformedEventError{EventID: "abc", Reason: "missing time"}, CodeMalformedEvent},
		{"unknown", base, CodeFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestTransient_NilStaysNil(t *testing.T) {
	assert.NoError(t, Transient("op", nil))
}

func TestTransient_Unwrap(t *testing.T) {
	base := errors.New("timeout")
	err := Transient("feed fetch", base)

	require.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "TRANSIENT_IO: feed fetch: timeout")
}

func TestIsTransient_Joined(t *testing.T) {
	a := Transient("slack post", errors.New("a"))
	b := Transient("store create", errors.New("b"))

	assert.True(t, IsTransient(errors.Join(a, b)))
	assert.False(t, IsTransient(errors.Join(a, errors.New("mystery"))))
	assert.False(t, IsTransient(nil))
}

func TestSpilloverError_Message(t *testing.T) {
	err := &SpilloverError{Week: "2023-10-22", ChannelID: "C1", OldCount: 1, NewCount: 2}
	assert.Equal(t,
		"UNSAFE_SPILLOVER: week 2023-10-22 channel C1 needs 2 messages but has 1 and a later week is already posted",
		err.Error())
}

func TestFatalError(t *testing.T) {
	err := &FatalError{Job: "sync", Panic: "nil map"}
	assert.Contains(t, err.Error(), "job sync panicked: nil map")

	inner := errors.New("bad state")
	err = &FatalError{Job: "purge", Err: inner}
	assert.ErrorIs(t, err, inner)
}
