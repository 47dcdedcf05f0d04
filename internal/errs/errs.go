// Package errs defines the failure taxonomy shared by the synchronization
// pipeline.
//
//   - TransientIO: a feed, Slack or store call failed. Not retried inside a
//     pass; the next scheduled tick tries again.
//   - UnsafeSpillover: a week needs more messages but a later week is
//     already posted in that channel. Expected; the channel is skipped.
//   - MalformedEvent: a feed record could not be normalized. The event is
//     dropped and the pass continues.
//   - Fatal: anything unexpected inside a background job. The process
//     stops so that a supervisor can restart it.
package errs

import (
	"errors"
	"fmt"
)

// Code categorizes pipeline errors.
type Code string

const (
	CodeTransientIO     Code = "TRANSIENT_IO"
	CodeUnsafeSpillover Code = "UNSAFE_SPILLOVER"
	CodeMalformedEvent  Code = "MALFORMED_EVENT"
	CodeFatal           Code = "FATAL"
)

// TransientError wraps an I/O failure that the next pass may not hit.
type TransientError struct {
	// Op names the failing call, e.g. "slack post" or "store get messages".
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %s: %v", CodeTransientIO, e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError. A nil err stays nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// SpilloverError reports that a channel's message count for a week would
// grow after a later week was already posted there.
type SpilloverError struct {
	Week      string
	ChannelID string
	OldCount  int
	NewCount  int
}

func (e *SpilloverError) Error() string {
	return fmt.Sprintf("%s: week %s channel %s needs %d messages but has %d and a later week is already posted",
		CodeUnsafeSpillover, e.Week, e.ChannelID, e.NewCount, e.OldCount)
}

// MalformedEventError reports a feed record that cannot become an Event.
type MalformedEventError struct {
	EventID string
	Reason  string
}

func (e *MalformedEventError) Error() string {
	if e.EventID == "" {
		return fmt.Sprintf("%s: %s", CodeMalformedEvent, e.Reason)
	}
	return fmt.Sprintf("%s: event %s: %s", CodeMalformedEvent, e.EventID, e.Reason)
}

// FatalError carries an unexpected failure out of a background job.
type FatalError struct {
	Job string
	// Panic holds the recovered value when the job panicked.
	Panic any
	Err   error
}

func (e *FatalError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("%s: job %s panicked: %v", CodeFatal, e.Job, e.Panic)
	}
	return fmt.Sprintf("%s: job %s: %v", CodeFatal, e.Job, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Classify returns the taxonomy code for err. Errors that carry no known
// type are Fatal: nothing in the pipeline produces them on purpose.
func Classify(err error) Code {
	var (
		transient *TransientError
		spill     *SpilloverError
		malformed *MalformedEventError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &spill):
		return CodeUnsafeSpillover
	case errors.As(err, &malformed):
		return CodeMalformedEvent
	case errors.As(err, &transient):
		return CodeTransientIO
	default:
		return CodeFatal
	}
}

// IsTransient reports whether every failure inside err is transient.
// Joined errors (errors.Join) are inspected member by member.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		members := joined.Unwrap()
		if len(members) == 0 {
			return false
		}
		for _, m := range members {
			if !IsTransient(m) {
				return false
			}
		}
		return true
	}
	return Classify(err) == CodeTransientIO
}
