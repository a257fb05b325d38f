package statemachine

import (
	"errors"
	"fmt"
)

// NoTransitionError is returned when no transition leaves State on Event.
type NoTransitionError struct {
	State string
	Event string
}

func (e *NoTransitionError) Error() string {
	return fmt.Sprintf("no transition from state %q on event %q", e.State, e.Event)
}

// RejectedError is returned when every matching transition was refused by a guard.
type RejectedError struct {
	State string
	Event string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("transition from state %q on event %q rejected by guards", e.State, e.Event)
}

// ActionError wraps the error returned by a transition action.
type ActionError struct {
	From  string
	To    string
	Event string
	Err   error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s -> %s on %q: %v", e.From, e.To, e.Event, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// IsNoTransition reports whether err is a NoTransitionError.
func IsNoTransition(err error) bool {
	var e *NoTransitionError
	return errors.As(err, &e)
}

// IsRejected reports whether err is a RejectedError.
func IsRejected(err error) bool {
	var e *RejectedError
	return errors.As(err, &e)
}
