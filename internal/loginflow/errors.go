package loginflow

import (
	"errors"
	"fmt"
)

// Failure kinds. A *FlowError matches exactly one of these under errors.Is.
var (
	ErrNavigation        = errors.New("navigation failed")
	ErrRedirect          = errors.New("sso redirect failed")
	ErrCredentialFill    = errors.New("credential fill failed")
	ErrLoginVerification = errors.New("login verification failed")
)

// Causes produced by the flow itself rather than the page.
var (
	ErrStillOnSSO   = errors.New("still on sso page after submit")
	ErrHostMismatch = errors.New("location does not match expected host")
)

// FlowError reports the state the flow was in when it aborted.
type FlowError struct {
	State State
	Step  string
	Kind  error
	Cause error
}

func (e *FlowError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("loginflow: %s: %v", e.Step, e.Kind)
	}
	return fmt.Sprintf("loginflow: %s: %v: %v", e.Step, e.Kind, e.Cause)
}

// Is matches the failure kind, so errors.Is(err, ErrRedirect) works.
func (e *FlowError) Is(target error) bool {
	return target == e.Kind
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

func newFlowError(state State, kind, cause error) *FlowError {
	return &FlowError{
		State: state,
		Step:  state.Step(),
		Kind:  kind,
		Cause: cause,
	}
}

// FailedState extracts the state a failed flow stopped in.
func FailedState(err error) (State, bool) {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.State, true
	}
	return StateStart, false
}
