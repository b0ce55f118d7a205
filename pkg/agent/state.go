package agent

import (
	"fmt"

	"github.com/pkg/errors"
)

// State is the lifecycle phase of an Agent. Handle only runs from StateReady
// or StateWaitingForUserInput; every other state rejects with ErrNotReady.
type State string

const (
	StateReady               State = "ready"
	StateProcessing          State = "processing"
	StateWaitingForUserInput State = "waiting_for_input"
	StateError               State = "error"
	StateTerminated          State = "terminated"
)

var (
	// ErrNotReady rejects a call on an agent that is processing, parked in
	// an error state, or terminated.
	ErrNotReady = errors.New("agent is not ready")

	// ErrTimeout marks a decision round that hit the configured timeout.
	ErrTimeout = errors.New("model request timed out")

	// ErrRetryExhausted marks a conversation that ran out of budget, either
	// retry attempts or decision rounds.
	ErrRetryExhausted = errors.New("retry budget exhausted")
)

// timeoutError is the terminal error when every attempt of a round timed
// out. It matches both ErrTimeout and ErrRetryExhausted under errors.Is.
type timeoutError struct {
	attempts int
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("model request timed out after %d attempts", e.attempts)
}

func (e *timeoutError) Is(target error) bool {
	return target == ErrTimeout || target == ErrRetryExhausted
}
