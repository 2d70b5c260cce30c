// Package task implements the process descriptor and the cooperative
// scheduler that switches between descriptors.
package task

import (
	"errors"
	"fmt"

	"github.com/randomizedcoder/go-teachos/internal/abi"
)

// Status represents the lifecycle stage of a process.
type Status int

const (
	// StatusUnInit is the state while the descriptor is being built.
	StatusUnInit Status = iota

	// StatusReady indicates the process is waiting for the CPU.
	StatusReady

	// StatusRunning indicates the process holds the CPU.
	StatusRunning

	// StatusExited indicates the process has terminated.
	StatusExited
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusUnInit:
		return "uninit"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusExited:
		return "exited"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the status is a terminal status.
func (s Status) IsTerminal() bool {
	return s == StatusExited
}

// ABI returns the value user programs see in task_info.
func (s Status) ABI() uint8 {
	switch s {
	case StatusReady:
		return abi.StatusReady
	case StatusRunning:
		return abi.StatusRunning
	case StatusExited:
		return abi.StatusExited
	default:
		return abi.StatusUnInit
	}
}

// ErrInvalidTransition is returned for a status change the lifecycle
// does not allow.
var ErrInvalidTransition = errors.New("invalid status transition")

var validTransitions = map[Status][]Status{
	StatusUnInit:  {StatusReady},
	StatusReady:   {StatusRunning},
	StatusRunning: {StatusReady, StatusExited},
	StatusExited:  {},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
