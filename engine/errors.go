package engine

import "errors"

var (
	// ErrScenarioNotFound: no scenario registered under the requested id.
	ErrScenarioNotFound = errors.New("scenario not found")

	// ErrSessionTerminated: the session reached a terminal status and cannot
	// accept further turns.
	ErrSessionTerminated = errors.New("session already terminated")

	// ErrStepBudgetExceeded: a turn advanced through more automatic nodes
	// than the configured budget, almost certainly an authored cycle.
	ErrStepBudgetExceeded = errors.New("step budget exceeded")
)
