// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

// =============================================================================
// TASK STATUS
// =============================================================================

// Status represents the current state of a fetch task.
type Status string

const (
	// StatusQueued indicates the task was built but not started
	StatusQueued Status = "Queued"

	// StatusRunning indicates the request is in flight
	StatusRunning Status = "Running"

	// StatusComplete indicates the stream ended normally
	StatusComplete Status = "Complete"

	// StatusFailed indicates the request or the stream failed
	StatusFailed Status = "Failed"

	// StatusCanceled indicates the user stopped the reply
	StatusCanceled Status = "Canceled"
)

// String returns the string representation of the task status.
func (s Status) String() string {
	return string(s)
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusCanceled
}

// validTransition reports whether a task may move from one status to
// another: Queued -> Running -> Complete/Failed/Canceled.
func validTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusQueued:
		return to == StatusRunning || to == StatusCanceled
	case StatusRunning:
		return to.Terminal()
	default:
		return false
	}
}
