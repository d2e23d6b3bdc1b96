// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "errors"

// UnableToConnect is shown in place of model names when the directory could
// not load them.
const UnableToConnect = "Unable to connect!"

// ErrNoClient means no backend connection is configured, usually because
// the server URL is invalid.
var ErrNoClient = errors.New("no client")

// StateError reports an operation attempted in the wrong conversation
// state. It signals a broken invariant in the caller, not a user error.
type StateError struct {
	Op     string
	Reason string
}

func (e *StateError) Error() string {
	if e.Op == "" {
		return e.Reason
	}
	return e.Op + ": " + e.Reason
}

// Is makes every *StateError match ErrInvalidState.
func (e *StateError) Is(target error) bool {
	_, ok := target.(*StateError)
	return ok
}

// ErrInvalidState matches any *StateError via errors.Is.
var ErrInvalidState = &StateError{Reason: "invalid conversation state"}

// ConnectionError wraps a failure to reach the backend or to list models.
type ConnectionError struct {
	Cause error
}

func (e *ConnectionError) Error() string {
	if e.Cause == nil {
		return "unable to connect"
	}
	return "unable to connect: " + e.Cause.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// IsConnectionError reports whether err is or wraps a *ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
