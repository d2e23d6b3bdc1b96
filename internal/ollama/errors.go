// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import "errors"

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches another *ClientError of the same Type, so the sentinels below
// work with errors.Is even when a call returns a fresh error with a cause.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return t.Type == e.Type && t.Type != ErrTypeUnknown
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeModelNotFound
	ErrTypeConnection
	ErrTypeInvalidResponse
	ErrTypeInvalidURL
	// ErrTypeStreamFragment marks a single bad line inside an otherwise
	// healthy stream. The stream stays readable.
	ErrTypeStreamFragment
)

func (t ErrorType) String() string {
	switch t {
	case ErrTypeNotRunning:
		return "not_running"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeModelNotFound:
		return "model_not_found"
	case ErrTypeConnection:
		return "connection"
	case ErrTypeInvalidResponse:
		return "invalid_response"
	case ErrTypeInvalidURL:
		return "invalid_url"
	case ErrTypeStreamFragment:
		return "stream_fragment"
	default:
		return "unknown"
	}
}

// Sentinel errors for easy checking.
var (
	ErrNotRunning     = &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running"}
	ErrTimeout        = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrModelNotFound  = &ClientError{Type: ErrTypeModelNotFound, Message: "model not found"}
	ErrInvalidURL     = &ClientError{Type: ErrTypeInvalidURL, Message: "invalid server URL"}
	ErrStreamFragment = &ClientError{Type: ErrTypeStreamFragment, Message: "stream fragment error"}
)

// =============================================================================
// ERROR HELPERS
// =============================================================================

func typeOf(err error) ErrorType {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Type
	}
	return ErrTypeUnknown
}

// IsNotRunning reports whether err means the server could not be reached.
func IsNotRunning(err error) bool {
	return typeOf(err) == ErrTypeNotRunning
}

// IsTimeout reports whether err is a timeout.
func IsTimeout(err error) bool {
	return typeOf(err) == ErrTypeTimeout
}

// IsModelNotFound reports whether the server did not know the model.
func IsModelNotFound(err error) bool {
	return typeOf(err) == ErrTypeModelNotFound
}

// IsStreamFragment reports whether err concerns one fragment of a stream
// and reading may continue.
func IsStreamFragment(err error) bool {
	return typeOf(err) == ErrTypeStreamFragment
}
