package sessions

import (
	"errors"
	"fmt"
)

// Session error types
const (
	SessionErrorTypeNotFound       = "not_found"
	SessionErrorTypeAlreadyExists  = "already_exists"
	SessionErrorTypeInvalidInput   = "invalid_input"
	SessionErrorTypeProviderFailed = "provider_failed"
	SessionErrorTypeStorageFailed  = "storage_failed"
)

// ErrDequeueConflict signals that the session selected for matching was
// claimed or ended by a concurrent transaction before the update applied.
// Conflicts are expected under concurrency; callers retry a bounded number of
// times before surfacing a storage error.
var ErrDequeueConflict = errors.New("session was claimed by a concurrent dequeue")

// SessionError represents errors related to session lifecycle operations
type SessionError struct {
	Type      string
	SessionID string
	Message   string
	Cause     error
}

func (e *SessionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session error [%s] for session %s: %s (caused by: %v)", e.Type, e.SessionID, e.Message, e.Cause)
	}
	return fmt.Sprintf("session error [%s] for session %s: %s", e.Type, e.SessionID, e.Message)
}

func (e *SessionError) Unwrap() error {
	return e.Cause
}

// NewSessionNotFoundError creates an error for when a session does not exist
func NewSessionNotFoundError(sessionID string) *SessionError {
	return &SessionError{
		Type:      SessionErrorTypeNotFound,
		SessionID: sessionID,
		Message:   "session not found",
	}
}

// NewDuplicateSessionError creates an error for a session id collision on create
func NewDuplicateSessionError(sessionID string) *SessionError {
	return &SessionError{
		Type:      SessionErrorTypeAlreadyExists,
		SessionID: sessionID,
		Message:   "session already exists and cannot be created again",
	}
}

// NewInvalidInputError creates an error for a missing or malformed request field
func NewInvalidInputError(field, message string) *SessionError {
	return &SessionError{
		Type:    SessionErrorTypeInvalidInput,
		Message: fmt.Sprintf("invalid field '%s': %s", field, message),
	}
}

// NewProviderError creates an error for communication provider failures
func NewProviderError(message string, cause error) *SessionError {
	return &SessionError{
		Type:    SessionErrorTypeProviderFailed,
		Message: message,
		Cause:   cause,
	}
}

// NewStorageError creates an error for store read/write failures
func NewStorageError(sessionID, message string, cause error) *SessionError {
	return &SessionError{
		Type:      SessionErrorTypeStorageFailed,
		SessionID: sessionID,
		Message:   message,
		Cause:     cause,
	}
}

// IsErrorType reports whether err is a SessionError of the given type.
func IsErrorType(err error, errType string) bool {
	var sessionErr *SessionError
	if errors.As(err, &sessionErr) {
		return sessionErr.Type == errType
	}
	return false
}

// IsClientError reports whether err should be surfaced as a client error
// (4xx) rather than a server error (5xx).
func IsClientError(err error) bool {
	return IsErrorType(err, SessionErrorTypeNotFound) || IsErrorType(err, SessionErrorTypeInvalidInput)
}
