package engine

import (
	"errors"
	"fmt"
)

// SyncError reports a failed handle attempt.
//
// Sync errors are never returned from Handle; they are carried in
// Result.Err and surfaced through the Notifier. Every code is recoverable:
// the mirror is left consistent with the last known-good remote state and the
// next save of the object retries.
type SyncError struct {
	// Code identifies the error category.
	Code SyncErrorCode

	Action     Action
	ObjectType string
	LocalID    string

	// RemoteID is set when the failure concerns a known remote resource.
	RemoteID string

	Err error
}

// SyncErrorCode categorizes sync errors.
type SyncErrorCode string

const (
	// ErrCodeRemoteCall indicates create/update/delete against the catalog
	// failed (network, auth, validation, timeout).
	ErrCodeRemoteCall SyncErrorCode = "REMOTE_CALL_FAILED"

	// ErrCodeStateRead indicates the mirror lookup failed.
	ErrCodeStateRead SyncErrorCode = "STATE_READ_FAILED"

	// ErrCodeStateWrite indicates the remote call succeeded but the mirror
	// could not be updated.
	ErrCodeStateWrite SyncErrorCode = "STATE_WRITE_FAILED"

	// ErrCodePayload indicates the payload could not be encoded.
	ErrCodePayload SyncErrorCode = "PAYLOAD_FAILED"

	// ErrCodeInvalidAction indicates an action other than insert, update or delete.
	ErrCodeInvalidAction SyncErrorCode = "INVALID_ACTION"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	subject := fmt.Sprintf("%s %s/%s", e.Action, e.ObjectType, e.LocalID)
	if e.RemoteID != "" {
		subject += fmt.Sprintf(" (remote %s)", e.RemoteID)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, subject)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, subject, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// IsRemoteCallError returns true if the error is a failed catalog call.
// Uses errors.As to handle wrapped errors.
func IsRemoteCallError(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == ErrCodeRemoteCall
	}
	return false
}

// IsStateError returns true if the error is a mirror read or write failure.
func IsStateError(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == ErrCodeStateRead || se.Code == ErrCodeStateWrite
	}
	return false
}
