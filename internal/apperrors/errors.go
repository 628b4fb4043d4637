// Package apperrors defines the error taxonomy shared by the queue, the sync
// coordinator and the aggregators.
//
// Local storage failures are fatal for recording; remote failures are
// classified as unavailable (retry on the next pass) or validation (the item
// itself was rejected).
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrRemoteUnavailable means the remote store could not be reached.
	ErrRemoteUnavailable = errors.New("remote store unavailable")

	// ErrRemoteValidation means the remote store rejected a record.
	ErrRemoteValidation = errors.New("remote store rejected record")

	// ErrOffline is returned when an operation needs the network and the
	// connectivity gate reports offline.
	ErrOffline = errors.New("offline")

	// ErrInvalidAttempt is returned for attempt intents that fail validation
	// before they reach the queue.
	ErrInvalidAttempt = errors.New("invalid attempt")

	// ErrNoSession is returned when a session-scoped operation runs for a user
	// that has not logged in.
	ErrNoSession = errors.New("no active session")
)

// LocalStorageError reports a failure of the on-device store.
// Attempts cannot be recorded while it persists.
type LocalStorageError struct {
	Op  string
	Err error
}

func (e *LocalStorageError) Error() string {
	return fmt.Sprintf("local storage %s: %v", e.Op, e.Err)
}

func (e *LocalStorageError) Unwrap() error {
	return e.Err
}

// Storage wraps err as a LocalStorageError. Nil stays nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &LocalStorageError{Op: op, Err: err}
}

// IsLocalStorage reports whether err is a LocalStorageError
func IsLocalStorage(err error) bool {
	var lse *LocalStorageError
	return errors.As(err, &lse)
}

// SyncErrorKind categorizes a failed upload
type SyncErrorKind string

const (
	SyncErrorNetwork    SyncErrorKind = "network"
	SyncErrorValidation SyncErrorKind = "validation"
	SyncErrorServer     SyncErrorKind = "server"
)

// SyncError is the non-fatal error for one attempt that failed to upload.
// The attempt stays queued.
type SyncError struct {
	AttemptID string
	Kind      SyncErrorKind
	Err       error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync attempt %s (%s): %v", e.AttemptID, e.Kind, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewSyncError classifies err for the given attempt
func NewSyncError(attemptID string, err error) *SyncError {
	return &SyncError{AttemptID: attemptID, Kind: KindOf(err), Err: err}
}

// KindOf maps a remote error to a SyncErrorKind
func KindOf(err error) SyncErrorKind {
	switch {
	case errors.Is(err, ErrRemoteValidation):
		return SyncErrorValidation
	case errors.Is(err, ErrRemoteUnavailable), errors.Is(err, ErrOffline):
		return SyncErrorNetwork
	default:
		return SyncErrorServer
	}
}
