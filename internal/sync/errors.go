package sync

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record is missing locally or remotely.
	// Deletes treat it as already satisfied.
	ErrNotFound = errors.New("record not found")

	// ErrNetworkUnavailable is returned when the remote store cannot be
	// reached. The affected records stay pending.
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrMalformedResponse is returned when a remote response does not parse
	// into the expected envelope. It never advances a record to synced.
	ErrMalformedResponse = errors.New("malformed remote response")

	// ErrUnknownCollection is returned by the engine for a collection name it
	// does not manage.
	ErrUnknownCollection = errors.New("unknown collection")
)

// ValidationError is a local rejection of a mutation, raised before any
// write or network call. It is the only error a mutation surfaces.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// RemoteRejectedError is a structurally valid refusal from the remote store.
type RemoteRejectedError struct {
	Operation string
	Code      int
	Message   string
}

func (e *RemoteRejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote rejected %s (code %d)", e.Operation, e.Code)
	}
	return fmt.Sprintf("remote rejected %s (code %d): %s", e.Operation, e.Code, e.Message)
}

// DuplicateTokenError reports that a create carried a client token the
// remote store already accepted. RemoteID identifies the record created by
// the earlier attempt.
type DuplicateTokenError struct {
	ClientToken string
	RemoteID    string
}

func (e *DuplicateTokenError) Error() string {
	return fmt.Sprintf("client token %q already accepted as %q", e.ClientToken, e.RemoteID)
}

// TransitionError is a state machine contract violation.
type TransitionError struct {
	From        Status
	Event       Event
	HasRemoteID bool
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s on %s (remote id: %t)", e.Event, e.From, e.HasRemoteID)
}

// RecordError ties a push or pull failure to the record it happened on.
// Supports Unwrap.
type RecordError struct {
	Collection string
	LocalID    string
	Op         string
	Err        error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Collection, e.LocalID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// IsSoft reports whether err leaves the record pending for the next pass
// rather than indicating a local contract problem.
func IsSoft(err error) bool {
	var rejected *RemoteRejectedError
	return errors.Is(err, ErrNetworkUnavailable) ||
		errors.Is(err, ErrMalformedResponse) ||
		errors.As(err, &rejected)
}
