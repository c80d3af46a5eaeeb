package sendqueue

import (
	"errors"
	"fmt"

	"github.com/roach88/bizsync/internal/transport"
)

var (
	// ErrDrainInProgress is returned by DrainOnce when another drain runs.
	ErrDrainInProgress = errors.New("drain already in progress")

	// ErrInvalidPayload marks an entry that can never be delivered.
	ErrInvalidPayload = transport.ErrInvalidPayload

	// ErrInvalidRequest is returned by Enqueue for a request that could
	// never be delivered.
	ErrInvalidRequest = errors.New("invalid request")
)

// DeliveryErrorCode categorizes a failed delivery attempt.
type DeliveryErrorCode string

const (
	// CodeInvalidPayload: the entry is structurally wrong; never retried.
	CodeInvalidPayload DeliveryErrorCode = "INVALID_PAYLOAD"

	// CodeRemote: the remote rejected or failed the request; retried.
	CodeRemote DeliveryErrorCode = "REMOTE"

	// CodeTimeout: the attempt exceeded its timeout; retried.
	CodeTimeout DeliveryErrorCode = "TIMEOUT"

	// CodePanic: the transport panicked; retried.
	CodePanic DeliveryErrorCode = "PANIC"
)

// DeliveryError describes one failed attempt to deliver a queue entry.
type DeliveryError struct {
	Code    DeliveryErrorCode
	EntryID int64
	Err     error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s: entry %d: %v", e.Code, e.EntryID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsInvalidPayload reports whether err means the entry can never succeed.
// Uses errors.As and errors.Is to handle wrapped errors.
func IsInvalidPayload(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Code == CodeInvalidPayload
	}
	return errors.Is(err, ErrInvalidPayload)
}

// IsTimeout reports whether err is a delivery timeout.
func IsTimeout(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Code == CodeTimeout
	}
	return false
}
