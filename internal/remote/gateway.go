// Package remote talks to the remote note collection.
//
// Gateway is the contract the sync orchestrator consumes. HTTPGateway is the
// REST implementation; remotetest provides an in-memory one for tests.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tildaslashalef/notesync/internal/note"
)

// Gateway abstracts the remote collection resource
type Gateway interface {
	// FetchAll returns every remote record of the owner
	FetchAll(ctx context.Context, ownerID string) ([]*note.Record, error)

	// FetchOne returns the remote record or nil when it does not exist
	FetchOne(ctx context.Context, id, ownerID string) (*note.Record, error)

	// Create stores a new record and returns the stored version
	Create(ctx context.Context, rec *note.Record) (*note.Record, error)

	// Update replaces the mutable fields of a record and returns the stored version
	Update(ctx context.Context, rec *note.Record) (*note.Record, error)

	// Delete removes a record. Deleting an absent record succeeds.
	Delete(ctx context.Context, id, ownerID string) error
}

// Pinger is implemented by gateways able to check connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

var (
	// ErrNotFound is returned when the remote record does not exist
	ErrNotFound = errors.New("remote record not found")

	// ErrUnconfigured is returned when no usable remote target is configured
	// or the server rejected the credentials
	ErrUnconfigured = errors.New("remote store is not configured")
)

// TransientError wraps failures worth retrying later: network errors,
// timeouts, throttling and server-side errors.
type TransientError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transient failure (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// APIError represents a permanent error response from the API
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	ErrorCode  string `json:"error"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("API error %d: %s - %s", e.StatusCode, e.ErrorCode, e.Message)
}

// IsNotFound reports whether err means the remote record is gone
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnconfigured reports whether err means there is no usable remote target
func IsUnconfigured(err error) bool {
	return errors.Is(err, ErrUnconfigured)
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// classifyStatus maps a non-2xx status code to the error taxonomy
func classifyStatus(op string, status int, apiErr APIError) error {
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s: %w (status %d)", op, ErrUnconfigured, status)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return &TransientError{Op: op, StatusCode: status, Err: apiErr}
	default:
		return apiErr
	}
}
