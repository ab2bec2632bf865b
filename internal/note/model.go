// Package note holds the synchronized note record and its local store.
//
// A record's Synced flag is true when the local copy is known to match the
// remote store. Every local mutation that is not itself the application of
// confirmed remote data is recorded in a Journal so it can be pushed later.
package note

import (
	"errors"
	"time"

	"github.com/tildaslashalef/notesync/internal/ulid"
)

var (
	// ErrNoteNotFound is returned when no record exists for an id
	ErrNoteNotFound = errors.New("note not found")

	// ErrOwnerMismatch is returned when a mutation names a different owner
	// than the stored record
	ErrOwnerMismatch = errors.New("note belongs to a different owner")

	// ErrInvalidNote is returned for records missing an id or owner
	ErrInvalidNote = errors.New("note requires an id and an owner")
)

// Operation is a queued mutation kind
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether o is a known operation
func (o Operation) Valid() bool {
	switch o {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Record is a single note.
//
// BaseModifiedAt is the ModifiedAt of the remote copy this device last
// confirmed, zero when the record never reached the remote. It stays local
// and is never sent over the wire.
type Record struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
	ModifiedAt     time.Time `json:"modified_at"`
	Synced         bool      `json:"synced"`
	BaseModifiedAt time.Time `json:"-"`
}

// New builds an unsynced record with a fresh id, stamped at now
func New(ownerID, title, body string, now time.Time) *Record {
	now = now.UTC()
	return &Record{
		ID:         ulid.NoteID(),
		OwnerID:    ownerID,
		Title:      title,
		Body:       body,
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

// Clone returns a copy of r
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// SameContent reports whether r and other carry the same title and body
func (r *Record) SameContent(other *Record) bool {
	return r.Title == other.Title && r.Body == other.Body
}

// Validate checks the fields every stored record needs
func (r *Record) Validate() error {
	if r == nil || r.ID == "" || r.OwnerID == "" {
		return ErrInvalidNote
	}
	return nil
}

// NextModified returns the modification stamp for an edit made at now to a
// record last modified at prev. The result never moves backwards, so
// ModifiedAt stays monotonic for a single writer even if the clock does.
func NextModified(prev, now time.Time) time.Time {
	now = now.UTC()
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Millisecond).UTC()
}
