// Package queue is the durable, ordered log of local note mutations waiting
// to be applied to the remote store.
package queue

import (
	"errors"
	"time"

	"github.com/tildaslashalef/notesync/internal/note"
)

// ErrQueueFull is returned by Enqueue when the configured limit is reached
var ErrQueueFull = errors.New("mutation queue is full")

// Entry is a pending mutation. SequenceID alone defines processing order;
// QueuedAt is informational.
type Entry struct {
	SequenceID int64          `json:"sequence_id"`
	Operation  note.Operation `json:"operation"`
	Record     note.Record    `json:"record"`
	QueuedAt   time.Time      `json:"queued_at"`
}
