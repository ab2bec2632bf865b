// Package sync reconciles the local note store with the remote collection.
//
// An Orchestrator pass drains the mutation queue against the remote gateway
// (push), then folds the remote listing back into the local store (pull) and
// finally reloads its in-memory view. At most one pass runs at a time.
package sync

import (
	"time"

	"github.com/tildaslashalef/notesync/internal/note"
)

// State is the externally observed sync state
type State string

const (
	// StateSynced means the last pass succeeded and nothing is left to push
	StateSynced State = "synced"
	// StateSyncing means a pass is running
	StateSyncing State = "syncing"
	// StatePending means the device is offline or unsynced changes exist
	StatePending State = "pending"
	// StateError means the last pass failed; it falls back to pending after a delay
	StateError State = "error"
)

// Trigger names what started a pass
type Trigger string

const (
	TriggerManual       Trigger = "manual"
	TriggerTimer        Trigger = "timer"
	TriggerConnectivity Trigger = "connectivity"
	TriggerMutation     Trigger = "mutation"
)

// EventKind identifies a lifecycle event
type EventKind string

const (
	EventSyncStarted   EventKind = "sync-started"
	EventSyncCompleted EventKind = "sync-completed"
	EventSyncFailed    EventKind = "sync-failed"
	EventStateChanged  EventKind = "state-changed"
)

// Event is delivered to subscribers
type Event struct {
	Kind    EventKind
	PassID  string
	Trigger Trigger
	Push    PushResult
	Pull    PullResult
	Message string
	From    State
	To      State
	At      time.Time
}

// PushResult counts the outcome of draining the queue
type PushResult struct {
	Synced    int
	Failed    int
	Conflicts int
	Skipped   int // left queued behind an earlier failure of the same record
}

// PullResult counts the outcome of reconciling the remote listing
type PullResult struct {
	Inserted int
	Updated  int
	Removed  int
	Skipped  int // unsynced or pending local records left untouched
	Failed   int
}

// Pulled returns how many remote records were written locally
func (p PullResult) Pulled() int {
	return p.Inserted + p.Updated
}

// Result describes a completed pass
type Result struct {
	PassID      string
	Trigger     Trigger
	Push        PushResult
	Pull        PullResult
	Records     []*note.Record
	StartedAt   time.Time
	CompletedAt time.Time
}

// Duration returns how long the pass took
func (r *Result) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// SyncLog is the persisted history row of a pass
type SyncLog struct {
	ID           string    `json:"id"`
	Trigger      Trigger   `json:"trigger"`
	Success      bool      `json:"success"`
	Synced       int       `json:"synced"`
	Failed       int       `json:"failed"`
	Conflicts    int       `json:"conflicts"`
	Pulled       int       `json:"pulled"`
	Removed      int       `json:"removed"`
	ErrorMessage string    `json:"error_message,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
}

// NewSyncLog creates a log entry for a pass starting at now
func NewSyncLog(id string, trigger Trigger, now time.Time) *SyncLog {
	return &SyncLog{
		ID:          id,
		Trigger:     trigger,
		StartedAt:   now,
		CompletedAt: now,
	}
}

// MarkSuccessful records the counts of a finished pass
func (l *SyncLog) MarkSuccessful(push PushResult, pull PullResult, now time.Time) {
	l.Success = true
	l.Synced = push.Synced
	l.Failed = push.Failed
	l.Conflicts = push.Conflicts
	l.Pulled = pull.Pulled()
	l.Removed = pull.Removed
	l.CompletedAt = now
}

// MarkFailed records a failed pass
func (l *SyncLog) MarkFailed(push PushResult, errorMessage string, now time.Time) {
	l.Success = false
	l.Synced = push.Synced
	l.Failed = push.Failed
	l.Conflicts = push.Conflicts
	l.ErrorMessage = errorMessage
	l.CompletedAt = now
}

// Duration returns how long the pass took
func (l *SyncLog) Duration() time.Duration {
	return l.CompletedAt.Sub(l.StartedAt)
}
