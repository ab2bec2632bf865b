package sync

import (
	"github.com/tildaslashalef/notesync/internal/note"
	"github.com/tildaslashalef/notesync/internal/sync"
)

type (
	// EventMsg carries an orchestrator lifecycle event into the program
	EventMsg struct {
		Event sync.Event
	}

	// StatusMsg is a fresh read of the local store
	StatusMsg struct {
		Records []*note.Record
		Pending int
		Latest  *sync.SyncLog
		Err     error
	}

	// mutationMsg reports the outcome of an edit made from the TUI
	mutationMsg struct {
		Op    note.Operation
		ID    string
		Title string
		Err   error
	}

	// closedMsg is sent once the event channel is closed
	closedMsg struct{}
)
