// Package sync renders the live sync dashboard behind `notesync sync watch`.
package sync

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tildaslashalef/notesync/internal/app"
	"github.com/tildaslashalef/notesync/internal/loggy"
	"github.com/tildaslashalef/notesync/internal/sync"
)

// eventBuffer is how many events may queue up while the program is busy
const eventBuffer = 64

// Watch runs the orchestrator in the background and shows its progress
// until the user quits
func Watch(ctx context.Context, a *app.App) error {
	ownerID, err := a.OwnerID()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	orch := a.Orchestrator
	events := make(chan sync.Event, eventBuffer)
	unsubscribe := orch.Subscribe(func(ev sync.Event) {
		// Subscribers run on the pass goroutine, never block it
		select {
		case events <- ev:
		default:
			loggy.Debug("Dropping sync event, TUI is behind", "kind", ev.Kind)
		}
	})
	defer unsubscribe()

	// edits made from the TUI sync right away, renames after the debounce
	a.Notes.OnMutation(orch.NotifyMutation)
	orch.Start(ctx)
	defer orch.Stop()

	if a.Config.Server.Enabled {
		go orch.WatchConnectivity(ctx, a.Gateway.Ping, a.Config.Sync.ConnectivityInterval)
	}

	load := func() StatusMsg {
		records, err := a.Notes.List(ctx, ownerID)
		if err != nil {
			return StatusMsg{Err: err}
		}
		pending, err := a.Queue.Count(ctx)
		if err != nil {
			return StatusMsg{Err: err}
		}
		latest, err := a.Logs.GetLatestSyncLog(ctx)
		if err != nil {
			return StatusMsg{Err: err}
		}
		return StatusMsg{Records: records, Pending: pending, Latest: latest}
	}

	loggy.Info("Starting sync watch TUI", "owner_id", ownerID)
	orch.RequestSync(sync.TriggerManual)

	p := tea.NewProgram(NewModel(ctx, orch, a.Notes, ownerID, events, load), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		loggy.Error("Error running sync TUI", "error", err)
		return fmt.Errorf("error running sync UI: %w", err)
	}

	loggy.Info("Sync TUI finished")
	return nil
}
