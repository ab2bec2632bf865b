package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/notesync/internal/note"
	"github.com/tildaslashalef/notesync/internal/sync"
)

type fakeEngine struct {
	online   bool
	state    sync.State
	requests []sync.Trigger
	running  bool
}

func (f *fakeEngine) RequestSync(trigger sync.Trigger) bool {
	f.requests = append(f.requests, trigger)
	return f.running
}

func (f *fakeEngine) SetOnline(online bool) {
	f.online = online
	if !online {
		f.state = sync.StatePending
	}
}

func (f *fakeEngine) Online() bool      { return f.online }
func (f *fakeEngine) State() sync.State { return f.state }
func (f *fakeEngine) LastError() string { return "" }

// fakeNotes records the edits made through the TUI
type fakeNotes struct {
	created []string
	renamed map[string]string
	removed []string
	err     error
}

func (f *fakeNotes) Create(ctx context.Context, ownerID, title, body string) (*note.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, title)
	return note.New(ownerID, title, body, time.Now()), nil
}

func (f *fakeNotes) Edit(ctx context.Context, id, ownerID string, title, body *string) (*note.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.renamed == nil {
		f.renamed = make(map[string]string)
	}
	f.renamed[id] = *title
	return &note.Record{ID: id, OwnerID: ownerID, Title: *title}, nil
}

func (f *fakeNotes) Remove(ctx context.Context, id, ownerID string, opts ...note.PutOption) error {
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, id)
	return nil
}

func newTestModel(engine *fakeEngine) Model {
	return newEditableModel(engine, &fakeNotes{})
}

func newEditableModel(engine *fakeEngine, notes *fakeNotes) Model {
	m := NewModel(context.Background(), engine, notes, "owner-1", make(chan sync.Event), func() StatusMsg { return StatusMsg{} })
	m.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return m
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	out, _ := updateWithCmd(t, m, msg)
	return out
}

func updateWithCmd(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func listed(m Model) Model {
	a := &note.Record{ID: "note-a", OwnerID: "owner-1", Title: "First", Synced: true}
	b := &note.Record{ID: "note-b", OwnerID: "owner-1", Title: "Second"}
	next, _ := m.Update(StatusMsg{Records: []*note.Record{a, b}})
	return next.(Model)
}

func TestEventsUpdateStateAndHistory(t *testing.T) {
	engine := &fakeEngine{online: true, state: sync.StatePending}
	m := newTestModel(engine)

	m = update(t, m, EventMsg{Event: sync.Event{Kind: sync.EventStateChanged, From: sync.StatePending, To: sync.StateSyncing}})
	assert.Equal(t, sync.StateSyncing, m.state)

	m = update(t, m, EventMsg{Event: sync.Event{
		Kind: sync.EventSyncCompleted,
		Push: sync.PushResult{Synced: 2},
		Pull: sync.PullResult{Inserted: 1},
	}})
	require.Len(t, m.history, 2)
	assert.Contains(t, m.history[1], "2 pushed, 1 pulled")

	m = update(t, m, EventMsg{Event: sync.Event{Kind: sync.EventSyncFailed, Message: "boom"}})
	assert.Equal(t, "boom", m.message)
	assert.Contains(t, m.View(), "boom")
}

func TestHistoryIsBounded(t *testing.T) {
	m := newTestModel(&fakeEngine{online: true})
	for i := 0; i < historySize+5; i++ {
		m = update(t, m, EventMsg{Event: sync.Event{Kind: sync.EventSyncStarted, Trigger: sync.TriggerTimer}})
	}
	assert.Len(t, m.history, historySize)
}

func TestSyncKeyRequestsManualPass(t *testing.T) {
	engine := &fakeEngine{online: true, running: true}
	m := newTestModel(engine)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	assert.Equal(t, []sync.Trigger{sync.TriggerManual}, engine.requests)
	assert.Empty(t, m.message)

	engine.running = false
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "Sync engine is not running", m.message)
}

func TestOfflineToggle(t *testing.T) {
	engine := &fakeEngine{online: true, state: sync.StateSynced}
	m := newTestModel(engine)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("o")})
	assert.False(t, m.online)
	assert.Equal(t, sync.StatePending, m.state)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	assert.Empty(t, engine.requests)
	assert.Contains(t, m.message, "Offline")
}

func TestStatusMessageFillsNoteList(t *testing.T) {
	m := newTestModel(&fakeEngine{online: true})
	now := m.now()

	synced := note.New("owner-1", "Groceries", "milk", now)
	synced.Synced = true
	draft := note.New("owner-1", "Draft", "", now)

	m = update(t, m, StatusMsg{Records: []*note.Record{synced, draft}, Pending: 1})
	view := m.View()
	assert.Contains(t, view, "Groceries")
	assert.Contains(t, view, "Draft")
	assert.Contains(t, view, "1 pending")

	m = update(t, m, StatusMsg{Err: errors.New("disk gone")})
	assert.Contains(t, m.View(), "disk gone")
	assert.Len(t, m.records, 2)
}

func TestNewNoteFromPrompt(t *testing.T) {
	notes := &fakeNotes{}
	m := newEditableModel(&fakeEngine{online: true}, notes)

	m = update(t, m, runes("n"))
	require.Equal(t, inputNew, m.editing)
	assert.Contains(t, m.View(), "New note")

	m = update(t, m, runes("Groceries q"))
	assert.False(t, m.quitting, "keys go to the prompt while it is open")

	m, cmd := updateWithCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, inputNone, m.editing)
	require.NotNil(t, cmd)

	msg := cmd()
	require.IsType(t, mutationMsg{}, msg)
	assert.Equal(t, []string{"Groceries q"}, notes.created)

	m = update(t, m, msg)
	require.NotEmpty(t, m.history)
	assert.Contains(t, m.history[len(m.history)-1], `create "Groceries q" queued`)
}

func TestEmptyTitleIsRefused(t *testing.T) {
	notes := &fakeNotes{}
	m := newEditableModel(&fakeEngine{online: true}, notes)

	m = update(t, m, runes("n"))
	m, cmd := updateWithCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, "A note needs a title", m.message)
	assert.Empty(t, notes.created)
}

func TestCancelPrompt(t *testing.T) {
	notes := &fakeNotes{}
	m := newEditableModel(&fakeEngine{online: true}, notes)

	m = update(t, m, runes("n"))
	m = update(t, m, runes("draft"))
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, inputNone, m.editing)
	assert.Empty(t, m.input.Value())
	assert.Empty(t, notes.created)
}

func TestRenameSelectedNote(t *testing.T) {
	notes := &fakeNotes{}
	m := listed(newEditableModel(&fakeEngine{online: true}, notes))

	m = update(t, m, runes("j"))
	assert.Equal(t, 1, m.cursor)
	m = update(t, m, runes("j"))
	assert.Equal(t, 1, m.cursor, "cursor stops at the last note")

	m = update(t, m, runes("e"))
	require.Equal(t, inputRename, m.editing)
	assert.Equal(t, "Second", m.input.Value())

	m.input.SetValue("Second, revised")
	m, cmd := updateWithCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	_ = update(t, m, cmd())
	assert.Equal(t, map[string]string{"note-b": "Second, revised"}, notes.renamed)
}

func TestDeleteSelectedNote(t *testing.T) {
	notes := &fakeNotes{}
	m := listed(newEditableModel(&fakeEngine{online: true}, notes))

	m, cmd := updateWithCmd(t, m, runes("x"))
	require.NotNil(t, cmd)
	m = update(t, m, cmd())
	assert.Equal(t, []string{"note-a"}, notes.removed)

	m = update(t, m, StatusMsg{Records: nil})
	assert.Zero(t, m.cursor)
	_, cmd = updateWithCmd(t, m, runes("x"))
	assert.Nil(t, cmd, "nothing to delete in an empty list")
}

func TestFailedEditIsReported(t *testing.T) {
	notes := &fakeNotes{err: errors.New("mutation queue is full")}
	m := newEditableModel(&fakeEngine{online: true}, notes)

	m = update(t, m, runes("n"))
	m = update(t, m, runes("Late"))
	m, cmd := updateWithCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	m = update(t, m, cmd())
	assert.Contains(t, m.message, "create failed: mutation queue is full")
}
