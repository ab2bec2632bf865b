package sync

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tildaslashalef/notesync/internal/note"
	"github.com/tildaslashalef/notesync/internal/sync"
)

// historySize bounds the event lines kept on screen
const historySize = 8

// Engine is the part of the orchestrator the TUI drives
type Engine interface {
	RequestSync(trigger sync.Trigger) bool
	SetOnline(online bool)
	Online() bool
	State() sync.State
	LastError() string
}

// Notes is the part of the record store the TUI edits through. Every change
// is journaled and reported to the orchestrator like any other local edit.
type Notes interface {
	Create(ctx context.Context, ownerID, title, body string) (*note.Record, error)
	Edit(ctx context.Context, id, ownerID string, title, body *string) (*note.Record, error)
	Remove(ctx context.Context, id, ownerID string, opts ...note.PutOption) error
}

type inputMode int

const (
	inputNone inputMode = iota
	inputNew
	inputRename
)

// Model is the Bubble Tea model for the sync watch TUI
type Model struct {
	ctx     context.Context
	engine  Engine
	notes   Notes
	ownerID string
	events  <-chan sync.Event
	load    func() StatusMsg
	now     func() time.Time
	keymap  KeyMap
	help    help.Model
	spinner spinner.Model
	input   textinput.Model
	styles  Styles

	// UI state
	width     int
	height    int
	state     sync.State
	online    bool
	message   string
	records   []*note.Record
	cursor    int
	editing   inputMode
	editingID string
	pending   int
	latest    *sync.SyncLog
	history   []string
	loadErr   string
	quitting  bool
}

// NewModel initializes the model. load is called after every pass and every
// edit to refresh the record list.
func NewModel(ctx context.Context, engine Engine, notes Notes, ownerID string, events <-chan sync.Event, load func() StatusMsg) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	theme := GruvboxTheme()
	input := textinput.New()
	input.Placeholder = "Note title"
	input.CharLimit = 200
	input.Width = 40
	input.Prompt = "> "
	input.PromptStyle = lipgloss.NewStyle().Foreground(theme.Success)
	input.TextStyle = lipgloss.NewStyle().Foreground(theme.Text)

	return Model{
		ctx:     ctx,
		engine:  engine,
		notes:   notes,
		ownerID: ownerID,
		events:  events,
		load:    load,
		now:     time.Now,
		keymap:  DefaultKeyMap(),
		help:    help.New(),
		spinner: s,
		input:   input,
		styles:  DefaultStyles(),
		state:   engine.State(),
		online:  engine.Online(),
	}
}

// Init initializes the model and returns the initial command
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent(), m.loadStatus())
}

func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return closedMsg{}
		}
		return EventMsg{Event: ev}
	}
}

func (m Model) loadStatus() tea.Cmd {
	return func() tea.Msg {
		return m.load()
	}
}

// visible is the number of notes listed on screen
func (m Model) visible() int {
	return min(len(m.records), maxListed)
}

// selected returns the note under the cursor, nil when the list is empty
func (m Model) selected() *note.Record {
	if m.cursor < 0 || m.cursor >= m.visible() {
		return nil
	}
	return m.records[m.cursor]
}

func (m Model) createNote(title string) tea.Cmd {
	ctx, notes, ownerID := m.ctx, m.notes, m.ownerID
	return func() tea.Msg {
		rec, err := notes.Create(ctx, ownerID, title, "")
		if err != nil {
			return mutationMsg{Op: note.OpCreate, Err: err}
		}
		return mutationMsg{Op: note.OpCreate, ID: rec.ID, Title: rec.Title}
	}
}

func (m Model) renameNote(id, title string) tea.Cmd {
	ctx, notes, ownerID := m.ctx, m.notes, m.ownerID
	return func() tea.Msg {
		rec, err := notes.Edit(ctx, id, ownerID, &title, nil)
		if err != nil {
			return mutationMsg{Op: note.OpUpdate, ID: id, Err: err}
		}
		return mutationMsg{Op: note.OpUpdate, ID: rec.ID, Title: rec.Title}
	}
}

func (m Model) removeNote(rec *note.Record) tea.Cmd {
	ctx, notes, ownerID := m.ctx, m.notes, m.ownerID
	id, title := rec.ID, rec.Title
	return func() tea.Msg {
		if err := notes.Remove(ctx, id, ownerID); err != nil {
			return mutationMsg{Op: note.OpDelete, ID: id, Err: err}
		}
		return mutationMsg{Op: note.OpDelete, ID: id, Title: title}
	}
}
