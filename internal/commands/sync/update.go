package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tildaslashalef/notesync/internal/loggy"
	"github.com/tildaslashalef/notesync/internal/sync"
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tea.KeyMsg:
		if m.editing != inputNone {
			return m.updateInput(msg)
		}

		switch {
		case key.Matches(msg, m.keymap.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keymap.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keymap.Sync):
			if !m.online {
				m.message = "Offline, changes stay queued"
			} else if !m.engine.RequestSync(sync.TriggerManual) {
				m.message = "Sync engine is not running"
			}
		case key.Matches(msg, m.keymap.Online):
			m.engine.SetOnline(!m.online)
			m.online = m.engine.Online()
			m.state = m.engine.State()
		case key.Matches(msg, m.keymap.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keymap.Down):
			if m.cursor < m.visible()-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keymap.New):
			var cmd tea.Cmd
			m, cmd = m.startInput(inputNew, "", "")
			cmds = append(cmds, cmd)
		case key.Matches(msg, m.keymap.Rename):
			if rec := m.selected(); rec != nil {
				var cmd tea.Cmd
				m, cmd = m.startInput(inputRename, rec.ID, rec.Title)
				cmds = append(cmds, cmd)
			}
		case key.Matches(msg, m.keymap.Delete):
			if rec := m.selected(); rec != nil && m.notes != nil {
				cmds = append(cmds, m.removeNote(rec))
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case EventMsg:
		m = m.applyEvent(msg.Event)
		cmds = append(cmds, m.waitForEvent())
		if msg.Event.Kind == sync.EventSyncCompleted || msg.Event.Kind == sync.EventSyncFailed {
			cmds = append(cmds, m.loadStatus())
		}

	case StatusMsg:
		if msg.Err != nil {
			m.loadErr = msg.Err.Error()
			loggy.Warn("Failed to load sync status", "error", msg.Err)
			break
		}
		m.loadErr = ""
		m.records = msg.Records
		m.pending = msg.Pending
		m.latest = msg.Latest
		if m.cursor >= m.visible() {
			m.cursor = max(m.visible()-1, 0)
		}

	case mutationMsg:
		if msg.Err != nil {
			m.message = fmt.Sprintf("%s failed: %s", msg.Op, msg.Err)
			loggy.Warn("Note edit from sync TUI failed", "op", msg.Op, "id", msg.ID, "error", msg.Err)
		} else {
			m.message = ""
			m = m.addHistory(m.now(), fmt.Sprintf("%s %q queued", msg.Op, msg.Title))
		}
		cmds = append(cmds, m.loadStatus())

	case closedMsg:
		return m, tea.Quit
	}

	return m, tea.Batch(cmds...)
}

// applyEvent folds an orchestrator event into the view state
func (m Model) applyEvent(ev sync.Event) Model {
	var line string
	switch ev.Kind {
	case sync.EventStateChanged:
		m.state = ev.To
		m.online = m.engine.Online()
		line = fmt.Sprintf("state %s → %s", ev.From, ev.To)
	case sync.EventSyncStarted:
		m.message = ""
		line = fmt.Sprintf("pass started (%s)", ev.Trigger)
	case sync.EventSyncCompleted:
		line = fmt.Sprintf("pass done: %d pushed, %d pulled, %d removed, %d conflicts",
			ev.Push.Synced, ev.Pull.Pulled(), ev.Pull.Removed, ev.Push.Conflicts)
	case sync.EventSyncFailed:
		m.message = ev.Message
		line = "pass failed: " + ev.Message
	default:
		return m
	}

	stamp := ev.At
	if stamp.IsZero() {
		stamp = m.now()
	}
	return m.addHistory(stamp, line)
}

func (m Model) addHistory(at time.Time, line string) Model {
	m.history = append(m.history, fmt.Sprintf("%s  %s", at.Local().Format("15:04:05"), line))
	if len(m.history) > historySize {
		m.history = m.history[len(m.history)-historySize:]
	}
	return m
}

// startInput opens the title prompt
func (m Model) startInput(mode inputMode, id, title string) (Model, tea.Cmd) {
	if m.notes == nil {
		m.message = "Editing is not available"
		return m, nil
	}
	m.editing = mode
	m.editingID = id
	m.input.SetValue(title)
	m.input.CursorEnd()
	return m, m.input.Focus()
}

func (m Model) stopInput() Model {
	m.editing = inputNone
	m.editingID = ""
	m.input.Blur()
	m.input.Reset()
	return m
}

// updateInput routes keys to the title prompt while it is open
func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keymap.Cancel):
		return m.stopInput(), nil
	case key.Matches(msg, m.keymap.Submit):
		title := strings.TrimSpace(m.input.Value())
		mode, id := m.editing, m.editingID
		m = m.stopInput()
		if title == "" {
			m.message = "A note needs a title"
			return m, nil
		}
		if mode == inputNew {
			return m, m.createNote(title)
		}
		return m, m.renameNote(id, title)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}
