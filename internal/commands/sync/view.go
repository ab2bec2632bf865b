package sync

import (
	"fmt"
	"strings"

	"github.com/tildaslashalef/notesync/internal/sync"
	"github.com/tildaslashalef/notesync/internal/utils"
)

// maxListed bounds the notes shown in the list section
const maxListed = 10

// View renders the sync watch TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	status := m.styles.State(string(m.state))
	if m.state == sync.StateSyncing {
		status = m.spinner.View() + " " + status
	}
	connectivity := "online"
	if !m.online {
		connectivity = "offline"
	}

	sb.WriteString(m.styles.Title.Render("notesync"))
	sb.WriteString("  ")
	sb.WriteString(status)
	sb.WriteString(m.styles.Subtle.Render(fmt.Sprintf("  %s · %d pending", connectivity, m.pending)))
	sb.WriteString("\n")

	if m.latest != nil {
		sb.WriteString(m.styles.Subtle.Render(fmt.Sprintf("last pass %s (%s)",
			utils.FormatAgo(m.latest.CompletedAt, m.now()), m.latest.Trigger)))
		sb.WriteString("\n")
	}
	if m.message != "" {
		sb.WriteString(m.styles.Error.Render(m.message))
		sb.WriteString("\n")
	}
	if m.loadErr != "" {
		sb.WriteString(m.styles.Error.Render("status: " + m.loadErr))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	sb.WriteString(m.styles.Section.Render(m.renderNotes()))
	sb.WriteString("\n")

	switch m.editing {
	case inputNew:
		sb.WriteString(m.styles.Subtle.Render("New note") + "\n" + m.input.View() + "\n")
	case inputRename:
		sb.WriteString(m.styles.Subtle.Render("Rename note") + "\n" + m.input.View() + "\n")
	}

	if len(m.history) > 0 {
		sb.WriteString(m.styles.Paragraph.Render(strings.Join(m.history, "\n")))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(m.help.View(m.keymap))
	return sb.String()
}

func (m Model) renderNotes() string {
	if len(m.records) == 0 {
		return m.styles.Subtle.Render("No notes yet")
	}

	width := m.width - 30
	if width < 20 {
		width = 40
	}

	lines := make([]string, 0, maxListed+1)
	for i, rec := range m.records {
		if i == maxListed {
			lines = append(lines, m.styles.Subtle.Render(fmt.Sprintf("… %d more", len(m.records)-maxListed)))
			break
		}
		marker := "●"
		if !rec.Synced {
			marker = "○"
		}
		pointer := " "
		if i == m.cursor {
			pointer = "›"
		}
		lines = append(lines, fmt.Sprintf("%s %s %s %s", pointer, marker,
			utils.Truncate(rec.Title, width),
			m.styles.Subtle.Render(utils.FormatAgo(rec.ModifiedAt, m.now()))))
	}
	return strings.Join(lines, "\n")
}
