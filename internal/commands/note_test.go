package commands

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tildaslashalef/notesync/internal/note"
	"github.com/tildaslashalef/notesync/internal/ulid"
)

func TestNoteLookupError(t *testing.T) {
	err := noteLookupError("groceries", note.ErrNoteNotFound)
	assert.ErrorIs(t, err, note.ErrNoteNotFound)
	assert.Contains(t, err.Error(), `"groceries" is not a note id`)

	id := ulid.NoteID()
	assert.Equal(t, note.ErrNoteNotFound, noteLookupError(id, note.ErrNoteNotFound), "well formed ids get no hint")

	other := errors.New("database is locked")
	assert.Equal(t, other, noteLookupError("groceries", other))
}

func TestNoteListUsageMatchesOrdering(t *testing.T) {
	for _, cmd := range NoteCommand().Subcommands {
		if cmd.Name == "ls" {
			assert.Contains(t, cmd.Usage, "most recently modified first")
			return
		}
	}
	t.Fatal("note ls command not found")
}
