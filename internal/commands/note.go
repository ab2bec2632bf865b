package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tildaslashalef/notesync/internal/app"
	"github.com/tildaslashalef/notesync/internal/loggy"
	"github.com/tildaslashalef/notesync/internal/note"
	"github.com/tildaslashalef/notesync/internal/sync"
	"github.com/tildaslashalef/notesync/internal/ulid"
	"github.com/tildaslashalef/notesync/internal/utils"
	"github.com/urfave/cli/v2"
)

var syncAfterFlag = &cli.BoolFlag{
	Name:  "sync",
	Usage: "Run a sync pass right after the change",
}

// NoteCommand returns the CLI command for working with local notes
func NoteCommand() *cli.Command {
	return &cli.Command{
		Name:  "note",
		Usage: "Create, edit and browse notes",
		Description: "Every change is stored locally first and queued for the server, " +
			"so these commands work offline.",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Create a note",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Note title", Required: true},
					&cli.StringFlag{Name: "body", Aliases: []string{"b"}, Usage: "Note body (markdown)"},
					&cli.PathFlag{Name: "file", Aliases: []string{"f"}, Usage: "Read the body from a file"},
					syncAfterFlag,
				},
				Action: noteAddAction,
			},
			{
				Name:      "edit",
				Usage:     "Change the title or body of a note",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "New title"},
					&cli.StringFlag{Name: "body", Aliases: []string{"b"}, Usage: "New body (markdown)"},
					&cli.PathFlag{Name: "file", Aliases: []string{"f"}, Usage: "Read the new body from a file"},
					syncAfterFlag,
				},
				Action: noteEditAction,
			},
			{
				Name:      "rm",
				Aliases:   []string{"delete"},
				Usage:     "Delete a note",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{syncAfterFlag},
				Action:    noteRemoveAction,
			},
			{
				Name:    "ls",
				Aliases: []string{"list"},
				Usage:   "List notes, most recently modified first",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "page", Usage: "Page to show", Value: 1},
				},
				Action: noteListAction,
			},
			{
				Name:      "show",
				Usage:     "Render a note",
				ArgsUsage: "<id>",
				Action:    noteShowAction,
			},
		},
	}
}

// noteContext resolves the application and the owner every command is scoped by
func noteContext(c *cli.Context) (*app.App, string, error) {
	application, err := app.FromContext(c)
	if err != nil {
		return nil, "", err
	}
	ownerID, err := application.OwnerID()
	if err != nil {
		utils.PrintError(err.Error())
		return nil, "", err
	}
	return application, ownerID, nil
}

// bodyFromFlags returns the body given by --body or --file and whether one was given
func bodyFromFlags(c *cli.Context) (string, bool, error) {
	if c.IsSet("file") {
		data, err := os.ReadFile(c.Path("file"))
		if err != nil {
			return "", false, fmt.Errorf("reading body file: %w", err)
		}
		return string(data), true, nil
	}
	if c.IsSet("body") {
		return c.String("body"), true, nil
	}
	return "", false, nil
}

func noteIDArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one note id")
	}
	return c.Args().First(), nil
}

// noteLookupError adds a hint when a missing note was addressed by something
// that is not a note id at all
func noteLookupError(id string, err error) error {
	if errors.Is(err, note.ErrNoteNotFound) && !ulid.IsKind(id, ulid.PrefixNote) {
		return fmt.Errorf("%w: %q is not a note id (expected %s%s<ULID>)", err, id, ulid.PrefixNote, ulid.PrefixSeparator)
	}
	return err
}

// syncAfter runs one pass when --sync was given. A failed pass leaves the
// change queued, so it is reported but not returned.
func syncAfter(c *cli.Context, application *app.App) {
	if !c.Bool("sync") {
		return
	}

	result, err := application.Orchestrator.Sync(c.Context, sync.TriggerMutation)
	switch {
	case errors.Is(err, sync.ErrOffline):
		utils.PrintWarning("Offline, the change stays queued")
	case err != nil:
		loggy.Warn("Sync after change failed", "error", err)
		utils.PrintWarning(fmt.Sprintf("Sync failed, the change stays queued: %s", err))
	default:
		utils.PrintSuccess(fmt.Sprintf("Synced (%d pushed, %d pulled)", result.Push.Synced, result.Pull.Pulled()))
	}
}

func noteAddAction(c *cli.Context) error {
	application, ownerID, err := noteContext(c)
	if err != nil {
		return err
	}

	body, _, err := bodyFromFlags(c)
	if err != nil {
		return err
	}

	rec, err := application.Notes.Create(c.Context, ownerID, c.String("title"), body)
	if err != nil {
		utils.PrintError(fmt.Sprintf("Failed to create note: %s", err))
		return fmt.Errorf("creating note: %w", err)
	}

	utils.PrintSuccess("Created note " + rec.ID)
	syncAfter(c, application)
	return nil
}

func noteEditAction(c *cli.Context) error {
	application, ownerID, err := noteContext(c)
	if err != nil {
		return err
	}
	id, err := noteIDArg(c)
	if err != nil {
		return err
	}

	var title, body *string
	if c.IsSet("title") {
		t := c.String("title")
		title = &t
	}
	newBody, ok, err := bodyFromFlags(c)
	if err != nil {
		return err
	}
	if ok {
		body = &newBody
	}
	if title == nil && body == nil {
		return fmt.Errorf("nothing to change, pass --title, --body or --file")
	}

	rec, err := application.Notes.Edit(c.Context, id, ownerID, title, body)
	if err != nil {
		err = noteLookupError(id, err)
		utils.PrintError(fmt.Sprintf("Failed to edit note: %s", err))
		return fmt.Errorf("editing note: %w", err)
	}

	utils.PrintSuccess("Updated note " + rec.ID)
	syncAfter(c, application)
	return nil
}

func noteRemoveAction(c *cli.Context) error {
	application, ownerID, err := noteContext(c)
	if err != nil {
		return err
	}
	id, err := noteIDArg(c)
	if err != nil {
		return err
	}

	// Deleting an id unknown locally still queues a remote delete, so a
	// malformed one is refused instead of queued.
	if !ulid.IsKind(id, ulid.PrefixNote) {
		if _, err := application.Notes.Get(c.Context, id); err != nil {
			err = noteLookupError(id, err)
			utils.PrintError(fmt.Sprintf("Failed to delete note: %s", err))
			return fmt.Errorf("deleting note: %w", err)
		}
	}

	if err := application.Notes.Remove(c.Context, id, ownerID); err != nil {
		utils.PrintError(fmt.Sprintf("Failed to delete note: %s", err))
		return fmt.Errorf("deleting note: %w", err)
	}

	utils.PrintSuccess("Deleted note " + id)
	syncAfter(c, application)
	return nil
}

// ListNotesAction prints the owner's notes; it is also the default action
func ListNotesAction(c *cli.Context) error {
	return noteListAction(c)
}

func noteListAction(c *cli.Context) error {
	application, ownerID, err := noteContext(c)
	if err != nil {
		return err
	}

	records, err := application.Notes.List(c.Context, ownerID)
	if err != nil {
		return fmt.Errorf("listing notes: %w", err)
	}
	if len(records) == 0 {
		utils.PrintInfo("No notes yet, create one with 'notesync note add --title <title>'")
		return nil
	}

	now := time.Now()
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		status := "synced"
		if !rec.Synced {
			status = "pending"
		}
		rows = append(rows, []string{
			rec.ID,
			utils.Truncate(rec.Title, 32),
			utils.Truncate(rec.Body, 48),
			utils.FormatAgo(rec.ModifiedAt, now),
			utils.StateColors(status).Sprint(status),
		})
	}

	opts := utils.DefaultTableOptions()
	opts.Title = fmt.Sprintf("Notes (%d)", len(records))
	opts.EnablePagination = true
	opts.PageSize = 20
	opts.CurrentPage = c.Int("page")
	utils.PrintTable([]string{"ID", "Title", "Body", "Modified", "Status"}, rows, opts)
	return nil
}

func noteShowAction(c *cli.Context) error {
	application, ownerID, err := noteContext(c)
	if err != nil {
		return err
	}
	id, err := noteIDArg(c)
	if err != nil {
		return err
	}

	rec, err := application.Notes.Get(c.Context, id)
	if err == nil && rec.OwnerID != ownerID {
		err = note.ErrNoteNotFound
	}
	if err != nil {
		err = noteLookupError(id, err)
		utils.PrintError(fmt.Sprintf("Failed to load note: %s", err))
		return fmt.Errorf("loading note: %w", err)
	}

	utils.PrintHeading(rec.Title)
	utils.PrintKeyValue("ID", rec.ID)
	utils.PrintKeyValue("Created", rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	utils.PrintKeyValue("Modified", rec.ModifiedAt.Local().Format("2006-01-02 15:04:05"))
	status := "synced"
	if !rec.Synced {
		status = "pending"
	}
	utils.PrintKeyValueWithColor("Status", status, utils.StateColors(status))
	utils.PrintDivider()
	fmt.Print(utils.RenderMarkdown(rec.Body, 80))
	return nil
}
