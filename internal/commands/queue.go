package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tildaslashalef/notesync/internal/app"
	"github.com/tildaslashalef/notesync/internal/utils"
	"github.com/urfave/cli/v2"
)

// QueueCommand returns the CLI command for inspecting the mutation queue
func QueueCommand() *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "Inspect local changes waiting to be pushed",
		Subcommands: []*cli.Command{
			{
				Name:    "ls",
				Aliases: []string{"list"},
				Usage:   "List queued mutations in push order",
				Action:  queueListAction,
			},
			{
				Name:  "clear",
				Usage: "Drop every queued mutation without pushing it",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Do not ask for confirmation"},
				},
				Action: queueClearAction,
			},
		},
	}
}

func queueListAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	entries, err := application.Queue.Drain(c.Context)
	if err != nil {
		return fmt.Errorf("reading queue: %w", err)
	}
	if len(entries) == 0 {
		utils.PrintSuccess("Nothing queued, everything is pushed")
		return nil
	}

	now := time.Now()
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{
			strconv.FormatInt(entry.SequenceID, 10),
			string(entry.Operation),
			entry.Record.ID,
			utils.Truncate(entry.Record.Title, 32),
			utils.FormatAgo(entry.QueuedAt, now),
		})
	}

	opts := utils.DefaultTableOptions()
	opts.Title = fmt.Sprintf("Queued mutations (%d)", len(entries))
	utils.PrintTable([]string{"Seq", "Op", "Note", "Title", "Queued"}, rows, opts)
	return nil
}

func queueClearAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	count, err := application.Queue.Count(c.Context)
	if err != nil {
		return fmt.Errorf("counting queue: %w", err)
	}
	if count == 0 {
		utils.PrintInfo("Queue is already empty")
		return nil
	}

	if !c.Bool("yes") {
		utils.PrintWarning(fmt.Sprintf("This drops %d unpushed change(s). Re-run with --yes to confirm.", count))
		return nil
	}

	if err := application.Queue.Clear(c.Context); err != nil {
		return fmt.Errorf("clearing queue: %w", err)
	}
	utils.PrintSuccess(fmt.Sprintf("Dropped %d queued change(s)", count))
	return nil
}
