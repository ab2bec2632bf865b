package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/notesync/internal/app"
	synctui "github.com/tildaslashalef/notesync/internal/commands/sync"
	"github.com/tildaslashalef/notesync/internal/conflict"
	"github.com/tildaslashalef/notesync/internal/loggy"
	"github.com/tildaslashalef/notesync/internal/sync"
	"github.com/tildaslashalef/notesync/internal/utils"
)

// SyncCommand returns the CLI command for syncing notes with the server
func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Sync local notes with the server",
		Description: "Without a subcommand, runs one full pass: queued local changes are " +
			"pushed, then the server listing is pulled into the local store.",
		Subcommands: []*cli.Command{
			{
				Name:   "push",
				Usage:  "Push queued local changes only",
				Action: syncPushAction,
			},
			{
				Name:   "pull",
				Usage:  "Pull the server listing only",
				Action: syncPullAction,
			},
			{
				Name:        "status",
				Usage:       "Show sync status",
				Description: "Display pending changes and the most recent sync passes",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Usage: "Number of passes to show", Value: 10},
				},
				Action: syncStatusAction,
			},
			{
				Name:        "watch",
				Usage:       "Keep syncing in the background and show a live dashboard",
				Description: "Runs periodic, connectivity and change triggered passes until you quit",
				Action: func(c *cli.Context) error {
					application, err := app.FromContext(c)
					if err != nil {
						return err
					}
					return synctui.Watch(c.Context, application)
				},
			},
			{
				Name:        "config",
				Usage:       "Configure sync settings",
				Description: "Settings are stored in the local database and override the .env file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "server", Usage: "Server base URL"},
					&cli.StringFlag{Name: "token", Usage: "Bearer token for the server"},
					&cli.StringFlag{Name: "owner", Usage: "Owner id every note is scoped by"},
					&cli.StringFlag{
						Name:  "strategy",
						Usage: "Conflict strategy (" + strategyNames() + ")",
					},
					&cli.StringFlag{Name: "device-name", Usage: "Device name sent to the server"},
					&cli.BoolFlag{Name: "enabled", Usage: "Enable or disable syncing"},
				},
				Action: syncConfigAction,
			},
		},
		Action: syncAction,
	}
}

func strategyNames() string {
	names := make([]string, 0, len(conflict.Strategies()))
	for _, s := range conflict.Strategies() {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

// syncApp resolves the application and refuses to run without an owner
func syncApp(c *cli.Context) (*app.App, error) {
	application, err := app.FromContext(c)
	if err != nil {
		return nil, err
	}
	if _, err := application.OwnerID(); err != nil {
		utils.PrintError(err.Error())
		return nil, err
	}
	if !application.Config.Server.Enabled {
		utils.PrintWarning("Sync is disabled, enable it with 'notesync sync config --enabled'")
		return nil, sync.ErrOffline
	}
	return application, nil
}

// reportSyncError explains a pass that did not run or did not finish
func reportSyncError(err error) error {
	switch {
	case errors.Is(err, sync.ErrSyncInProgress):
		utils.PrintWarning("Another sync is already running")
		return nil
	case errors.Is(err, sync.ErrOffline):
		utils.PrintWarning("Server unreachable or not configured, changes stay queued")
		return nil
	default:
		utils.PrintError(fmt.Sprintf("Sync failed: %s", err))
		return err
	}
}

// syncAction runs a single pass
func syncAction(c *cli.Context) error {
	application, err := syncApp(c)
	if err != nil {
		return err
	}

	loggy.Info("Starting manual sync")
	result, err := application.Orchestrator.Sync(c.Context, sync.TriggerManual)
	if err != nil {
		return reportSyncError(err)
	}

	utils.PrintHeading("Sync complete")
	printPushResult(result.Push)
	printPullResult(result.Pull)
	utils.PrintKeyValue("Notes", strconv.Itoa(len(result.Records)))
	utils.PrintKeyValue("Duration", result.Duration().Round(time.Millisecond).String())
	state := string(application.Orchestrator.State())
	utils.PrintKeyValueWithColor("State", state, utils.StateColors(state))
	return nil
}

func syncPushAction(c *cli.Context) error {
	application, err := syncApp(c)
	if err != nil {
		return err
	}

	res, err := application.Orchestrator.Push(c.Context)
	if err != nil {
		return reportSyncError(err)
	}
	utils.PrintHeading("Push complete")
	printPushResult(res)
	return nil
}

func syncPullAction(c *cli.Context) error {
	application, err := syncApp(c)
	if err != nil {
		return err
	}

	res, err := application.Orchestrator.Pull(c.Context)
	if err != nil {
		return reportSyncError(err)
	}
	utils.PrintHeading("Pull complete")
	printPullResult(res)
	return nil
}

func printPushResult(res sync.PushResult) {
	utils.PrintKeyValue("Pushed", strconv.Itoa(res.Synced))
	if res.Conflicts > 0 {
		utils.PrintKeyValueWithColor("Conflicts resolved", strconv.Itoa(res.Conflicts), utils.Theme.Warning)
	}
	if res.Failed > 0 || res.Skipped > 0 {
		utils.PrintKeyValueWithColor("Still queued", strconv.Itoa(res.Failed+res.Skipped), utils.Theme.Error)
	}
}

func printPullResult(res sync.PullResult) {
	utils.PrintKeyValue("Pulled", fmt.Sprintf("%d new, %d updated", res.Inserted, res.Updated))
	utils.PrintKeyValue("Removed", strconv.Itoa(res.Removed))
	if res.Skipped > 0 {
		utils.PrintKeyValueWithColor("Kept local", strconv.Itoa(res.Skipped), utils.Theme.Subtle)
	}
}

// syncStatusAction handles showing sync status
func syncStatusAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	ctx := c.Context

	pending, err := application.Queue.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting queue: %w", err)
	}

	utils.PrintHeading("Sync Status")
	utils.PrintKeyValueWithColor("Server URL", orDash(application.Config.Server.URL), utils.Theme.Info)
	utils.PrintKeyValueWithColor("Owner", orDash(application.Config.Sync.OwnerID), utils.Theme.Info)
	utils.PrintKeyValueWithColor("Strategy", application.Config.Sync.Strategy, utils.Theme.Info)
	utils.PrintKeyValueWithColor("Enabled", strconv.FormatBool(application.Config.Server.Enabled), utils.Theme.Info)
	if ownerID := application.Config.Sync.OwnerID; ownerID != "" {
		total, unsynced, err := application.Notes.Repository().Counts(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("counting notes: %w", err)
		}
		utils.PrintKeyValue("Notes", fmt.Sprintf("%d (%d unsynced)", total, unsynced))
	}
	if pending > 0 {
		utils.PrintKeyValueWithColor("Queued changes", strconv.Itoa(pending), utils.StateColors("pending"))
	} else {
		utils.PrintKeyValueWithColor("Queued changes", "0", utils.StateColors("synced"))
	}

	logs, err := application.Logs.GetSyncLogs(ctx, c.Int("limit"), 0)
	if err != nil {
		return fmt.Errorf("error getting sync logs: %w", err)
	}
	if len(logs) == 0 {
		utils.PrintInfo("No sync passes yet")
		return nil
	}

	formatTime := func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Local().Format("Jan 02 15:04:05")
	}

	rows := make([][]string, 0, len(logs))
	for _, log := range logs {
		status := "✓ Success"
		if !log.Success {
			status = "✗ Failed"
		}
		rows = append(rows, []string{
			formatTime(log.StartedAt),
			string(log.Trigger),
			status,
			strconv.Itoa(log.Synced),
			strconv.Itoa(log.Pulled),
			strconv.Itoa(log.Removed),
			strconv.Itoa(log.Conflicts),
			log.Duration().Round(time.Millisecond).String(),
			utils.Truncate(log.ErrorMessage, 48),
		})
	}

	opts := utils.DefaultTableOptions()
	opts.Title = "Sync Logs"
	utils.PrintTable(
		[]string{"Started", "Trigger", "Status", "Pushed", "Pulled", "Removed", "Conflicts", "Took", "Error"},
		rows, opts)
	return nil
}

// syncConfigAction handles configuring sync settings
func syncConfigAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	settings := application.Settings
	changed := false

	if c.IsSet("server") {
		if err := settings.SetServerURL(ctx, c.String("server")); err != nil {
			return fmt.Errorf("saving server URL: %w", err)
		}
		utils.PrintKeyValueWithColor("Server URL Updated", c.String("server"), utils.Theme.Info)
		changed = true
	}

	if c.IsSet("token") {
		if err := settings.SetToken(ctx, c.String("token")); err != nil {
			return fmt.Errorf("saving token: %w", err)
		}
		application.Gateway.SetToken(c.String("token"))
		utils.PrintKeyValueWithColor("Token Updated", maskToken(c.String("token")), utils.Theme.Info)
		changed = true
	}

	if c.IsSet("owner") {
		if err := settings.SetOwnerID(ctx, c.String("owner")); err != nil {
			return fmt.Errorf("saving owner: %w", err)
		}
		utils.PrintKeyValueWithColor("Owner Updated", c.String("owner"), utils.Theme.Info)
		changed = true
	}

	if c.IsSet("strategy") {
		strategy, err := conflict.ParseStrategy(c.String("strategy"))
		if err != nil {
			utils.PrintError(fmt.Sprintf("Unknown strategy, pick one of: %s", strategyNames()))
			return err
		}
		if err := settings.SetStrategy(ctx, string(strategy)); err != nil {
			return fmt.Errorf("saving strategy: %w", err)
		}
		utils.PrintKeyValueWithColor("Strategy Updated", string(strategy), utils.Theme.Info)
		changed = true
	}

	if c.IsSet("device-name") {
		if err := settings.SetDeviceName(ctx, c.String("device-name")); err != nil {
			return fmt.Errorf("saving device name: %w", err)
		}
		utils.PrintKeyValueWithColor("Device Name Updated", c.String("device-name"), utils.Theme.Info)
		changed = true
	}

	if c.IsSet("enabled") {
		if err := settings.SetSyncEnabled(ctx, c.Bool("enabled")); err != nil {
			return fmt.Errorf("saving enabled status: %w", err)
		}
		utils.PrintKeyValueWithColor("Sync enabled", strconv.FormatBool(c.Bool("enabled")), utils.Theme.Info)
		changed = true
	}

	if changed {
		return nil
	}

	cfg := application.Config
	utils.PrintHeading("Current Sync Configuration")
	utils.PrintKeyValueWithColor("Server URL", orDash(cfg.Server.URL), utils.Theme.Info)
	utils.PrintKeyValueWithColor("Token", maskToken(cfg.Server.Token), utils.Theme.Info)
	utils.PrintKeyValueWithColor("Owner", orDash(cfg.Sync.OwnerID), utils.Theme.Info)
	utils.PrintKeyValueWithColor("Strategy", cfg.Sync.Strategy, utils.Theme.Info)
	utils.PrintKeyValueWithColor("Device Name", cfg.Server.DeviceName, utils.Theme.Info)
	utils.PrintKeyValueWithColor("Sync enabled", strconv.FormatBool(cfg.Server.Enabled), utils.Theme.Info)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// maskToken keeps the last four characters of a token visible
func maskToken(token string) string {
	if token == "" {
		return "-"
	}
	if len(token) <= 4 {
		return "****"
	}
	return strings.Repeat("*", 8) + token[len(token)-4:]
}
