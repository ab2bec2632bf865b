package commands

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/tildaslashalef/notesync/internal/config"
	"github.com/tildaslashalef/notesync/internal/database"
	"github.com/tildaslashalef/notesync/internal/utils"
	"github.com/urfave/cli/v2"
)

// InitCommand returns the CLI command for initializing notesync
func InitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize or update the notesync environment",
		Description: "Sets up the configuration directory and the local note database. " +
			"Run it once after installing and again after upgrading to apply new migrations.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "backup",
				Usage: "Back up and replace an existing .env with the bundled sample",
			},
			&cli.StringFlag{
				Name:  "owner",
				Usage: "Owner id to write into a new .env",
			},
			&cli.StringFlag{
				Name:  "server",
				Usage: "Remote note store URL to write into a new .env",
			},
		},
		Action: func(c *cli.Context) error {
			utils.PrintHeading("Initializing notesync")

			configDir, err := config.DefaultConfigDir()
			if err != nil {
				utils.PrintError(err.Error())
				return err
			}
			utils.PrintInfo("Configuration directory: " + color.YellowString("%s", configDir))

			configFilePath := filepath.Join(configDir, ".env")
			seed := config.EnvSeed{OwnerID: c.String("owner"), ServerURL: c.String("server")}
			written, err := config.WriteEnvFile(configDir, seed, c.Bool("backup"))
			switch {
			case err != nil:
				utils.PrintWarning(fmt.Sprintf("Failed to write configuration file: %s", err))
			case written:
				utils.PrintInfo("Wrote default configuration file")
			default:
				utils.PrintInfo("Keeping existing configuration file, pass --backup to replace it")
			}

			cfg, err := config.LoadFromEnv(configDir, configFilePath)
			if err != nil {
				utils.PrintError(fmt.Sprintf("Failed to load configuration: %s", err))
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			utils.PrintInfo("Initializing database...")
			if err := database.InitDB(cfg); err != nil {
				utils.PrintError(fmt.Sprintf("Failed to initialize database: %s", err))
				return fmt.Errorf("failed to initialize database: %w", err)
			}

			utils.PrintInfo("Applying database migrations...")
			if err := database.RunMigrations(); err != nil {
				utils.PrintError(fmt.Sprintf("Failed to apply migrations: %s", err))
				return fmt.Errorf("failed to apply migrations: %w", err)
			}

			db, err := database.DB()
			if err != nil {
				return err
			}
			version, _, err := database.Version(db)
			if err != nil {
				return fmt.Errorf("failed to read schema version: %w", err)
			}

			utils.PrintSuccess("✓ notesync initialized successfully!")
			utils.PrintInfo(fmt.Sprintf("Database schema version: %d", version))
			utils.PrintInfo("Configuration file: " + color.YellowString("%s", configFilePath))
			utils.PrintInfo("Database location: " + color.YellowString("%s", cfg.Database.Path))
			utils.PrintInfo("Log file location: " + color.YellowString("%s", cfg.Logging.Output))
			fmt.Println("")
			utils.PrintInfo("Next, point notesync at your server with " +
				color.CyanString("notesync sync config --server <url> --token <token> --owner <id>"))

			return nil
		},
	}
}
