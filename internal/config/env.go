package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/tildaslashalef/notesync/internal/utils"
)

// DefaultDirName is the name of the configuration directory under $HOME
const DefaultDirName = ".notesync"

// DefaultConfigDir returns ~/.notesync
func DefaultConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, DefaultDirName), nil
}

// LoadFromEnv loads configuration from environment variables
// Parameters:
// - configDir: Directory containing config files (or empty for default)
// - configFilePath: Path to .env file (or empty for default)
func LoadFromEnv(configDir string, configFilePath string) (*Config, error) {
	cfg := New()

	if configDir == "" {
		dir, err := DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		configDir = dir
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	cfg.configDir = configDir

	defaultDBPath := filepath.Join(configDir, "notesync.db")
	defaultLogPath := filepath.Join(configDir, "notesync.log")

	if configFilePath == "" {
		configFilePath = filepath.Join(configDir, ".env")
	}

	// ENV_FILE_PATH overrides the config directory .env
	envFilePath := getEnvString("ENV_FILE_PATH", "")
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			return nil, fmt.Errorf("failed to load env file from %s: %w", envFilePath, err)
		}
	} else {
		if err := godotenv.Load(configFilePath); err != nil {
			// Then try current directory as fallback
			_ = godotenv.Load()
		}
	}

	cfg.Database = DatabaseConfig{
		Path:            getEnvString("NOTESYNC_DB_PATH", defaultDBPath),
		BusyTimeout:     getEnvInt("NOTESYNC_DB_BUSY_TIMEOUT", 5000),
		JournalMode:     getEnvString("NOTESYNC_DB_JOURNAL_MODE", "WAL"),
		SynchronousMode: getEnvString("NOTESYNC_DB_SYNCHRONOUS_MODE", "NORMAL"),
		CacheSize:       getEnvInt("NOTESYNC_DB_CACHE_SIZE", -16000), // ~16MB
		ForeignKeys:     getEnvBool("NOTESYNC_DB_FOREIGN_KEYS", true),
		ConnMaxLife:     getEnvDuration("NOTESYNC_DB_CONN_MAX_LIFE", 5*time.Minute),
		QueryTimeout:    getEnvDuration("NOTESYNC_DB_QUERY_TIMEOUT", 30*time.Second),
	}

	cfg.Logging = LoggingConfig{
		Level:      getEnvString("NOTESYNC_LOG_LEVEL", "info"),
		Format:     getEnvString("NOTESYNC_LOG_FORMAT", "text"),
		Output:     getEnvString("NOTESYNC_LOG_OUTPUT", defaultLogPath),
		AddSource:  getEnvBool("NOTESYNC_LOG_ADD_SOURCE", true),
		TimeFormat: getTimeFormat(getEnvString("NOTESYNC_LOG_TIME_FORMAT", "RFC3339")),
		MaxSizeMB:  getEnvInt("NOTESYNC_LOG_MAX_SIZE_MB", 10),
		MaxBackups: getEnvInt("NOTESYNC_LOG_MAX_BACKUPS", 3),
		MaxAgeDays: getEnvInt("NOTESYNC_LOG_MAX_AGE_DAYS", 28),
	}

	cfg.Server = ServerConfig{
		Enabled:           getEnvBool("NOTESYNC_SERVER_ENABLED", true),
		URL:               getEnvString("NOTESYNC_SERVER_URL", ""),
		Token:             getEnvString("NOTESYNC_SERVER_TOKEN", ""),
		Timeout:           getEnvDuration("NOTESYNC_SERVER_TIMEOUT", 30*time.Second),
		DeviceName:        getEnvString("NOTESYNC_SERVER_DEVICE_NAME", ""),
		MaxRetries:        getEnvInt("NOTESYNC_SERVER_MAX_RETRIES", 3),
		RequestsPerMinute: getEnvInt("NOTESYNC_SERVER_REQUESTS_PER_MINUTE", 120),
		BurstLimit:        getEnvInt("NOTESYNC_SERVER_BURST_LIMIT", 10),
	}
	if cfg.Server.DeviceName == "" {
		cfg.Server.DeviceName = utils.GenerateDeviceName()
	}

	cfg.Sync = SyncConfig{
		OwnerID:              getEnvString("NOTESYNC_SYNC_OWNER_ID", ""),
		Strategy:             getEnvString("NOTESYNC_SYNC_STRATEGY", StrategyLocalWins),
		Interval:             getEnvDuration("NOTESYNC_SYNC_INTERVAL", 30*time.Second),
		ErrorResetDelay:      getEnvDuration("NOTESYNC_SYNC_ERROR_RESET_DELAY", 5*time.Second),
		DebounceDelay:        getEnvDuration("NOTESYNC_SYNC_DEBOUNCE_DELAY", time.Second),
		ConnectivityInterval: getEnvDuration("NOTESYNC_SYNC_CONNECTIVITY_INTERVAL", 15*time.Second),
		QueueLimit:           getEnvInt("NOTESYNC_SYNC_QUEUE_LIMIT", 0),
	}

	return cfg, cfg.Validate()
}
