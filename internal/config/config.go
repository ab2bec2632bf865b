package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// Global configuration instance
	globalConfig *Config
	configMutex  sync.RWMutex
)

// Get returns the global configuration instance
// If the configuration has not been initialized, it will return an error
func Get() (*Config, error) {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if globalConfig == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}

	return globalConfig, nil
}

// Set sets the global configuration instance
func Set(cfg *Config) {
	configMutex.Lock()
	defer configMutex.Unlock()

	globalConfig = cfg
}

// Conflict strategies accepted by SyncConfig.Strategy. They mirror the
// values understood by the conflict package.
const (
	StrategyLocalWins  = "local-wins"
	StrategyServerWins = "server-wins"
	StrategyMerge      = "merge"
	StrategyManual     = "manual"
)

// Config represents the complete application configuration
type Config struct {
	Database  DatabaseConfig
	Logging   LoggingConfig
	Server    ServerConfig
	Sync      SyncConfig
	configDir string // Internal: Directory where config was loaded from
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Path            string        // Path to the SQLite database file
	JournalMode     string        // Journal mode (WAL recommended)
	SynchronousMode string        // Synchronous mode
	BusyTimeout     int           // Busy timeout in milliseconds
	CacheSize       int           // Cache size in KiB
	ForeignKeys     bool          // Whether to enforce foreign key constraints
	ConnMaxLife     time.Duration // Maximum connection lifetime
	QueryTimeout    time.Duration // Query timeout
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string // debug, info, warn, error
	Format     string // text or json
	Output     string // stdout, stderr, or file path
	AddSource  bool   // Include source code position in logs
	TimeFormat string // Time format for logs (empty uses RFC3339)
	MaxSizeMB  int    // Rotate the log file after this many megabytes
	MaxBackups int    // Rotated log files to keep
	MaxAgeDays int    // Days to keep rotated log files
}

// ServerConfig holds configuration for the remote note store
type ServerConfig struct {
	Enabled    bool          // Whether remote sync is enabled
	URL        string        // Server base URL
	Token      string        // Bearer token
	Timeout    time.Duration // Request timeout
	DeviceName string        // Device name sent with every request

	MaxRetries        int // Retries for transient failures
	RequestsPerMinute int // Client side rate limit
	BurstLimit        int // Rate limiter burst
}

// SyncConfig holds the orchestrator settings
type SyncConfig struct {
	OwnerID              string        // Partition all records are scoped by
	Strategy             string        // Conflict strategy (local-wins, server-wins, merge, manual)
	Interval             time.Duration // Periodic sync while online
	ErrorResetDelay      time.Duration // Delay before the error state falls back to pending
	DebounceDelay        time.Duration // Coalescing window for update mutations
	ConnectivityInterval time.Duration // How often the server health endpoint is checked
	QueueLimit           int           // Maximum queued mutations (0 = unlimited)
}

// New returns a new empty Config
func New() *Config {
	return &Config{
		Database: DatabaseConfig{},
		Logging:  LoggingConfig{},
		Server:   ServerConfig{},
		Sync:     SyncConfig{},
	}
}

// ConfigDir returns the directory the configuration was loaded from
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}

	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.validateServer(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.validateSync(); err != nil {
		return fmt.Errorf("sync config: %w", err)
	}

	return nil
}

// ParseLogLevel parses a log level string to a slog.Level
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "none":
		// Set to a very high level that won't be triggered
		return slog.Level(9999)
	default:
		return slog.LevelInfo
	}
}

// ValidStrategy reports whether s names a known conflict strategy
func ValidStrategy(s string) bool {
	switch s {
	case StrategyLocalWins, StrategyServerWins, StrategyMerge, StrategyManual:
		return true
	}
	return false
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	if c.Database.Path != ":memory:" {
		dir := filepath.Dir(c.Database.Path)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory for database: %w", err)
			}
		}

		if err := checkDirectoryWritable(dir); err != nil {
			return fmt.Errorf("database directory: %w", err)
		}
	}

	if c.Database.BusyTimeout <= 0 {
		return fmt.Errorf("busy timeout must be positive")
	}

	if c.Database.ConnMaxLife <= 0 {
		return fmt.Errorf("connection max life must be positive")
	}

	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}

	return nil
}

func (c *Config) validateLogging() error {
	level := strings.ToLower(c.Logging.Level)
	if level != "debug" && level != "info" && level != "warn" && level != "error" && level != "none" {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	format := strings.ToLower(c.Logging.Format)
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if c.Server.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}

	if c.Server.RequestsPerMinute < 0 || c.Server.BurstLimit < 0 {
		return fmt.Errorf("rate limits cannot be negative")
	}

	if c.Server.URL != "" && !strings.HasPrefix(c.Server.URL, "http://") && !strings.HasPrefix(c.Server.URL, "https://") {
		return fmt.Errorf("url must start with http:// or https://: %s", c.Server.URL)
	}

	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.Strategy == "" {
		c.Sync.Strategy = StrategyLocalWins
	}

	if !ValidStrategy(c.Sync.Strategy) {
		return fmt.Errorf("unknown conflict strategy: %s", c.Sync.Strategy)
	}

	if c.Sync.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	if c.Sync.ErrorResetDelay <= 0 {
		return fmt.Errorf("error reset delay must be positive")
	}

	if c.Sync.DebounceDelay < 0 {
		return fmt.Errorf("debounce delay cannot be negative")
	}

	if c.Sync.QueueLimit < 0 {
		return fmt.Errorf("queue limit cannot be negative")
	}

	return nil
}

// getEnvString returns a string from the environment variable
func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns an int from the environment variable
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool returns a bool from the environment variable
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration returns a time.Duration from the environment variable
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getTimeFormat converts a named time format to its actual format string
func getTimeFormat(name string) string {
	switch name {
	case "RFC3339":
		return time.RFC3339
	case "RFC3339Nano":
		return time.RFC3339Nano
	case "Kitchen":
		return time.Kitchen
	case "DateTime":
		return time.DateTime
	case "DateTimeMS":
		return "2006-01-02 15:04:05.000"
	case "Date":
		return time.DateOnly
	case "Time":
		return time.TimeOnly
	default:
		return name
	}
}

// checkDirectoryWritable tests if a directory is writable
func checkDirectoryWritable(dir string) error {
	testFile := filepath.Join(dir, fmt.Sprintf("test_write_%d", time.Now().UnixNano()))
	f, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("directory not writable: %w", err)
	}

	f.Close()
	os.Remove(testFile)

	return nil
}
