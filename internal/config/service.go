package config

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/tildaslashalef/notesync/internal/loggy"
)

// SettingsService keeps the in-memory Config and the settings table in step
type SettingsService struct {
	repo   SettingsRepository
	config *Config
	logger *loggy.Logger
}

// NewSettingsService creates a new settings service
func NewSettingsService(db *sql.DB, config *Config, logger *loggy.Logger) *SettingsService {
	return NewSettingsServiceWithRepository(NewSQLSettingsRepository(db, logger), config, logger)
}

// NewSettingsServiceWithRepository creates a settings service over repo
func NewSettingsServiceWithRepository(repo SettingsRepository, config *Config, logger *loggy.Logger) *SettingsService {
	return &SettingsService{
		repo:   repo,
		config: config,
		logger: logger,
	}
}

// GetSettings retrieves multiple settings by prefix
func (s *SettingsService) GetSettings(ctx context.Context, prefix string) (map[string]string, error) {
	return s.repo.GetSettings(ctx, prefix)
}

// LoadSyncSettings loads sync settings from the database into the Config
func (s *SettingsService) LoadSyncSettings(ctx context.Context) error {
	return LoadSyncSettings(ctx, s.config, s.repo)
}

// SaveSyncSettings saves sync settings from the Config to the database
func (s *SettingsService) SaveSyncSettings(ctx context.Context) error {
	return SaveSyncSettings(ctx, s.config, s.repo)
}

// SetToken stores the server token, obfuscated at rest
func (s *SettingsService) SetToken(ctx context.Context, token string) error {
	s.config.Server.Token = token
	return s.repo.SetSetting(ctx, KeyServerToken, token)
}

// SetServerURL sets the sync server URL
func (s *SettingsService) SetServerURL(ctx context.Context, url string) error {
	s.config.Server.URL = url
	if err := s.config.validateServer(); err != nil {
		return err
	}
	return s.repo.SetSetting(ctx, KeyServerURL, url)
}

// SetOwnerID sets the owner every query is scoped by
func (s *SettingsService) SetOwnerID(ctx context.Context, owner string) error {
	s.config.Sync.OwnerID = owner
	return s.repo.SetSetting(ctx, KeyOwnerID, owner)
}

// SetStrategy sets the conflict strategy used by the push phase
func (s *SettingsService) SetStrategy(ctx context.Context, strategy string) error {
	if !ValidStrategy(strategy) {
		return fmt.Errorf("unknown conflict strategy: %s", strategy)
	}
	s.config.Sync.Strategy = strategy
	return s.repo.SetSetting(ctx, KeyStrategy, strategy)
}

// SetDeviceName sets the sync device name
func (s *SettingsService) SetDeviceName(ctx context.Context, name string) error {
	s.config.Server.DeviceName = name
	return s.repo.SetSetting(ctx, KeyDeviceName, name)
}

// SetSyncEnabled sets whether sync is enabled
func (s *SettingsService) SetSyncEnabled(ctx context.Context, enabled bool) error {
	s.config.Server.Enabled = enabled
	return s.repo.SetSetting(ctx, KeyEnabled, strconv.FormatBool(enabled))
}
