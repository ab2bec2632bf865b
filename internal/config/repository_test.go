package config

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/notesync/internal/loggy"
)

func TestTokenObfuscation(t *testing.T) {
	obfuscated, err := obfuscateToken("secret-token")
	require.NoError(t, err)
	assert.Contains(t, obfuscated, "OBFS:")
	assert.NotContains(t, obfuscated, "secret-token")

	plain, err := deobfuscateToken(obfuscated)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", plain)

	// values written before obfuscation existed pass through
	plain, err = deobfuscateToken("legacy")
	require.NoError(t, err)
	assert.Equal(t, "legacy", plain)
}

func TestSQLSettingsRepository(t *testing.T) {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSQLSettingsRepository(db, loggy.NewNoopLogger())
	ctx := context.Background()

	t.Run("GetSetting missing returns empty", func(t *testing.T) {
		sqlMock.ExpectQuery("SELECT value FROM settings WHERE key = ?").
			WithArgs(KeyOwnerID).
			WillReturnError(sql.ErrNoRows)

		value, err := repo.GetSetting(ctx, KeyOwnerID)
		require.NoError(t, err)
		assert.Equal(t, "", value)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("SetSetting obfuscates the token", func(t *testing.T) {
		stored, _ := obfuscateToken("abc")
		sqlMock.ExpectExec("INSERT INTO settings .+ ON CONFLICT\\(key\\) DO UPDATE").
			WithArgs(sqlmock.AnyArg(), KeyServerToken, stored, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, repo.SetSetting(ctx, KeyServerToken, "abc"))
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("GetSettings deobfuscates the token", func(t *testing.T) {
		stored, _ := obfuscateToken("abc")
		rows := sqlmock.NewRows([]string{"key", "value"}).
			AddRow(KeyServerToken, stored).
			AddRow(KeyOwnerID, "alice")
		sqlMock.ExpectQuery("SELECT key, value FROM settings WHERE key LIKE ?").
			WithArgs("sync.%").
			WillReturnRows(rows)

		settings, err := repo.GetSettings(ctx, "sync.")
		require.NoError(t, err)
		assert.Equal(t, "abc", settings[KeyServerToken])
		assert.Equal(t, "alice", settings[KeyOwnerID])
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})
}

type MockSettingsRepository struct {
	mock.Mock
}

func (m *MockSettingsRepository) GetSetting(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockSettingsRepository) GetSettings(ctx context.Context, prefix string) (map[string]string, error) {
	args := m.Called(ctx, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *MockSettingsRepository) SetSetting(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockSettingsRepository) DeleteSetting(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func TestLoadSyncSettings(t *testing.T) {
	repo := new(MockSettingsRepository)
	repo.On("GetSettings", mock.Anything, "sync.").Return(map[string]string{
		KeyServerURL: "https://notes.example.com",
		KeyOwnerID:   "alice",
		KeyStrategy:  StrategyServerWins,
		KeyEnabled:   "false",
	}, nil)

	cfg := New()
	cfg.Server.Enabled = true
	cfg.Server.DeviceName = "from-env"

	require.NoError(t, LoadSyncSettings(context.Background(), cfg, repo))
	assert.Equal(t, "https://notes.example.com", cfg.Server.URL)
	assert.Equal(t, "alice", cfg.Sync.OwnerID)
	assert.Equal(t, StrategyServerWins, cfg.Sync.Strategy)
	assert.False(t, cfg.Server.Enabled)
	assert.Equal(t, "from-env", cfg.Server.DeviceName, "empty stored values keep the env value")
	repo.AssertExpectations(t)
}

func TestLoadSyncSettingsRejectsUnknownStrategy(t *testing.T) {
	repo := new(MockSettingsRepository)
	repo.On("GetSettings", mock.Anything, "sync.").Return(map[string]string{KeyStrategy: "dice"}, nil)

	err := LoadSyncSettings(context.Background(), New(), repo)
	assert.Error(t, err)
}

func TestSettingsServiceSetStrategy(t *testing.T) {
	repo := new(MockSettingsRepository)
	repo.On("SetSetting", mock.Anything, KeyStrategy, StrategyMerge).Return(nil)

	cfg := New()
	svc := NewSettingsServiceWithRepository(repo, cfg, loggy.NewNoopLogger())

	require.NoError(t, svc.SetStrategy(context.Background(), StrategyMerge))
	assert.Equal(t, StrategyMerge, cfg.Sync.Strategy)

	assert.Error(t, svc.SetStrategy(context.Background(), "dice"))
	repo.AssertExpectations(t)
}

func TestSaveSyncSettings(t *testing.T) {
	repo := new(MockSettingsRepository)
	repo.On("SetSetting", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	cfg := New()
	cfg.Server.URL = "https://notes.example.com"
	cfg.Server.Enabled = true
	cfg.Sync.OwnerID = "alice"
	cfg.Sync.Strategy = StrategyLocalWins

	require.NoError(t, SaveSyncSettings(context.Background(), cfg, repo))
	repo.AssertCalled(t, "SetSetting", mock.Anything, KeyEnabled, "true")
	repo.AssertCalled(t, "SetSetting", mock.Anything, KeyOwnerID, "alice")
	repo.AssertNumberOfCalls(t, "SetSetting", 6)
}
