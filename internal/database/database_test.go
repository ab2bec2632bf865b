package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/notesync/internal/config"
	"github.com/tildaslashalef/notesync/internal/loggy"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	loggy.NewNoopLogger()

	conn, err := Open(&config.DatabaseConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBuildSQLiteDSN(t *testing.T) {
	dsn := buildSQLiteDSN(&config.DatabaseConfig{
		Path:            "/tmp/notes.db",
		BusyTimeout:     5000,
		JournalMode:     "WAL",
		SynchronousMode: "NORMAL",
		CacheSize:       -16000,
		ForeignKeys:     true,
	})

	assert.True(t, strings.HasPrefix(dsn, "file:/tmp/notes.db?"))
	assert.Contains(t, dsn, "_busy_timeout=5000")
	assert.Contains(t, dsn, "_journal_mode=WAL")
	assert.Contains(t, dsn, "_foreign_keys=true")

	assert.Equal(t, ":memory:", buildSQLiteDSN(&config.DatabaseConfig{Path: ":memory:"}))
}

func TestMigrateCreatesSchema(t *testing.T) {
	conn := openMemory(t)
	require.NoError(t, Migrate(conn))

	for _, table := range []string{"records", "mutation_queue", "settings", "sync_logs"} {
		var name string
		err := conn.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}

	version, dirty, err := Version(conn)
	require.NoError(t, err)
	assert.Equal(t, uint(5), version)
	assert.False(t, dirty)

	// applying again is a no-op and keeps the connection usable
	require.NoError(t, Migrate(conn))
	require.NoError(t, conn.Ping())
}

func TestTimestampsRoundTrip(t *testing.T) {
	conn := openMemory(t)
	require.NoError(t, Migrate(conn))

	ts := time.Date(2024, 2, 3, 4, 5, 6, 789000000, time.UTC)
	_, err := conn.Exec(`INSERT INTO records (id, owner_id, title, body, created_at, modified_at, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, "n1", "alice", "t", "b", ts, ts, true)
	require.NoError(t, err)

	var got time.Time
	require.NoError(t, conn.QueryRow("SELECT modified_at FROM records WHERE id = ?", "n1").Scan(&got))
	assert.True(t, ts.Equal(got))
}

func TestWithTransaction(t *testing.T) {
	conn := openMemory(t)
	require.NoError(t, Migrate(conn))
	ctx := context.Background()

	err := WithTransaction(ctx, conn, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO settings (id, key, value, created_at, updated_at) VALUES ('s1', 'k', 'v', ?, ?)`,
			time.Now(), time.Now())
		require.NoError(t, err)
		return errors.New("abort")
	})
	require.Error(t, err)

	var count int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM settings").Scan(&count))
	assert.Zero(t, count, "rolled back insert must not be visible")

	assert.ErrorIs(t, WithTransaction(ctx, nil, func(*sql.Tx) error { return nil }), ErrNotInitialized)
}

func TestInitDBLifecycle(t *testing.T) {
	loggy.NewNoopLogger()
	require.NoError(t, CloseDB())

	_, err := DB()
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, RunMigrations(), ErrNotInitialized)

	cfg := config.New()
	cfg.Database = config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "notesync.db"),
		BusyTimeout: 1000,
		JournalMode: "WAL",
		ConnMaxLife: time.Minute,
	}
	require.NoError(t, InitDB(cfg))
	defer CloseDB()

	require.NoError(t, RunMigrations())
	require.NoError(t, RevertMigrations(1))

	conn, err := DB()
	require.NoError(t, err)
	version, _, err := Version(conn)
	require.NoError(t, err)
	assert.Equal(t, uint(4), version)
}
