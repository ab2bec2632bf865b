package sync

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/notesync/internal/loggy"
)

func TestSyncLogRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err, "Failed to create mock database")
	defer db.Close()

	repo := NewSQLLogRepository(db, loggy.NewNoopLogger())
	ctx := context.Background()

	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	completed := started.Add(2 * time.Second)

	t.Run("CreateSyncLog", func(t *testing.T) {
		log := NewSyncLog("", TriggerTimer, started)
		log.MarkSuccessful(PushResult{Synced: 3, Conflicts: 1}, PullResult{Inserted: 2, Updated: 1, Removed: 1}, completed)

		mock.ExpectExec("INSERT INTO sync_logs").
			WithArgs(sqlmock.AnyArg(), "timer", true, 3, 0, 1, 3, 1, "", started, completed).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, repo.CreateSyncLog(ctx, log))
		assert.NotEmpty(t, log.ID)
		assert.Equal(t, 2*time.Second, log.Duration())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GetSyncLogs", func(t *testing.T) {
		rows := sqlmock.NewRows(logColumns).
			AddRow("sync-2", "manual", false, 0, 2, 0, 0, 0, "network down", started, completed).
			AddRow("sync-1", "timer", true, 3, 0, 1, 3, 1, nil, started.Add(-time.Hour), nil)

		mock.ExpectQuery("SELECT .+ FROM sync_logs ORDER BY started_at DESC LIMIT 10").
			WillReturnRows(rows)

		logs, err := repo.GetSyncLogs(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, logs, 2)

		assert.Equal(t, TriggerManual, logs[0].Trigger)
		assert.False(t, logs[0].Success)
		assert.Equal(t, "network down", logs[0].ErrorMessage)
		assert.Equal(t, 2, logs[0].Failed)

		assert.Empty(t, logs[1].ErrorMessage)
		assert.True(t, logs[1].CompletedAt.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GetLatestSyncLog empty", func(t *testing.T) {
		mock.ExpectQuery("SELECT .+ FROM sync_logs ORDER BY started_at DESC LIMIT 1").
			WillReturnError(sql.ErrNoRows)

		log, err := repo.GetLatestSyncLog(ctx)
		require.NoError(t, err)
		assert.Nil(t, log)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
