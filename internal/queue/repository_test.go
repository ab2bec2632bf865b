package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/notesync/internal/config"
	"github.com/tildaslashalef/notesync/internal/database"
	"github.com/tildaslashalef/notesync/internal/loggy"
	"github.com/tildaslashalef/notesync/internal/note"
)

func newMemoryRepository(t *testing.T, limit int) (*SQLRepository, *sql.DB) {
	t.Helper()
	logger := loggy.NewNoopLogger()

	db, err := database.Open(&config.DatabaseConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	return NewSQLRepository(db, limit, logger), db
}

func sampleRecord(id string) *note.Record {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return &note.Record{ID: id, OwnerID: "alice", Title: "t-" + id, Body: "b-" + id, CreatedAt: ts, ModifiedAt: ts}
}

func TestDrainPreservesInsertionOrder(t *testing.T) {
	repo, _ := newMemoryRepository(t, 0)
	ctx := context.Background()

	ops := []note.Operation{note.OpCreate, note.OpUpdate, note.OpCreate, note.OpUpdate, note.OpDelete, note.OpDelete}
	ids := []string{"n1", "n1", "n2", "n2", "n1", "n3"}

	var seqs []int64
	for i := range ops {
		seq, err := repo.Enqueue(ctx, ops[i], sampleRecord(ids[i]))
		require.NoError(t, err)
		seqs = append(seqs, seq)
	}

	entries, err := repo.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, entries, len(ops))

	for i, entry := range entries {
		assert.Equal(t, seqs[i], entry.SequenceID)
		assert.Equal(t, ops[i], entry.Operation)
		assert.Equal(t, ids[i], entry.Record.ID)
		assert.Equal(t, "alice", entry.Record.OwnerID)
		if i > 0 {
			assert.Greater(t, entry.SequenceID, entries[i-1].SequenceID)
		}
	}

	// Drain does not remove anything
	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(ops), count)
}

func TestSnapshotIsCopiedAtEnqueueTime(t *testing.T) {
	repo, _ := newMemoryRepository(t, 0)
	ctx := context.Background()

	rec := sampleRecord("n1")
	_, err := repo.Enqueue(ctx, note.OpCreate, rec)
	require.NoError(t, err)

	rec.Body = "changed afterwards"

	entries, err := repo.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b-n1", entries[0].Record.Body)
	assert.True(t, entries[0].Record.ModifiedAt.Equal(sampleRecord("n1").ModifiedAt))
}

func TestRebaseMovesLaterEntriesOfRecord(t *testing.T) {
	repo, _ := newMemoryRepository(t, 0)
	ctx := context.Background()

	seen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := sampleRecord("n1")
	first.BaseModifiedAt = seen
	seq, err := repo.Enqueue(ctx, note.OpUpdate, first)
	require.NoError(t, err)
	_, err = repo.Enqueue(ctx, note.OpUpdate, sampleRecord("n1"))
	require.NoError(t, err)
	_, err = repo.Enqueue(ctx, note.OpUpdate, sampleRecord("n2"))
	require.NoError(t, err)

	entries, err := repo.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].Record.BaseModifiedAt.Equal(seen), "base survives the round trip")
	assert.True(t, entries[1].Record.BaseModifiedAt.IsZero())

	pushed := seen.Add(time.Hour)
	require.NoError(t, repo.Rebase(ctx, "n1", seq, pushed))

	entries, err = repo.Drain(ctx)
	require.NoError(t, err)
	assert.True(t, entries[0].Record.BaseModifiedAt.Equal(seen), "the confirmed entry itself is left alone")
	assert.True(t, entries[1].Record.BaseModifiedAt.Equal(pushed))
	assert.True(t, entries[2].Record.BaseModifiedAt.IsZero(), "other records are untouched")
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	repo, _ := newMemoryRepository(t, 0)
	ctx := context.Background()

	seq, err := repo.Enqueue(ctx, note.OpCreate, sampleRecord("n1"))
	require.NoError(t, err)
	_, err = repo.Enqueue(ctx, note.OpCreate, sampleRecord("n2"))
	require.NoError(t, err)

	require.NoError(t, repo.Acknowledge(ctx, seq))
	require.NoError(t, repo.Acknowledge(ctx, seq))
	require.NoError(t, repo.Acknowledge(ctx, 9999))

	entries, err := repo.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "n2", entries[0].Record.ID)

	require.NoError(t, repo.Clear(ctx))
	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSequenceIDsAreNotReused(t *testing.T) {
	repo, _ := newMemoryRepository(t, 0)
	ctx := context.Background()

	first, err := repo.Enqueue(ctx, note.OpCreate, sampleRecord("n1"))
	require.NoError(t, err)
	require.NoError(t, repo.Clear(ctx))

	second, err := repo.Enqueue(ctx, note.OpCreate, sampleRecord("n2"))
	require.NoError(t, err)
	assert.Greater(t, second, first)
}

func TestQueueLimit(t *testing.T) {
	repo, _ := newMemoryRepository(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := repo.Enqueue(ctx, note.OpCreate, sampleRecord(fmt.Sprintf("n%d", i)))
		require.NoError(t, err)
	}

	_, err := repo.Enqueue(ctx, note.OpCreate, sampleRecord("n9"))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestEnqueueRejectsInvalidInput(t *testing.T) {
	repo, _ := newMemoryRepository(t, 0)
	ctx := context.Background()

	_, err := repo.Enqueue(ctx, note.Operation("upsert"), sampleRecord("n1"))
	assert.Error(t, err)

	_, err = repo.Enqueue(ctx, note.OpDelete, &note.Record{ID: "n1"})
	assert.ErrorIs(t, err, note.ErrInvalidNote)
}

func TestEnqueueSQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSQLRepository(db, 0, loggy.NewNoopLogger())
	queuedAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return queuedAt }

	rec := sampleRecord("n1")
	snapshot, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO mutation_queue \\(operation,record_id,owner_id,record,base_modified_at,queued_at\\)").
		WithArgs("update", "n1", "alice", string(snapshot), nil, queuedAt).
		WillReturnResult(sqlmock.NewResult(42, 1))

	seq, err := repo.Enqueue(context.Background(), note.OpUpdate, rec)
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDrainSQLBadSnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSQLRepository(db, 0, loggy.NewNoopLogger())

	rows := sqlmock.NewRows([]string{"sequence_id", "operation", "record", "base_modified_at", "queued_at"}).
		AddRow(int64(1), "create", "{not json", nil, time.Now())
	mock.ExpectQuery("SELECT sequence_id, operation, record, base_modified_at, queued_at FROM mutation_queue ORDER BY sequence_id ASC").
		WillReturnRows(rows)

	_, err = repo.Drain(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding snapshot of entry 1")
}
