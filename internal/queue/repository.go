package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/tildaslashalef/notesync/internal/database"
	"github.com/tildaslashalef/notesync/internal/loggy"
	"github.com/tildaslashalef/notesync/internal/note"
)

// Repository defines the mutation queue operations
type Repository interface {
	// Enqueue appends a mutation and returns its sequence id
	Enqueue(ctx context.Context, op note.Operation, rec *note.Record) (int64, error)

	// Drain returns every entry in sequence order without removing any
	Drain(ctx context.Context) ([]*Entry, error)

	// Acknowledge removes one entry. Absent ids are ignored.
	Acknowledge(ctx context.Context, sequenceID int64) error

	// Rebase sets the base version of the record's entries queued after
	// sequenceID
	Rebase(ctx context.Context, recordID string, sequenceID int64, base time.Time) error

	// Clear removes every entry
	Clear(ctx context.Context) error

	// Count returns the number of queued entries
	Count(ctx context.Context) (int, error)
}

// SQLRepository implements Repository on the mutation_queue table
type SQLRepository struct {
	db      database.DBTX
	logger  *loggy.Logger
	builder sq.StatementBuilderType
	limit   int
	now     func() time.Time
}

// NewSQLRepository creates a queue repository over db. A positive limit caps
// the number of queued entries.
func NewSQLRepository(db database.DBTX, limit int, logger *loggy.Logger) *SQLRepository {
	return &SQLRepository{
		db:      db,
		logger:  logger,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
		limit:   limit,
		now:     time.Now,
	}
}

// JournalFactory returns a note.JournalFactory producing queue repositories
// with the given limit
func JournalFactory(limit int, logger *loggy.Logger) note.JournalFactory {
	return func(db database.DBTX) note.Journal {
		return NewSQLRepository(db, limit, logger)
	}
}

// Enqueue appends a mutation carrying a JSON snapshot of rec and the remote
// version it was based on
func (r *SQLRepository) Enqueue(ctx context.Context, op note.Operation, rec *note.Record) (int64, error) {
	if !op.Valid() {
		return 0, fmt.Errorf("unknown operation %q", op)
	}
	if rec == nil || rec.ID == "" || rec.OwnerID == "" {
		return 0, note.ErrInvalidNote
	}

	if r.limit > 0 {
		count, err := r.Count(ctx)
		if err != nil {
			return 0, err
		}
		if count >= r.limit {
			return 0, fmt.Errorf("%w (limit %d)", ErrQueueFull, r.limit)
		}
	}

	snapshot, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("encoding record snapshot: %w", err)
	}

	query, args, err := r.builder.
		Insert("mutation_queue").
		Columns("operation", "record_id", "owner_id", "record", "base_modified_at", "queued_at").
		Values(string(op), rec.ID, rec.OwnerID, string(snapshot), database.NullTime(rec.BaseModifiedAt), r.now().UTC()).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building enqueue query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("executing enqueue query: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading sequence id: %w", err)
	}

	return seq, nil
}

// Drain returns all entries ordered by sequence id
func (r *SQLRepository) Drain(ctx context.Context) ([]*Entry, error) {
	query, args, err := r.builder.
		Select("sequence_id", "operation", "record", "base_modified_at", "queued_at").
		From("mutation_queue").
		OrderBy("sequence_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building drain query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing drain query: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		var entry Entry
		var op, snapshot string
		var base sql.NullTime
		var queuedAt time.Time
		if err := rows.Scan(&entry.SequenceID, &op, &snapshot, &base, &queuedAt); err != nil {
			return nil, fmt.Errorf("scanning queue row: %w", err)
		}

		if err := json.Unmarshal([]byte(snapshot), &entry.Record); err != nil {
			return nil, fmt.Errorf("decoding snapshot of entry %d: %w", entry.SequenceID, err)
		}
		if base.Valid {
			entry.Record.BaseModifiedAt = base.Time.UTC()
		}
		entry.Operation = note.Operation(op)
		entry.QueuedAt = queuedAt.UTC()
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating queue rows: %w", err)
	}

	return entries, nil
}

// Acknowledge removes the entry with sequenceID
func (r *SQLRepository) Acknowledge(ctx context.Context, sequenceID int64) error {
	query, args, err := r.builder.
		Delete("mutation_queue").
		Where(sq.Eq{"sequence_id": sequenceID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building acknowledge query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing acknowledge query: %w", err)
	}

	return nil
}

// Rebase points later entries of recordID at the remote version base, once
// an earlier entry of the same record has been confirmed
func (r *SQLRepository) Rebase(ctx context.Context, recordID string, sequenceID int64, base time.Time) error {
	query, args, err := r.builder.
		Update("mutation_queue").
		Set("base_modified_at", database.NullTime(base)).
		Where(sq.Eq{"record_id": recordID}).
		Where(sq.Gt{"sequence_id": sequenceID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building rebase query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing rebase query: %w", err)
	}

	return nil
}

// Clear removes all entries
func (r *SQLRepository) Clear(ctx context.Context) error {
	query, args, err := r.builder.Delete("mutation_queue").ToSql()
	if err != nil {
		return fmt.Errorf("building clear query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing clear query: %w", err)
	}

	r.logger.Info("Cleared mutation queue")
	return nil
}

// Count returns the number of queued entries
func (r *SQLRepository) Count(ctx context.Context) (int, error) {
	query, args, err := r.builder.
		Select("COUNT(*)").
		From("mutation_queue").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count query: %w", err)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("executing count query: %w", err)
	}

	return count, nil
}
