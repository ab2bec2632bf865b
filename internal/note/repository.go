package note

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/tildaslashalef/notesync/internal/database"
	"github.com/tildaslashalef/notesync/internal/loggy"
)

// Repository defines the operations of the local record store
type Repository interface {
	// ListByOwner returns the owner's records, most recently modified first.
	// An owner without records yields an empty slice.
	ListByOwner(ctx context.Context, ownerID string) ([]*Record, error)

	// Get returns the record with id or ErrNoteNotFound
	Get(ctx context.Context, id string) (*Record, error)

	// Upsert inserts or replaces the record keyed by its id
	Upsert(ctx context.Context, rec *Record) error

	// Delete removes the record with id. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error

	// Counts returns the owner's total and unsynced record counts
	Counts(ctx context.Context, ownerID string) (total int, unsynced int, err error)
}

var recordColumns = []string{"id", "owner_id", "title", "body", "created_at", "modified_at", "synced", "base_modified_at"}

// SQLRepository implements Repository on SQLite
type SQLRepository struct {
	db      database.DBTX
	logger  *loggy.Logger
	builder sq.StatementBuilderType
}

// NewSQLRepository creates a record repository over db, which may be a
// *sql.DB or a *sql.Tx
func NewSQLRepository(db database.DBTX, logger *loggy.Logger) *SQLRepository {
	return &SQLRepository{
		db:      db,
		logger:  logger,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

// ListByOwner returns the owner's records ordered by modified_at descending
func (r *SQLRepository) ListByOwner(ctx context.Context, ownerID string) ([]*Record, error) {
	query, args, err := r.builder.
		Select(recordColumns...).
		From("records").
		Where(sq.Eq{"owner_id": ownerID}).
		OrderBy("modified_at DESC", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list records query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing list records query: %w", err)
	}
	defer rows.Close()

	records := make([]*Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record row: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating record rows: %w", err)
	}

	return records, nil
}

// Get retrieves a record by id
func (r *SQLRepository) Get(ctx context.Context, id string) (*Record, error) {
	query, args, err := r.builder.
		Select(recordColumns...).
		From("records").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get record query: %w", err)
	}

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoteNotFound
		}
		return nil, fmt.Errorf("executing get record query: %w", err)
	}

	return rec, nil
}

// Upsert inserts the record or replaces every column of the existing row
func (r *SQLRepository) Upsert(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	query, args, err := r.builder.
		Insert("records").
		Columns(recordColumns...).
		Values(
			rec.ID,
			rec.OwnerID,
			rec.Title,
			rec.Body,
			rec.CreatedAt.UTC(),
			rec.ModifiedAt.UTC(),
			rec.Synced,
			database.NullTime(rec.BaseModifiedAt),
		).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			title = excluded.title,
			body = excluded.body,
			created_at = excluded.created_at,
			modified_at = excluded.modified_at,
			synced = excluded.synced,
			base_modified_at = excluded.base_modified_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("building upsert record query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing upsert record query: %w", err)
	}

	return nil
}

// Delete removes a record by id
func (r *SQLRepository) Delete(ctx context.Context, id string) error {
	query, args, err := r.builder.
		Delete("records").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete record query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing delete record query: %w", err)
	}

	return nil
}

// Counts returns how many records the owner has and how many are unsynced
func (r *SQLRepository) Counts(ctx context.Context, ownerID string) (int, int, error) {
	query, args, err := r.builder.
		Select("COUNT(*)", "COALESCE(SUM(CASE WHEN synced = 0 THEN 1 ELSE 0 END), 0)").
		From("records").
		Where(sq.Eq{"owner_id": ownerID}).
		ToSql()
	if err != nil {
		return 0, 0, fmt.Errorf("building count records query: %w", err)
	}

	var total, unsynced int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total, &unsynced); err != nil {
		return 0, 0, fmt.Errorf("executing count records query: %w", err)
	}

	return total, unsynced, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var createdAt, modifiedAt time.Time
	var base sql.NullTime
	if err := row.Scan(
		&rec.ID,
		&rec.OwnerID,
		&rec.Title,
		&rec.Body,
		&createdAt,
		&modifiedAt,
		&rec.Synced,
		&base,
	); err != nil {
		return nil, err
	}
	rec.CreatedAt = createdAt.UTC()
	rec.ModifiedAt = modifiedAt.UTC()
	if base.Valid {
		rec.BaseModifiedAt = base.Time.UTC()
	}
	return &rec, nil
}
