package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/tildaslashalef/notesync/internal/loggy"
	"github.com/tildaslashalef/notesync/internal/ulid"
)

// LogRepository persists the history of passes
type LogRepository interface {
	// CreateSyncLog stores a finished pass
	CreateSyncLog(ctx context.Context, log *SyncLog) error

	// GetSyncLogs returns passes, most recent first
	GetSyncLogs(ctx context.Context, limit, offset int) ([]*SyncLog, error)

	// GetLatestSyncLog returns the most recent pass or nil
	GetLatestSyncLog(ctx context.Context) (*SyncLog, error)
}

var logColumns = []string{
	"id", "trigger_source", "success", "synced", "failed", "conflicts",
	"pulled", "removed", "error_message", "started_at", "completed_at",
}

// SQLLogRepository implements LogRepository on the sync_logs table
type SQLLogRepository struct {
	db      *sql.DB
	logger  *loggy.Logger
	builder sq.StatementBuilderType
}

// NewSQLLogRepository creates a new SQL sync log repository
func NewSQLLogRepository(db *sql.DB, logger *loggy.Logger) *SQLLogRepository {
	return &SQLLogRepository{
		db:      db,
		logger:  logger,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

// CreateSyncLog creates a new sync log
func (r *SQLLogRepository) CreateSyncLog(ctx context.Context, log *SyncLog) error {
	if log.ID == "" {
		log.ID = ulid.SyncID()
	}

	query, args, err := r.builder.
		Insert("sync_logs").
		Columns(logColumns...).
		Values(log.ID, string(log.Trigger), log.Success, log.Synced, log.Failed, log.Conflicts,
			log.Pulled, log.Removed, log.ErrorMessage, log.StartedAt.UTC(), log.CompletedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("building create sync log query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing create sync log query: %w", err)
	}

	return nil
}

// GetSyncLogs retrieves sync logs, most recent first
func (r *SQLLogRepository) GetSyncLogs(ctx context.Context, limit, offset int) ([]*SyncLog, error) {
	q := r.builder.
		Select(logColumns...).
		From("sync_logs").
		OrderBy("started_at DESC")

	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get sync logs query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing get sync logs query: %w", err)
	}
	defer rows.Close()

	logs := make([]*SyncLog, 0)
	for rows.Next() {
		log, err := scanSyncLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sync log rows: %w", err)
	}

	return logs, nil
}

// GetLatestSyncLog retrieves the latest sync log, or nil when there is none
func (r *SQLLogRepository) GetLatestSyncLog(ctx context.Context) (*SyncLog, error) {
	query, args, err := r.builder.
		Select(logColumns...).
		From("sync_logs").
		OrderBy("started_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get latest sync log query: %w", err)
	}

	log, err := scanSyncLog(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return log, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSyncLog(row scanner) (*SyncLog, error) {
	var log SyncLog
	var trigger string
	var errorMessage sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&log.ID,
		&trigger,
		&log.Success,
		&log.Synced,
		&log.Failed,
		&log.Conflicts,
		&log.Pulled,
		&log.Removed,
		&errorMessage,
		&log.StartedAt,
		&completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning sync log row: %w", err)
	}

	log.Trigger = Trigger(trigger)
	log.ErrorMessage = errorMessage.String
	log.StartedAt = log.StartedAt.UTC()
	if completedAt.Valid {
		log.CompletedAt = completedAt.Time.UTC()
	}
	return &log, nil
}
