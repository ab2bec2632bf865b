package note

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tildaslashalef/notesync/internal/database"
	"github.com/tildaslashalef/notesync/internal/loggy"
)

// Journal records local mutations awaiting remote application
type Journal interface {
	Enqueue(ctx context.Context, op Operation, rec *Record) (int64, error)
	Acknowledge(ctx context.Context, sequenceID int64) error

	// Rebase moves the base version of the record's entries queued after
	// sequenceID to base
	Rebase(ctx context.Context, recordID string, sequenceID int64, base time.Time) error
}

// JournalFactory binds a Journal to the connection or transaction the
// record write runs on, so both land or neither does.
type JournalFactory func(db database.DBTX) Journal

// MutationListener is told about every journaled mutation
type MutationListener func(op Operation, id string)

type putOptions struct {
	confirmed bool
}

// PutOption tunes Put and Remove
type PutOption func(*putOptions)

// Confirmed marks the mutation as the application of data the remote store
// already holds. The record is stored as synced and nothing is journaled.
func Confirmed() PutOption {
	return func(o *putOptions) {
		o.confirmed = true
	}
}

// Service is the record store: it keeps records and the mutation journal
// consistent
type Service struct {
	db       *sql.DB
	repo     Repository
	journal  JournalFactory
	logger   *loggy.Logger
	now      func() time.Time
	listener MutationListener
}

// NewService creates a record service over db
func NewService(db *sql.DB, journal JournalFactory, logger *loggy.Logger) *Service {
	return &Service{
		db:      db,
		repo:    NewSQLRepository(db, logger),
		journal: journal,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock replaces the service clock
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// OnMutation registers fn to be called after each journaled mutation commits
func (s *Service) OnMutation(fn MutationListener) {
	s.listener = fn
}

// Repository returns the read side of the store
func (s *Service) Repository() Repository {
	return s.repo
}

// List returns the owner's records, most recently modified first
func (s *Service) List(ctx context.Context, ownerID string) ([]*Record, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// Get returns a record or ErrNoteNotFound
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	return s.repo.Get(ctx, id)
}

// Put inserts or replaces rec. Unless rec.Synced is set or the Confirmed
// option is given, the stored row is marked unsynced and a create (new id)
// or update (existing id) entry is journaled with a snapshot of the row.
// CreatedAt of an existing row is preserved. A confirmed write records
// rec.ModifiedAt as the base version; a local one keeps the stored base.
func (s *Service) Put(ctx context.Context, rec *Record, opts ...PutOption) (*Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	o := putOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	confirmed := o.confirmed || rec.Synced

	stored := rec.Clone()
	now := s.now().UTC()
	if stored.ModifiedAt.IsZero() {
		stored.ModifiedAt = now
	}
	stored.Synced = confirmed
	stored.BaseModifiedAt = time.Time{}
	if confirmed {
		stored.BaseModifiedAt = stored.ModifiedAt
	}

	op := OpCreate
	var seq int64
	err := database.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		repo := NewSQLRepository(tx, s.logger)

		existing, err := repo.Get(ctx, stored.ID)
		switch {
		case err == nil:
			if existing.OwnerID != stored.OwnerID {
				return ErrOwnerMismatch
			}
			op = OpUpdate
			stored.CreatedAt = existing.CreatedAt
			if !confirmed {
				stored.BaseModifiedAt = existing.BaseModifiedAt
			}
		case errors.Is(err, ErrNoteNotFound):
			if stored.CreatedAt.IsZero() {
				stored.CreatedAt = stored.ModifiedAt
			}
		default:
			return err
		}

		if err := repo.Upsert(ctx, stored); err != nil {
			return err
		}

		if confirmed {
			return nil
		}

		seq, err = s.journal(tx).Enqueue(ctx, op, stored)
		if err != nil {
			return fmt.Errorf("journaling %s: %w", op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !confirmed {
		s.logger.Debug("Journaled note mutation", "op", op, "id", stored.ID, "sequence_id", seq)
		s.notify(op, stored.ID)
	}

	return stored, nil
}

// Remove deletes the record with id. ownerID guards against deleting another
// owner's row. Unless Confirmed is given a delete entry carrying the last
// known snapshot is journaled. Removing an absent record journals a delete
// with just the id and owner, so a remote copy still gets removed.
func (s *Service) Remove(ctx context.Context, id, ownerID string, opts ...PutOption) error {
	if id == "" || ownerID == "" {
		return ErrInvalidNote
	}

	o := putOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	err := database.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		repo := NewSQLRepository(tx, s.logger)

		snapshot, err := repo.Get(ctx, id)
		switch {
		case err == nil:
			if snapshot.OwnerID != ownerID {
				return ErrOwnerMismatch
			}
		case errors.Is(err, ErrNoteNotFound):
			snapshot = &Record{ID: id, OwnerID: ownerID}
		default:
			return err
		}

		if err := repo.Delete(ctx, id); err != nil {
			return err
		}

		if o.confirmed {
			return nil
		}

		if _, err := s.journal(tx).Enqueue(ctx, OpDelete, snapshot); err != nil {
			return fmt.Errorf("journaling delete: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if !o.confirmed {
		s.notify(OpDelete, id)
	}
	return nil
}

// Create stores a brand new unsynced note
func (s *Service) Create(ctx context.Context, ownerID, title, body string) (*Record, error) {
	return s.Put(ctx, New(ownerID, title, body, s.now()))
}

// Edit changes the title and/or body of an existing note. Nil arguments keep
// the current value. ModifiedAt moves forward even if the clock went back.
func (s *Service) Edit(ctx context.Context, id, ownerID string, title, body *string) (*Record, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.OwnerID != ownerID {
		return nil, ErrOwnerMismatch
	}

	next := current.Clone()
	if title != nil {
		next.Title = *title
	}
	if body != nil {
		next.Body = *body
	}
	if next.SameContent(current) {
		return current, nil
	}

	next.ModifiedAt = NextModified(current.ModifiedAt, s.now())
	next.Synced = false
	return s.Put(ctx, next)
}

// Settle applies the outcome of a successful remote write for queue entry
// sequenceID. The stored row is replaced by rec (marked synced) only when it
// still exists and was not modified after pushedAt; a newer local edit keeps
// its own queue entry and stays unsynced. Either way rec.ModifiedAt becomes
// the base version of the row and of the record's later queue entries. The
// entry is acknowledged in the same transaction. Settle reports whether the
// row was replaced.
func (s *Service) Settle(ctx context.Context, rec *Record, pushedAt time.Time, sequenceID int64) (bool, error) {
	applied := false
	base := rec.ModifiedAt.UTC()
	err := database.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		repo := NewSQLRepository(tx, s.logger)
		journal := s.journal(tx)

		current, err := repo.Get(ctx, rec.ID)
		switch {
		case err == nil:
			next := current
			if !current.ModifiedAt.After(pushedAt) {
				next = rec.Clone()
				next.Synced = true
				if next.CreatedAt.IsZero() {
					next.CreatedAt = current.CreatedAt
				}
				applied = true
			}
			next.BaseModifiedAt = base
			if err := repo.Upsert(ctx, next); err != nil {
				return err
			}
		case errors.Is(err, ErrNoteNotFound):
			// deleted locally meanwhile; its delete entry follows in the queue
		default:
			return err
		}

		if err := journal.Rebase(ctx, rec.ID, sequenceID, base); err != nil {
			return err
		}
		return journal.Acknowledge(ctx, sequenceID)
	})
	return applied, err
}

func (s *Service) notify(op Operation, id string) {
	if s.listener != nil {
		s.listener(op, id)
	}
}
