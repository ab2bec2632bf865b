// Package remotetest provides an in-memory remote.Gateway for tests, in the
// spirit of net/http/httptest.
package remotetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tildaslashalef/notesync/internal/note"
	"github.com/tildaslashalef/notesync/internal/remote"
)

// Op names a gateway method for failure injection and call counting
type Op string

const (
	OpFetchAll Op = "fetch_all"
	OpFetchOne Op = "fetch_one"
	OpCreate   Op = "create"
	OpUpdate   Op = "update"
	OpDelete   Op = "delete"
	OpPing     Op = "ping"
)

// Placeholders the server substitutes for empty fields on create
const (
	PlaceholderTitle = "Untitled"
	PlaceholderBody  = " "
)

// Gateway is a goroutine-safe map-backed remote store
type Gateway struct {
	mu       sync.Mutex
	records  map[string]*note.Record
	failures map[Op][]error
	calls    map[Op]int
	hooks    map[Op]func()
	offline  bool

	// Normalize enables server-side placeholder substitution on create
	Normalize bool
}

var _ remote.Gateway = (*Gateway)(nil)

// New returns an empty Gateway
func New() *Gateway {
	return &Gateway{
		records:  make(map[string]*note.Record),
		failures: make(map[Op][]error),
		calls:    make(map[Op]int),
		hooks:    make(map[Op]func()),
	}
}

// Seed stores records as if other devices had pushed them
func (g *Gateway) Seed(records ...*note.Record) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, rec := range records {
		stored := rec.Clone()
		stored.Synced = true
		stored.BaseModifiedAt = time.Time{}
		g.records[rec.ID] = stored
	}
}

// Remove deletes a record as if another device had deleted it
func (g *Gateway) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.records, id)
}

// Record returns a copy of a stored record or nil
func (g *Gateway) Record(id string) *note.Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.records[id].Clone()
}

// Len returns the number of stored records
func (g *Gateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.records)
}

// FailNext makes the next call of op return err. Calls queue up.
func (g *Gateway) FailNext(op Op, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = append(g.failures[op], err)
}

// SetOffline makes every call fail with a transient network error
func (g *Gateway) SetOffline(offline bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.offline = offline
}

// OnCall runs fn each time op is invoked, before the call is served and
// outside the gateway lock
func (g *Gateway) OnCall(op Op, fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks[op] = fn
}

// Calls returns how many times op was invoked
func (g *Gateway) Calls(op Op) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// begin counts the call, runs any hook and pops an injected failure
func (g *Gateway) begin(op Op) error {
	g.mu.Lock()
	g.calls[op]++
	hook := g.hooks[op]
	g.mu.Unlock()

	if hook != nil {
		hook()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.offline {
		return &remote.TransientError{Op: string(op), Err: fmt.Errorf("network unreachable")}
	}
	if queued := g.failures[op]; len(queued) > 0 {
		g.failures[op] = queued[1:]
		return queued[0]
	}
	return nil
}

// FetchAll returns the owner's records, newest creation first
func (g *Gateway) FetchAll(ctx context.Context, ownerID string) ([]*note.Record, error) {
	if err := g.begin(OpFetchAll); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	records := make([]*note.Record, 0, len(g.records))
	for _, rec := range g.records {
		if rec.OwnerID == ownerID {
			records = append(records, rec.Clone())
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// FetchOne returns the record or nil when absent
func (g *Gateway) FetchOne(ctx context.Context, id, ownerID string) (*note.Record, error) {
	if err := g.begin(OpFetchOne); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[id]
	if !ok || rec.OwnerID != ownerID {
		return nil, nil
	}
	return rec.Clone(), nil
}

// Create stores a new record, replacing empty fields with placeholders when
// Normalize is set
func (g *Gateway) Create(ctx context.Context, rec *note.Record) (*note.Record, error) {
	if err := g.begin(OpCreate); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.records[rec.ID]; ok && existing.OwnerID != rec.OwnerID {
		return nil, remote.APIError{StatusCode: 409, ErrorCode: "conflict", Message: "id taken"}
	}

	stored := rec.Clone()
	stored.Synced = true
	stored.BaseModifiedAt = time.Time{}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if g.Normalize {
		if stored.Title == "" {
			stored.Title = PlaceholderTitle
		}
		if stored.Body == "" {
			stored.Body = PlaceholderBody
		}
	}
	g.records[stored.ID] = stored
	return stored.Clone(), nil
}

// Update replaces title, body and modification time of an existing record
func (g *Gateway) Update(ctx context.Context, rec *note.Record) (*note.Record, error) {
	if err := g.begin(OpUpdate); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	stored, ok := g.records[rec.ID]
	if !ok || stored.OwnerID != rec.OwnerID {
		return nil, fmt.Errorf("update %s: %w", rec.ID, remote.ErrNotFound)
	}
	stored.Title = rec.Title
	stored.Body = rec.Body
	stored.ModifiedAt = rec.ModifiedAt
	return stored.Clone(), nil
}

// Delete removes a record; absent records are not an error
func (g *Gateway) Delete(ctx context.Context, id, ownerID string) error {
	if err := g.begin(OpDelete); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if rec, ok := g.records[id]; ok && rec.OwnerID == ownerID {
		delete(g.records, id)
	}
	return nil
}

// Ping fails only while offline or when a failure is injected
func (g *Gateway) Ping(ctx context.Context) error {
	return g.begin(OpPing)
}
