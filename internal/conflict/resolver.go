// Package conflict decides what a note looks like when the local and remote
// copies disagree. Everything here is pure: the only input besides the two
// records is the clock used to stamp ModifiedAt.
package conflict

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tildaslashalef/notesync/internal/note"
)

// Strategy selects how a conflict is resolved
type Strategy string

const (
	// LocalWins keeps the local content and stamps it newer than the remote
	LocalWins Strategy = "local-wins"
	// ServerWins takes the remote record as is
	ServerWins Strategy = "server-wins"
	// Merge concatenates both bodies unless the local body already holds the remote one
	Merge Strategy = "merge"
	// Manual keeps the local record untouched and leaves the decision to the user
	Manual Strategy = "manual"

	// DefaultStrategy is used when no strategy is configured
	DefaultStrategy = LocalWins
)

// MergeSeparator sits between the remote and the local body of a merged note
const MergeSeparator = "\n\n--- merged ---\n\n"

// ErrUnknownStrategy is returned by ParseStrategy for unsupported names
var ErrUnknownStrategy = errors.New("unknown conflict strategy")

// Strategies lists every supported strategy
func Strategies() []Strategy {
	return []Strategy{LocalWins, ServerWins, Merge, Manual}
}

// Valid reports whether s is a supported strategy
func (s Strategy) Valid() bool {
	switch s {
	case LocalWins, ServerWins, Merge, Manual:
		return true
	}
	return false
}

// ParseStrategy converts a configured name to a Strategy. The empty string
// maps to DefaultStrategy.
func ParseStrategy(name string) (Strategy, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return DefaultStrategy, nil
	}

	s := Strategy(name)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return s, nil
}

// DetectConflict reports whether the two copies differ in content. Timestamps
// and sync state are not compared.
func DetectConflict(local, remote *note.Record) bool {
	if local == nil || remote == nil {
		return false
	}
	return !local.SameContent(remote)
}

// Resolver resolves conflicts using Now for timestamp stamping
type Resolver struct {
	Now func() time.Time
}

// NewResolver returns a Resolver on the wall clock
func NewResolver() Resolver {
	return Resolver{Now: time.Now}
}

// Resolve resolves a conflict on the wall clock
func Resolve(local, remote *note.Record, strategy Strategy) *note.Record {
	return NewResolver().Resolve(local, remote, strategy)
}

// Resolve returns the record both sides should converge to. The inputs are
// never modified. An unknown strategy behaves like DefaultStrategy.
func (r Resolver) Resolve(local, remote *note.Record, strategy Strategy) *note.Record {
	switch {
	case local == nil && remote == nil:
		return nil
	case remote == nil:
		return local.Clone()
	case local == nil:
		return remote.Clone()
	}

	if !strategy.Valid() {
		strategy = DefaultStrategy
	}

	switch strategy {
	case ServerWins:
		return remote.Clone()

	case Manual:
		return local.Clone()

	case Merge:
		if strings.Contains(local.Body, remote.Body) {
			return local.Clone()
		}
		merged := local.Clone()
		merged.Body = remote.Body + MergeSeparator + local.Body
		if merged.Title == "" {
			merged.Title = remote.Title
		}
		merged.ModifiedAt = r.stamp(local, remote)
		return merged

	default:
		resolved := local.Clone()
		resolved.ModifiedAt = r.stamp(local, remote)
		return resolved
	}
}

// stamp returns the current time, moved past both inputs if the clock lags
// behind them, so the result always reads as the newest version.
func (r Resolver) stamp(local, remote *note.Record) time.Time {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	latest := local.ModifiedAt
	if remote.ModifiedAt.After(latest) {
		latest = remote.ModifiedAt
	}
	return note.NextModified(latest, now())
}
