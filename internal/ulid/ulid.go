// Package ulid mints the prefixed identifiers notesync uses ("note-01J...")
// on top of github.com/oklog/ulid/v2.
//
// Note ids are generated on the client at creation time and never change, so
// the monotonic entropy source keeps ids created within the same millisecond
// sortable in creation order.
package ulid

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Prefixes used for notesync identifiers
const (
	// PrefixNote marks note record ids
	PrefixNote = "note"

	// PrefixPass marks orchestration pass ids, used for log correlation
	PrefixPass = "pass"

	// PrefixSync marks sync log rows
	PrefixSync = "sync"

	// PrefixSetting marks settings rows
	PrefixSetting = "set"

	// PrefixRequest marks outbound request ids
	PrefixRequest = "req"

	// PrefixSeparator is used to separate the prefix from the ULID
	PrefixSeparator = "-"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// ID is a ULID with an optional kind prefix
type ID struct {
	ulid.ULID
	Prefix string
}

// New mints an id with the given prefix at t
func New(prefix string, t time.Time) ID {
	entropyLock.Lock()
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	entropyLock.Unlock()
	return ID{ULID: id, Prefix: prefix}
}

// Parse reads a plain or prefixed id
func Parse(s string) (ID, error) {
	prefix, raw, found := strings.Cut(s, PrefixSeparator)
	if !found {
		prefix, raw = "", s
	}

	parsed, err := ulid.Parse(raw)
	if err != nil {
		return ID{}, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return ID{ULID: parsed, Prefix: prefix}, nil
}

// IsKind reports whether s parses as an id carrying prefix
func IsKind(s, prefix string) bool {
	id, err := Parse(s)
	return err == nil && id.Prefix == prefix
}

// String renders the id as "prefix-ULID", or the bare ULID without a prefix
func (id ID) String() string {
	if id.Prefix == "" {
		return id.ULID.String()
	}
	return id.Prefix + PrefixSeparator + id.ULID.String()
}

// Time returns the moment the id was minted
func (id ID) Time() time.Time {
	return ulid.Time(id.ULID.Time())
}

func generate(prefix string) string {
	return New(prefix, time.Now()).String()
}

// NoteID generates a new note id
func NoteID() string { return generate(PrefixNote) }

// PassID generates a new pass id
func PassID() string { return generate(PrefixPass) }

// RequestID generates a new outbound request id
func RequestID() string { return generate(PrefixRequest) }

// SyncID generates a new sync log id
func SyncID() string { return generate(PrefixSync) }

// SettingID generates a new setting id
func SettingID() string { return generate(PrefixSetting) }
