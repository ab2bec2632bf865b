package conflict

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/notesync/internal/note"
)

var (
	t1 = time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	t2 = t1.Add(time.Hour)
	t3 = t2.Add(time.Hour)
)

func fixedClock(ts time.Time) Resolver {
	return Resolver{Now: func() time.Time { return ts }}
}

func pair() (*note.Record, *note.Record) {
	local := &note.Record{ID: "n2", OwnerID: "alice", Title: "Plan", Body: "local", CreatedAt: t1, ModifiedAt: t2}
	remote := &note.Record{ID: "n2", OwnerID: "alice", Title: "Plan", Body: "remote", CreatedAt: t1, ModifiedAt: t3, Synced: true}
	return local, remote
}

func TestDetectConflict(t *testing.T) {
	base := &note.Record{ID: "n", Title: "a", Body: "b", ModifiedAt: t1}

	tests := []struct {
		name   string
		remote *note.Record
		want   bool
	}{
		{"identical content with newer timestamp", &note.Record{ID: "n", Title: "a", Body: "b", ModifiedAt: t3}, false},
		{"title differs", &note.Record{ID: "n", Title: "A", Body: "b"}, true},
		{"body differs", &note.Record{ID: "n", Title: "a", Body: "c"}, true},
		{"missing remote", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectConflict(base, tt.remote))
		})
	}
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, LocalWins, s)

	s, err = ParseStrategy(" Merge ")
	require.NoError(t, err)
	assert.Equal(t, Merge, s)

	_, err = ParseStrategy("newest-wins")
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	for _, s := range Strategies() {
		assert.True(t, s.Valid(), s)
	}
}

func TestResolveLocalWins(t *testing.T) {
	local, remote := pair()
	now := t3.Add(time.Minute)

	got := fixedClock(now).Resolve(local, remote, LocalWins)

	assert.Equal(t, "local", got.Body)
	assert.Equal(t, "Plan", got.Title)
	assert.True(t, got.ModifiedAt.Equal(now))
	assert.True(t, local.ModifiedAt.Equal(t2), "input is not modified")
}

func TestResolveLocalWinsIsIdempotent(t *testing.T) {
	local, remote := pair()
	r := fixedClock(t3.Add(time.Minute))

	for i := 0; i < 3; i++ {
		got := r.Resolve(local, remote, LocalWins)
		assert.Equal(t, local.Title, got.Title)
		assert.Equal(t, local.Body, got.Body)
		assert.Equal(t, local.ID, got.ID)
	}
}

func TestResolveStampNeverLagsInputs(t *testing.T) {
	local, remote := pair()

	// clock behind the remote copy
	got := fixedClock(t1).Resolve(local, remote, LocalWins)
	assert.True(t, got.ModifiedAt.After(remote.ModifiedAt))
}

func TestResolveServerWins(t *testing.T) {
	local, remote := pair()

	got := fixedClock(t3.Add(time.Hour)).Resolve(local, remote, ServerWins)
	assert.Equal(t, *remote, *got)
	assert.NotSame(t, remote, got)
}

func TestResolveManual(t *testing.T) {
	local, remote := pair()

	got := fixedClock(t3.Add(time.Hour)).Resolve(local, remote, Manual)
	assert.Equal(t, *local, *got)
}

func TestResolveMerge(t *testing.T) {
	now := t3.Add(time.Minute)

	t.Run("concatenates remote then local", func(t *testing.T) {
		local, remote := pair()
		got := fixedClock(now).Resolve(local, remote, Merge)

		assert.Equal(t, "remote"+MergeSeparator+"local", got.Body)
		assert.Equal(t, "Plan", got.Title)
		assert.True(t, got.ModifiedAt.Equal(now))
	})

	t.Run("falls back to remote title", func(t *testing.T) {
		local, remote := pair()
		local.Title = ""
		got := fixedClock(now).Resolve(local, remote, Merge)
		assert.Equal(t, "Plan", got.Title)
	})

	t.Run("superset local body is returned unchanged", func(t *testing.T) {
		local, remote := pair()
		local.Body = "intro\nremote\noutro"

		got := fixedClock(now).Resolve(local, remote, Merge)
		assert.Equal(t, *local, *got)
	})

	t.Run("merging twice adds one marker", func(t *testing.T) {
		local, remote := pair()
		r := fixedClock(now)

		once := r.Resolve(local, remote, Merge)
		twice := r.Resolve(once, remote, Merge)

		assert.Equal(t, once.Body, twice.Body)
		assert.Equal(t, 1, strings.Count(twice.Body, MergeSeparator))
	})
}

func TestResolveUnknownStrategyFallsBackToDefault(t *testing.T) {
	local, remote := pair()
	now := t3.Add(time.Minute)

	got := fixedClock(now).Resolve(local, remote, Strategy("coin-flip"))
	assert.Equal(t, "local", got.Body)
	assert.True(t, got.ModifiedAt.Equal(now))
}

func TestResolveMissingSide(t *testing.T) {
	local, remote := pair()

	assert.Equal(t, *local, *Resolve(local, nil, ServerWins))
	assert.Equal(t, *remote, *Resolve(nil, remote, LocalWins))
	assert.Nil(t, Resolve(nil, nil, Merge))
}
