package remotetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/notesync/internal/note"
	"github.com/tildaslashalef/notesync/internal/remote"
)

func TestGatewayRoundTrip(t *testing.T) {
	g := New()
	g.Normalize = true
	ctx := context.Background()

	created, err := g.Create(ctx, &note.Record{ID: "n1", OwnerID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, PlaceholderTitle, created.Title)
	assert.Equal(t, PlaceholderBody, created.Body)
	assert.True(t, created.Synced)

	got, err := g.FetchOne(ctx, "n1", "alice")
	require.NoError(t, err)
	assert.Equal(t, created, got)

	missing, err := g.FetchOne(ctx, "n1", "bob")
	require.NoError(t, err)
	assert.Nil(t, missing, "records of other owners are invisible")

	_, err = g.Update(ctx, &note.Record{ID: "n2", OwnerID: "alice"})
	assert.True(t, remote.IsNotFound(err))

	require.NoError(t, g.Delete(ctx, "n1", "alice"))
	require.NoError(t, g.Delete(ctx, "n1", "alice"))
	assert.Zero(t, g.Len())
	assert.Equal(t, 2, g.Calls(OpDelete))
}

func TestFetchAllOrdersByCreationDescending(t *testing.T) {
	g := New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g.Seed(
		&note.Record{ID: "a", OwnerID: "alice", CreatedAt: base},
		&note.Record{ID: "b", OwnerID: "alice", CreatedAt: base.Add(time.Hour)},
		&note.Record{ID: "c", OwnerID: "bob", CreatedAt: base},
	)

	records, err := g.FetchAll(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0].ID)
	assert.Equal(t, "a", records[1].ID)
}

func TestFailureInjection(t *testing.T) {
	g := New()
	ctx := context.Background()
	boom := errors.New("boom")

	g.FailNext(OpFetchAll, boom)
	_, err := g.FetchAll(ctx, "alice")
	assert.ErrorIs(t, err, boom)

	_, err = g.FetchAll(ctx, "alice")
	assert.NoError(t, err, "injected failures are consumed once")

	g.SetOffline(true)
	assert.True(t, remote.IsTransient(g.Ping(ctx)))
	g.SetOffline(false)
	assert.NoError(t, g.Ping(ctx))
}
