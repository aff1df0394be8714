package catalog

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcwinter/streamlens/internal/store"
	"github.com/marcwinter/streamlens/pkg/stats"
)

func TestHooksStreamEventRecomputesGeneral(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.ReplaceStreams(ctx, []store.Stream{
		toStoreStream(liveStream("1", 10)),
	}))

	h := NewHooks(f.engine, zerolog.Nop())
	require.NoError(t, h.Notify(ctx, EntityStream, EventCreated))

	agg, ok, err := f.engine.General(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10.0, agg.MedianViewerCount)
}

func TestHooksTagEventRecomputesTaxonomy(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.UpsertTags(ctx, []store.Tag{{ID: "x", Name: "X"}}))

	h := NewHooks(f.engine, zerolog.Nop())
	require.NoError(t, h.Notify(ctx, EntityTag, EventDeleted))

	var byID map[string]store.Tag
	require.NoError(t, f.cache.Get(ctx, stats.KeyTags, &byID))
	assert.Contains(t, byID, "x")
}

func TestHooksAllEventsShareEntityScope(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	h := NewHooks(f.engine, zerolog.Nop())

	events := []Event{EventCreated, EventUpdated, EventDeleted, EventRestored, EventForceDeleted}
	for _, ev := range events {
		assert.NoError(t, h.Notify(ctx, EntityTag, ev))
	}
}

func TestHooksUnknownEntity(t *testing.T) {
	f := newSyncFixture(t)
	h := NewHooks(f.engine, zerolog.Nop())

	err := h.Notify(context.Background(), Entity("game"), EventCreated)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown entity")
}
