package activity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	dltest "github.com/teranos/dataloader/internal/testing"
)

func TestAppendAndList(t *testing.T) {
	store := NewStore(dltest.CreateTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, Event{Type: DraftSaved, EntityID: "d-1", EntityName: "nightly", Actor: "alice"}))
	require.NoError(t, store.Append(ctx, Event{Type: JobPublished, EntityID: "p-1", Actor: "alice"}))
	require.NoError(t, store.Append(ctx, Event{Type: JobUpdated, EntityID: "d-1"}))

	all, err := store.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, JobUpdated, all[0].Type, "newest first")

	forDraft, err := store.List(ctx, "d-1", 10)
	require.NoError(t, err)
	require.Len(t, forDraft, 2)
	assert.Equal(t, "nightly", forDraft[1].EntityName)
	assert.Equal(t, "alice", forDraft[1].Actor)
	assert.False(t, forDraft[1].CreatedAt.IsZero())

	limited, err := store.List(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecorderSwallowsFailures(t *testing.T) {
	database := dltest.CreateTestDB(t)
	core, logs := observer.New(zapcore.WarnLevel)
	rec := NewRecorder(NewStore(database), zap.New(core).Sugar())

	database.Close()
	rec.Record(context.Background(), Event{Type: DraftSaved, EntityID: "d-1"})

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Failed to record activity", logs.All()[0].Message)
}

func TestDiscard(t *testing.T) {
	var log Log = Discard{}
	log.Record(context.Background(), Event{Type: DraftSaved})
}
