package jobconfig

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/dataloader/errors"
	"github.com/teranos/dataloader/internal/util"
	dltest "github.com/teranos/dataloader/internal/testing"
)

func newDraft(id, itemID, name string) *Record {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &Record{
		ID:       id,
		ParentID: id,
		Revision: 1,
		ItemID:   itemID,
		Name:     name,
		Notes:    Notes{Severity: "LOW"},
		Source: Fragment{
			ResourceID:   "res-src",
			ResourceType: "POSTGRESQL",
			UserFields:   map[string]interface{}{"query": "SELECT 1"},
			SystemFields: SystemFields("POSTGRESQL", RoleReader),
		},
		Target: Fragment{
			ResourceType: "DATATABLE",
			SystemFields: SystemFields("DATATABLE", RoleWriter),
		},
		ChunkSize: util.Ptr(1000),
		State:     StateDraft,
		CreatedBy: "tester",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func insert(t *testing.T, store *Store, rec *Record) InsertResult {
	t.Helper()
	var res InsertResult
	err := store.Transact(context.Background(), func(tx Tx) error {
		var err error
		res, err = tx.Records().Insert(context.Background(), rec)
		return err
	})
	require.NoError(t, err)
	return res
}

func TestRecordRoundTrip(t *testing.T) {
	store := NewStore(dltest.CreateTestDB(t), nil)
	ctx := context.Background()

	draft := newDraft("d-1", "item-1", "nightly")
	res := insert(t, store, draft)
	assert.Equal(t, Inserted, res.Outcome)

	got, err := store.Records().Get(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, draft.ParentID, got.ParentID)
	assert.Equal(t, StateDraft, got.State)
	assert.Equal(t, "SELECT 1", got.Source.UserFields["query"])
	assert.Equal(t, "jdbc", got.Source.SystemFields["reader"])
	assert.Nil(t, got.Target.UserFields)
	assert.Equal(t, 1000, *got.ChunkSize)
	assert.True(t, draft.CreatedAt.Equal(got.CreatedAt))
	assert.Empty(t, got.PublishedVersion)
}

func TestGetMissingRecord(t *testing.T) {
	store := NewStore(dltest.CreateTestDB(t), nil)

	_, err := store.Records().Get(context.Background(), "nope")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestInsertRevisionConflict(t *testing.T) {
	store := NewStore(dltest.CreateTestDB(t), nil)
	insert(t, store, newDraft("d-1", "item-1", "nightly"))

	pub := newDraft("p-1", "item-1", "nightly")
	pub.ParentID = "d-1"
	pub.State = StatePublished
	pub.PublishedVersion = "v1.0"
	pub.Revision = 1 // already taken by the draft

	res := insert(t, store, pub)
	assert.Equal(t, Conflict, res.Outcome)
	assert.Contains(t, res.Constraint, "revision")
}

func TestInsertPublishedVersionConflict(t *testing.T) {
	store := NewStore(dltest.CreateTestDB(t), nil)
	insert(t, store, newDraft("d-1", "item-1", "nightly"))

	for i, id := range []string{"p-1", "p-2"} {
		pub := newDraft(id, "item-1", "nightly")
		pub.ParentID = "d-1"
		pub.Revision = i + 2
		pub.State = StatePublished
		pub.PublishedVersion = "v1.0"

		res := insert(t, store, pub)
		if i == 0 {
			assert.Equal(t, Inserted, res.Outcome)
		} else {
			assert.Equal(t, Conflict, res.Outcome)
		}
	}
}

func TestInsertDuplicateDraftName(t *testing.T) {
	store := NewStore(dltest.CreateTestDB(t), nil)
	insert(t, store, newDraft("d-1", "item-1", "nightly"))

	err := store.Transact(context.Background(), func(tx Tx) error {
		_, err := tx.Records().Insert(context.Background(), newDraft("d-2", "item-1", "nightly"))
		return err
	})
	assert.True(t, errors.IsDuplicationError(err))

	// same name under another item is fine
	res := insert(t, store, newDraft("d-3", "item-2", "nightly"))
	assert.Equal(t, Inserted, res.Outcome)
}

func TestLatestAndRevisions(t *testing.T) {
	store := NewStore(dltest.CreateTestDB(t), nil)
	ctx := context.Background()
	insert(t, store, newDraft("d-1", "item-1", "nightly"))

	next, err := store.Records().NextRevision(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, 2, next)

	for i, v := range []string{"v1.0", "v1.1"} {
		pub := newDraft("p-"+v, "item-1", "nightly "+v)
		pub.ParentID = "d-1"
		pub.Revision = i + 2
		pub.State = StatePublished
		pub.PublishedVersion = v
		insert(t, store, pub)
	}

	latest, err := store.Records().Latest(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, "v1.1", latest.PublishedVersion)

	labels, err := store.Records().VersionLabels(ctx, "d-1", StatePublished)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1.0", "v1.1"}, labels)

	deployed, err := store.Records().VersionLabels(ctx, "d-1", StateDeployed)
	require.NoError(t, err)
	assert.Empty(t, deployed)

	lineage, err := store.Records().Lineage(ctx, "d-1")
	require.NoError(t, err)
	require.Len(t, lineage, 3)
	assert.Equal(t, StateDraft, lineage[0].State)

	next, err = store.Records().NextRevision(ctx, "empty")
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	_, err = store.Records().Latest(ctx, "empty")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestUpdateRecord(t *testing.T) {
	store := NewStore(dltest.CreateTestDB(t), nil)
	ctx := context.Background()
	draft := newDraft("d-1", "item-1", "nightly")
	insert(t, store, draft)

	Patch{Description: util.Ptr("loads orders"), TargetUserFields: map[string]interface{}{"table": "orders"}}.Apply(draft)
	draft.IsActive = true
	draft.UpdatedBy = "editor"

	err := store.Transact(ctx, func(tx Tx) error {
		return tx.Records().Update(ctx, draft)
	})
	require.NoError(t, err)

	got, err := store.Records().Get(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, "loads orders", got.Description)
	assert.Equal(t, "orders", got.Target.UserFields["table"])
	assert.True(t, got.IsActive)
	assert.Equal(t, "editor", got.UpdatedBy)

	missing := newDraft("ghost", "item-1", "ghost")
	err = store.Transact(ctx, func(tx Tx) error {
		return tx.Records().Update(ctx, missing)
	})
	assert.True(t, errors.IsNotFoundError(err))
}

func TestReferences(t *testing.T) {
	store := NewStore(dltest.CreateTestDB(t), nil)
	ctx := context.Background()
	now := time.Now()

	insert(t, store, newDraft("d-1", "item-1", "a"))
	insert(t, store, newDraft("d-2", "item-2", "b"))

	err := store.Transact(ctx, func(tx Tx) error {
		if err := tx.References().Create(ctx, &Reference{ParentID: "d-1", ItemID: "item-1", CreatedAt: now, UpdatedAt: now}); err != nil {
			return err
		}
		return tx.References().Create(ctx, &Reference{ParentID: "d-2", ItemID: "item-2", CreatedAt: now, UpdatedAt: now})
	})
	require.NoError(t, err)

	ref, err := store.References().Get(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, "item-1", ref.ItemID)
	assert.Empty(t, ref.PublishedID)

	require.NoError(t, store.References().SetPublished(ctx, "d-1", "d-1"))
	ref, err = store.References().Get(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, "d-1", ref.PublishedID)

	all, err := store.References().ListByItem(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byItem, err := store.References().ListByItem(ctx, "item-2")
	require.NoError(t, err)
	require.Len(t, byItem, 1)
	assert.Equal(t, "d-2", byItem[0].ParentID)

	err = store.References().Create(ctx, &Reference{ParentID: "d-1", ItemID: "item-1", CreatedAt: now, UpdatedAt: now})
	assert.True(t, errors.IsDuplicationError(err))

	assert.True(t, errors.IsNotFoundError(store.References().SetPublished(ctx, "nope", "d-1")))
	assert.True(t, errors.IsNotFoundError(store.References().Delete(ctx, "nope")))

	_, err = store.References().Get(ctx, "nope")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestDeleteLineage(t *testing.T) {
	store := NewStore(dltest.CreateTestDB(t), nil)
	ctx := context.Background()
	now := time.Now()

	insert(t, store, newDraft("d-1", "item-1", "a"))
	pub := newDraft("p-1", "item-1", "a")
	pub.ParentID = "d-1"
	pub.Revision = 2
	pub.State = StatePublished
	pub.PublishedVersion = "v1.0"
	insert(t, store, pub)

	var deleted int64
	err := store.Transact(ctx, func(tx Tx) error {
		if err := tx.References().Create(ctx, &Reference{ParentID: "d-1", ItemID: "item-1", CreatedAt: now, UpdatedAt: now}); err != nil {
			return err
		}
		if err := tx.References().Delete(ctx, "d-1"); err != nil {
			return err
		}
		var err error
		deleted, err = tx.Records().DeleteLineage(ctx, "d-1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	lineage, err := store.Records().Lineage(ctx, "d-1")
	require.NoError(t, err)
	assert.Empty(t, lineage)
}

func TestTransactRollsBack(t *testing.T) {
	store := NewStore(dltest.CreateTestDB(t), nil)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.Transact(ctx, func(tx Tx) error {
		if _, err := tx.Records().Insert(ctx, newDraft("d-1", "item-1", "a")); err != nil {
			return err
		}
		return boom
	})
	assert.Equal(t, boom, err)

	_, err = store.Records().Get(ctx, "d-1")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStoreFailureIsMarked(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO job_configs").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	store := NewStore(mockDB, nil)
	err = store.Transact(context.Background(), func(tx Tx) error {
		_, err := tx.Records().Insert(context.Background(), newDraft("d-1", "item-1", "a"))
		return err
	})

	assert.True(t, errors.IsStoreError(err))
	assert.True(t, errors.Is(err, sql.ErrConnDone))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginFailureIsMarked(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectBegin().WillReturnError(sql.ErrConnDone)

	store := NewStore(mockDB, nil)
	err = store.Transact(context.Background(), func(Tx) error { return nil })
	assert.True(t, errors.IsStoreError(err))
}
