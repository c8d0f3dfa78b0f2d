package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/dataloader/activity"
	"github.com/teranos/dataloader/am"
	"github.com/teranos/dataloader/catalog"
	"github.com/teranos/dataloader/errors"
	"github.com/teranos/dataloader/internal/util"
	dltest "github.com/teranos/dataloader/internal/testing"
	"github.com/teranos/dataloader/jobconfig"
	"github.com/teranos/dataloader/logger"
	"github.com/teranos/dataloader/scheduler"
)

type fakeGateway struct {
	submissions []scheduler.Submission
	err         error
}

func (g *fakeGateway) Submit(_ context.Context, sub scheduler.Submission) (scheduler.Handle, error) {
	if g.err != nil {
		return scheduler.Handle{}, g.err
	}
	g.submissions = append(g.submissions, sub)
	return scheduler.Handle{
		RemoteJobID:   fmt.Sprintf("remote-%d", len(g.submissions)),
		RemoteJobName: sub.Bundle.ConfigName,
	}, nil
}

type fixture struct {
	db      *sql.DB
	mgr     *Manager
	catalog *catalog.Store
	gateway *fakeGateway
	events  *activity.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := dltest.CreateTestDB(t)
	log := zaptest.NewLogger(t).Sugar()

	f := &fixture{
		db:      database,
		catalog: catalog.NewStore(database, log),
		gateway: &fakeGateway{},
		events:  activity.NewStore(database),
	}
	f.mgr = NewManager(
		jobconfig.NewStore(database, log),
		f.catalog,
		f.gateway,
		activity.NewRecorder(f.events, log),
		Config{SubmitTimeout: time.Second, DefaultActor: "tester"},
		log,
	)
	return f
}

func (f *fixture) countLineage(t *testing.T, parentID string) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM job_configs WHERE parent_id = ?`, parentID).Scan(&n))
	return n
}

func draftDefinition(itemID, name string) Definition {
	return Definition{
		ItemID: itemID,
		Name:   name,
		Source: FragmentInput{ResourceType: "PostgreSQL", UserFields: map[string]interface{}{"query": "SELECT * FROM orders"}},
		Target: FragmentInput{ResourceType: "DATATABLE"},
	}
}

func TestSaveDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.mgr.SaveDraft(ctx, draftDefinition("APP-1", "orders"))
	require.NoError(t, err)

	assert.NotEmpty(t, draft.ID)
	assert.Equal(t, draft.ID, draft.ParentID, "first draft starts its own lineage")
	assert.Equal(t, jobconfig.StateDraft, draft.State)
	assert.False(t, draft.IsActive)
	assert.Equal(t, "tester", draft.CreatedBy)
	assert.Equal(t, "jdbc", draft.Source.SystemFields["reader"])
	assert.Equal(t, "datatable-writer", draft.Target.SystemFields["writer"])

	stored, err := f.mgr.Get(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, draft.ParentID, stored.ParentID)

	ref, err := f.mgr.Reference(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "APP-1", ref.ItemID)
	assert.Empty(t, ref.PublishedID)

	events, err := f.events.List(ctx, draft.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, activity.DraftSaved, events[0].Type)
}

func TestSaveDraftValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.SaveDraft(ctx, Definition{Name: "no item"})
	assert.True(t, errors.IsValidationError(err))

	def := draftDefinition("APP-1", "chunky")
	def.ChunkSize = util.Ptr(0)
	_, err = f.mgr.SaveDraft(ctx, def)
	assert.True(t, errors.IsValidationError(err))

	refs, err := f.mgr.ListReferences(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestSaveDraftDuplicateName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.SaveDraft(ctx, draftDefinition("APP-1", "orders"))
	require.NoError(t, err)

	_, err = f.mgr.SaveDraft(ctx, draftDefinition("APP-1", "orders"))
	assert.True(t, errors.IsDuplicationError(err))
}

func TestSaveDraftActorFromContext(t *testing.T) {
	f := newFixture(t)
	ctx := logger.WithActor(context.Background(), "alice")

	draft, err := f.mgr.SaveDraft(ctx, draftDefinition("APP-1", "orders"))
	require.NoError(t, err)
	assert.Equal(t, "alice", draft.CreatedBy)

	def := draftDefinition("APP-1", "other")
	def.Actor = "bob"
	draft, err = f.mgr.SaveDraft(ctx, def)
	require.NoError(t, err)
	assert.Equal(t, "bob", draft.CreatedBy)
}

// End-to-end: publish a fresh definition, then publish the result again.
func TestPublishEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	def := Definition{
		ItemID: "APP-1",
		Name:   "customers",
		Source: FragmentInput{ResourceType: "PostgreSQL"},
	}

	first, err := f.mgr.Publish(ctx, def)
	require.NoError(t, err)
	assert.Equal(t, "v1.0", first.PublishedVersion)
	assert.Equal(t, jobconfig.StatePublished, first.State)
	assert.Empty(t, first.DeployedVersion)
	assert.False(t, first.IsDeployed())
	assert.Equal(t, 2, f.countLineage(t, first.ParentID))

	lineage, err := f.mgr.Lineage(ctx, first.ParentID)
	require.NoError(t, err)
	require.Len(t, lineage, 2)
	draft := lineage[0]
	assert.Equal(t, jobconfig.StateDraft, draft.State)
	assert.Equal(t, draft.ID, first.ParentID)
	assert.Equal(t, draft.ID, first.DerivedFrom)

	ref, err := f.mgr.Reference(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, ref.ParentID)
	assert.Equal(t, "APP-1", ref.ItemID)
	assert.Equal(t, first.ID, ref.PublishedID)

	second, err := f.mgr.Publish(ctx, Definition{ID: first.ID})
	require.NoError(t, err)
	assert.Equal(t, "v1.1", second.PublishedVersion)
	assert.Equal(t, draft.ID, second.ParentID)
	assert.Equal(t, "customers", second.Name)
	assert.Equal(t, 3, f.countLineage(t, draft.ID))

	ref, err = f.mgr.Reference(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, ref.PublishedID)
}

func TestPublishDraftByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.mgr.SaveDraft(ctx, draftDefinition("APP-1", "orders"))
	require.NoError(t, err)

	pub, err := f.mgr.Publish(ctx, Definition{ID: draft.ID})
	require.NoError(t, err)
	assert.Equal(t, "v1.0", pub.PublishedVersion)
	assert.Equal(t, draft.ID, pub.ParentID)
	assert.Equal(t, "SELECT * FROM orders", pub.Source.UserFields["query"])

	// the draft itself is untouched
	stored, err := f.mgr.Get(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, jobconfig.StateDraft, stored.State)
	assert.Empty(t, stored.PublishedVersion)
}

func TestPublishIntoLineage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.mgr.SaveDraft(ctx, draftDefinition("APP-1", "orders"))
	require.NoError(t, err)
	_, err = f.mgr.Publish(ctx, Definition{ID: draft.ID})
	require.NoError(t, err)

	pub, err := f.mgr.Publish(ctx, Definition{
		ParentID:    draft.ID,
		Name:        "ignored",
		Description: "now with chunking",
		ChunkSize:   util.Ptr(500),
		Source:      FragmentInput{ResourceType: "MYSQL"},
	})
	require.NoError(t, err)
	assert.Equal(t, "v1.1", pub.PublishedVersion)
	assert.Equal(t, "orders", pub.Name, "name comes from the lineage")
	assert.Equal(t, "APP-1", pub.ItemID)
	assert.Equal(t, "now with chunking", pub.Description)
	assert.Equal(t, "mysql", pub.Source.SystemFields["dialect"])
	require.NotNil(t, pub.ChunkSize)
	assert.Equal(t, 500, *pub.ChunkSize)
	assert.Equal(t, "SELECT * FROM orders", pub.Source.UserFields["query"], "unset user fields are kept")
	assert.Equal(t, "DATATABLE", pub.Target.ResourceType, "untouched target survives")
	assert.Equal(t, "datatable-writer", pub.Target.SystemFields["writer"])

	_, err = f.mgr.Publish(ctx, Definition{ParentID: "missing"})
	assert.True(t, errors.IsNotFoundError(err))

	_, err = f.mgr.Publish(ctx, Definition{ID: "missing"})
	assert.True(t, errors.IsNotFoundError(err))
}

func TestPublishIntoLineageKeepsUnsetFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	def := draftDefinition("APP-1", "orders")
	def.ChunkSize = util.Ptr(250)
	def.ScheduleExpression = "@daily"
	def.IsScheduled = true
	def.Notes = jobconfig.Notes{Severity: "high"}
	draft, err := f.mgr.SaveDraft(ctx, def)
	require.NoError(t, err)

	pub, err := f.mgr.Publish(ctx, Definition{ParentID: draft.ID, Description: "described"})
	require.NoError(t, err)

	assert.Equal(t, "described", pub.Description)
	assert.Equal(t, "high", pub.Notes.Severity)
	assert.Equal(t, "PostgreSQL", pub.Source.ResourceType)
	assert.Equal(t, "jdbc", pub.Source.SystemFields["reader"])
	assert.Equal(t, "SELECT * FROM orders", pub.Source.UserFields["query"])
	assert.Equal(t, "DATATABLE", pub.Target.ResourceType)
	assert.Equal(t, "datatable-writer", pub.Target.SystemFields["writer"])
	require.NotNil(t, pub.ChunkSize)
	assert.Equal(t, 250, *pub.ChunkSize)
	assert.Equal(t, "@daily", pub.ScheduleExpression)
	assert.True(t, pub.IsScheduled)

	pub, err = f.mgr.Publish(ctx, Definition{
		ParentID: draft.ID,
		Source:   FragmentInput{UserFields: map[string]interface{}{"query": "SELECT id FROM orders"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM orders", pub.Source.UserFields["query"])
	assert.Equal(t, "PostgreSQL", pub.Source.ResourceType)
	assert.Equal(t, "described", pub.Description, "description comes from the latest record")
}

func TestUnnamedDraftsShareAnItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.mgr.SaveDraft(ctx, Definition{ItemID: "APP-1"})
	require.NoError(t, err)
	second, err := f.mgr.SaveDraft(ctx, Definition{ItemID: "APP-1"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ParentID, second.ParentID)

	pub, err := f.mgr.Publish(ctx, Definition{ItemID: "APP-1"})
	require.NoError(t, err)
	assert.Equal(t, "v1.0", pub.PublishedVersion)

	refs, err := f.mgr.ListReferences(ctx, "APP-1")
	require.NoError(t, err)
	assert.Len(t, refs, 3)
}

func TestPublishFromDeployedRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pub, err := f.mgr.Publish(ctx, draftDefinition("APP-1", "orders"))
	require.NoError(t, err)
	dep, _, err := f.mgr.Deploy(ctx, pub.ID, "")
	require.NoError(t, err)

	again, err := f.mgr.Publish(ctx, Definition{ID: dep.ID})
	require.NoError(t, err)
	assert.Equal(t, jobconfig.StatePublished, again.State)
	assert.Equal(t, "v1.1", again.PublishedVersion)
	assert.Empty(t, again.DeployedVersion)
	assert.False(t, again.IsActive)
	assert.Equal(t, dep.ID, again.DerivedFrom)
	assert.Equal(t, pub.ParentID, again.ParentID)
	assert.Equal(t, "orders", again.Name)

	ref, err := f.mgr.Reference(ctx, pub.ParentID)
	require.NoError(t, err)
	assert.Equal(t, again.ID, ref.PublishedID)
}

func TestPublishValidatesReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		def      Definition
		contains string
	}{
		{
			name:     "missing mapping",
			def:      Definition{ItemID: "APP-1", Name: "a", MappingID: "no-such-mapping"},
			contains: "mapping no-such-mapping",
		},
		{
			name:     "missing source resource",
			def:      Definition{ItemID: "APP-1", Name: "b", Source: FragmentInput{ResourceID: "no-such-source"}},
			contains: "source resource no-such-source",
		},
		{
			name:     "missing target resource",
			def:      Definition{ItemID: "APP-1", Name: "c", Target: FragmentInput{ResourceID: "no-such-target"}},
			contains: "target resource no-such-target",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.mgr.Publish(ctx, tt.def)
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}

	// no partial state: the synthesized drafts were never written
	refs, err := f.mgr.ListReferences(ctx, "APP-1")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestPublishResolvesResourceType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	src := &catalog.Resource{Name: "crm", Type: "MYSQL", Configuration: map[string]interface{}{"host": "crm.db"}}
	require.NoError(t, f.catalog.PutResource(ctx, src))

	pub, err := f.mgr.Publish(ctx, Definition{ItemID: "APP-1", Name: "crm", Source: FragmentInput{ResourceID: src.ID}})
	require.NoError(t, err)
	assert.Equal(t, "MYSQL", pub.Source.ResourceType)
	assert.Equal(t, "mysql", pub.Source.SystemFields["dialect"])

	_, err = f.mgr.Publish(ctx, Definition{ItemID: "APP-1", Name: "crm2", Source: FragmentInput{ResourceID: src.ID, ResourceType: "CSV"}})
	assert.True(t, errors.IsValidationError(err))
	assert.Contains(t, err.Error(), "MYSQL")
}

func TestPublishMalformedStoredVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.mgr.SaveDraft(ctx, draftDefinition("APP-1", "orders"))
	require.NoError(t, err)

	now := time.Now()
	corrupt := draft.Derive(jobconfig.StatePublished)
	corrupt.ID = "corrupt"
	corrupt.Revision = 2
	corrupt.PublishedVersion = "v3"
	corrupt.CreatedAt, corrupt.UpdatedAt = now, now
	store := jobconfig.NewStore(f.db, nil)
	require.NoError(t, store.Transact(ctx, func(tx jobconfig.Tx) error {
		_, err := tx.Records().Insert(ctx, corrupt)
		return err
	}))

	_, err = f.mgr.Publish(ctx, Definition{ID: draft.ID})
	assert.True(t, errors.IsMalformedVersionError(err))
	assert.Equal(t, 2, f.countLineage(t, draft.ID))
}

func TestDeploy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	def := draftDefinition("APP-1", "orders")
	def.Source.UserFields["reader"] = "custom-jdbc"
	pub, err := f.mgr.Publish(ctx, def)
	require.NoError(t, err)

	dep, b, err := f.mgr.Deploy(ctx, pub.ID, "deployer")
	require.NoError(t, err)
	assert.Equal(t, jobconfig.StateDeployed, dep.State)
	assert.True(t, dep.IsActive)
	assert.Equal(t, "v1.0", dep.DeployedVersion)
	assert.Equal(t, "v1.0", dep.PublishedVersion, "deployed records keep their published provenance")
	assert.Equal(t, pub.ParentID, dep.ParentID)
	assert.Equal(t, pub.ID, dep.DerivedFrom)
	assert.Equal(t, "deployer", dep.CreatedBy)

	assert.Equal(t, "orders", b.ConfigName)
	assert.Equal(t, "custom-jdbc", b.ReaderConfig["reader"], "user fields override system fields")
	assert.Equal(t, "postgresql", b.ReaderConfig["dialect"])

	again, _, err := f.mgr.Deploy(ctx, pub.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "v1.1", again.DeployedVersion)
	assert.Equal(t, 4, f.countLineage(t, pub.ParentID))
}

func TestDeployRejectsNonPublished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.mgr.SaveDraft(ctx, draftDefinition("APP-1", "orders"))
	require.NoError(t, err)

	_, _, err = f.mgr.Deploy(ctx, draft.ID, "")
	assert.True(t, errors.IsValidationError(err))
	assert.Equal(t, 1, f.countLineage(t, draft.ID), "nothing persisted")

	pub, err := f.mgr.Publish(ctx, Definition{ID: draft.ID})
	require.NoError(t, err)
	dep, _, err := f.mgr.Deploy(ctx, pub.ID, "")
	require.NoError(t, err)

	_, _, err = f.mgr.Deploy(ctx, dep.ID, "")
	assert.True(t, errors.IsValidationError(err), "deployed records are terminal")

	_, _, err = f.mgr.Deploy(ctx, "missing", "")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestDeployAndSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	def := draftDefinition("APP-1", "orders")
	def.ScheduleExpression = "0 3 * * *"
	pub, err := f.mgr.Publish(ctx, def)
	require.NoError(t, err)

	out, err := f.mgr.DeployAndSubmit(ctx, pub.ID, "")
	require.NoError(t, err)
	require.NotNil(t, out.Handle)
	assert.Equal(t, "remote-1", out.Handle.RemoteJobID)
	assert.Len(t, out.Digest, 64)

	require.Len(t, f.gateway.submissions, 1)
	assert.Equal(t, out.Record.ID, f.gateway.submissions[0].RecordID)
	assert.Equal(t, "0 3 * * *", f.gateway.submissions[0].ScheduleExpression)

	events, err := f.events.List(ctx, out.Record.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, activity.JobSubmitted, events[0].Type)
	assert.Equal(t, activity.JobDeployed, events[1].Type)
}

func TestDeployAndSubmitGatewayFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gateway.err = errors.New("connection refused")

	pub, err := f.mgr.Publish(ctx, draftDefinition("APP-1", "orders"))
	require.NoError(t, err)

	out, err := f.mgr.DeployAndSubmit(ctx, pub.ID, "")
	require.Error(t, err)
	assert.True(t, errors.IsSubmissionError(err))
	assert.False(t, errors.IsStoreError(err))

	require.NotNil(t, out)
	require.NotNil(t, out.Record, "the deployed record survives a failed submission")
	assert.Nil(t, out.Handle)

	stored, err := f.mgr.Get(ctx, out.Record.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeployed())

	// recovery: resubmit without a new version
	f.gateway.err = nil
	again, err := f.mgr.Resubmit(ctx, out.Record.ID, "")
	require.NoError(t, err)
	assert.Equal(t, out.Record.ID, again.Record.ID)
	assert.Equal(t, out.Digest, again.Digest, "resubmission sends the identical bundle")
	assert.Equal(t, 3, f.countLineage(t, pub.ParentID))

	_, err = f.mgr.Resubmit(ctx, pub.ID, "")
	assert.True(t, errors.IsValidationError(err))
}

func TestDeployLineage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.mgr.SaveDraft(ctx, draftDefinition("APP-1", "orders"))
	require.NoError(t, err)

	_, err = f.mgr.DeployLineage(ctx, draft.ID, "")
	assert.True(t, errors.IsValidationError(err), "nothing published yet")

	pub, err := f.mgr.Publish(ctx, Definition{ID: draft.ID})
	require.NoError(t, err)

	out, err := f.mgr.DeployLineage(ctx, draft.ID, "")
	require.NoError(t, err)
	assert.Equal(t, pub.ID, out.Record.DerivedFrom)

	_, err = f.mgr.DeployLineage(ctx, "missing", "")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestUpdateJobConfig(t *testing.T) {
	f := newFixture(t)
	ctx := logger.WithActor(context.Background(), "editor")

	draft, err := f.mgr.SaveDraft(ctx, draftDefinition("APP-1", "orders"))
	require.NoError(t, err)

	updated, err := f.mgr.UpdateJobConfig(ctx, draft.ID, jobconfig.Patch{
		Description:        util.Ptr("hourly orders"),
		TargetResourceType: util.Ptr("CSV"),
		ChunkSize:          util.Ptr(50),
	})
	require.NoError(t, err)
	assert.Equal(t, draft.ID, updated.ID, "in place")
	assert.Equal(t, "hourly orders", updated.Description)
	assert.Equal(t, "file", updated.Target.SystemFields["writer"])
	assert.Equal(t, "orders", updated.Name, "unset fields are kept")
	assert.Equal(t, "editor", updated.UpdatedBy)
	assert.Equal(t, 1, f.countLineage(t, draft.ID))

	stored, err := f.mgr.Get(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "hourly orders", stored.Description)
	assert.Equal(t, 50, *stored.ChunkSize)

	pub, err := f.mgr.Publish(ctx, Definition{ID: draft.ID})
	require.NoError(t, err)

	_, err = f.mgr.UpdateJobConfig(ctx, pub.ID, jobconfig.Patch{ChunkSize: util.Ptr(10)})
	assert.True(t, errors.IsValidationError(err), "published records are frozen")

	renamed, err := f.mgr.UpdateJobConfig(ctx, pub.ID, jobconfig.Patch{Severity: util.Ptr("HIGH")})
	require.NoError(t, err)
	assert.Equal(t, "HIGH", renamed.Notes.Severity)
	assert.Equal(t, "v1.0", renamed.PublishedVersion)

	_, err = f.mgr.UpdateJobConfig(ctx, "missing", jobconfig.Patch{Name: util.Ptr("x")})
	assert.True(t, errors.IsNotFoundError(err))
}

func TestSetActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pub, err := f.mgr.Publish(ctx, draftDefinition("APP-1", "orders"))
	require.NoError(t, err)
	dep, _, err := f.mgr.Deploy(ctx, pub.ID, "")
	require.NoError(t, err)

	off, err := f.mgr.SetActive(ctx, dep.ID, false, "ops")
	require.NoError(t, err)
	assert.False(t, off.IsActive)

	stored, err := f.mgr.Get(ctx, dep.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Equal(t, "ops", stored.UpdatedBy)

	events, err := f.events.List(ctx, dep.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, activity.JobDeactivated, events[0].Type)
}

func TestDeleteLineage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pub, err := f.mgr.Publish(ctx, draftDefinition("APP-1", "orders"))
	require.NoError(t, err)
	_, _, err = f.mgr.Deploy(ctx, pub.ID, "")
	require.NoError(t, err)

	other, err := f.mgr.SaveDraft(ctx, draftDefinition("APP-1", "other"))
	require.NoError(t, err)

	n, err := f.mgr.DeleteLineage(ctx, pub.ParentID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 0, f.countLineage(t, pub.ParentID))

	_, err = f.mgr.Reference(ctx, pub.ParentID)
	assert.True(t, errors.IsNotFoundError(err))

	// other lineages are untouched
	assert.Equal(t, 1, f.countLineage(t, other.ID))

	_, err = f.mgr.DeleteLineage(ctx, pub.ParentID)
	assert.True(t, errors.IsNotFoundError(err))

	_, err = f.mgr.Lineage(ctx, pub.ParentID)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestPreviewIsDeterministic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := &catalog.Resource{Name: "warehouse", Type: "POSTGRESQL", Configuration: map[string]interface{}{"host": "wh", "db": "sales"}}
	require.NoError(t, f.catalog.PutResource(ctx, res))
	m := &catalog.Mapping{Name: "orders", Fields: []catalog.MappingField{{Source: "id", Target: "order_id"}}}
	require.NoError(t, f.catalog.PutMapping(ctx, m))

	def := draftDefinition("APP-1", "orders")
	def.Source.ResourceID = res.ID
	def.MappingID = m.ID
	pub, err := f.mgr.Publish(ctx, def)
	require.NoError(t, err)

	first, err := f.mgr.Preview(ctx, pub.ID)
	require.NoError(t, err)
	second, err := f.mgr.Preview(ctx, pub.ID)
	require.NoError(t, err)

	c1, err := first.Canonical()
	require.NoError(t, err)
	c2, err := second.Canonical()
	require.NoError(t, err)
	assert.Equal(t, string(c1), string(c2))

	assert.Equal(t, map[string]interface{}{"host": "wh", "db": "sales"}, first.ReaderConfig["connectionConfig"])
	assert.Equal(t, []catalog.MappingField{{Source: "id", Target: "order_id"}}, first.InputFields)

	draft, err := f.mgr.SaveDraft(ctx, draftDefinition("APP-1", "draft only"))
	require.NoError(t, err)
	_, err = f.mgr.Preview(ctx, draft.ID)
	assert.True(t, errors.IsValidationError(err))
}

func TestTransactVersionedRetries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	calls := 0
	err := f.mgr.transactVersioned(ctx, "lineage", func(jobconfig.Tx) error {
		calls++
		if calls < 3 {
			return errVersionConflict
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = f.mgr.transactVersioned(ctx, "lineage", func(jobconfig.Tx) error {
		calls++
		return errVersionConflict
	})
	assert.True(t, errors.IsDuplicationError(err))
	assert.Equal(t, am.DefaultMaxVersionAttempts, calls)
}

func TestStoreFailureIsLoggedAndMarked(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO job_configs").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	core, logs := observer.New(zapcore.ErrorLevel)
	mgr := NewManager(jobconfig.NewStore(mockDB, nil), nil, nil, nil, Config{}, zap.New(core).Sugar())

	_, err = mgr.SaveDraft(context.Background(), draftDefinition("APP-1", "orders"))
	require.Error(t, err)
	assert.True(t, errors.IsStoreError(err))
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "save draft", logs.All()[0].ContextMap()[logger.FieldOperation])
}

func TestDeployLogsBundleDigest(t *testing.T) {
	database := dltest.CreateTestDB(t)
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core).Sugar()

	cat := catalog.NewStore(database, log)
	mgr := NewManager(jobconfig.NewStore(database, log), cat, &fakeGateway{}, activity.Discard{}, Config{}, log)
	ctx := context.Background()

	pub, err := mgr.Publish(ctx, draftDefinition("APP-1", "orders"))
	require.NoError(t, err)
	_, b, err := mgr.Deploy(ctx, pub.ID, "")
	require.NoError(t, err)

	want, err := b.Digest()
	require.NoError(t, err)

	deployed := logs.FilterMessage("Job configuration deployed").All()
	require.Len(t, deployed, 1)
	assert.Equal(t, want, deployed[0].ContextMap()[logger.FieldDigest])
	assert.Empty(t, logs.FilterMessage("Failed to digest deployed bundle").All())
}
