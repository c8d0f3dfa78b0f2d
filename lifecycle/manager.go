// Package lifecycle moves job configurations through DRAFT, PUBLISHED and
// DEPLOYED. Every transition writes a new record into the lineage; drafts are
// the only records edited in place.
package lifecycle

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/dataloader/activity"
	"github.com/teranos/dataloader/am"
	"github.com/teranos/dataloader/bundle"
	"github.com/teranos/dataloader/errors"
	"github.com/teranos/dataloader/jobconfig"
	"github.com/teranos/dataloader/logger"
	"github.com/teranos/dataloader/scheduler"
)

// Catalog resolves the resources and mappings a job points at
type Catalog interface {
	bundle.ResourceResolver
	bundle.MappingProvider
}

// Config tunes the manager
type Config struct {
	// MaxVersionAttempts bounds the retries when a concurrent writer takes
	// the revision or version label first
	MaxVersionAttempts int
	// SubmitTimeout bounds one scheduler submission
	SubmitTimeout time.Duration
	// DefaultActor is recorded when neither the caller nor the context names one
	DefaultActor string
}

// ConfigFromAM extracts the manager settings from the loaded configuration
func ConfigFromAM(cfg *am.Config) Config {
	return Config{
		MaxVersionAttempts: cfg.GetMaxVersionAttempts(),
		SubmitTimeout:      time.Duration(cfg.Scheduler.TimeoutSeconds) * time.Second,
		DefaultActor:       cfg.GetDefaultActor(),
	}
}

// errVersionConflict aborts one attempt so the whole transaction is retried
var errVersionConflict = errors.New("version conflict")

// Manager implements the job configuration lifecycle
type Manager struct {
	store     *jobconfig.Store
	catalog   Catalog
	assembler *bundle.Assembler
	gateway   scheduler.Gateway
	activity  activity.Log
	cfg       Config
	timeout   atomic.Int64
	logger    *zap.SugaredLogger

	now   func() time.Time
	newID func() string
}

// NewManager wires a manager. A nil gateway rejects submissions; a nil
// activity log discards events.
func NewManager(store *jobconfig.Store, catalog Catalog, gateway scheduler.Gateway, events activity.Log, cfg Config, log *zap.SugaredLogger) *Manager {
	if gateway == nil {
		gateway = scheduler.Nop{}
	}
	if events == nil {
		events = activity.Discard{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.MaxVersionAttempts <= 0 {
		cfg.MaxVersionAttempts = am.DefaultMaxVersionAttempts
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = am.DefaultSchedulerTimeout * time.Second
	}
	if cfg.DefaultActor == "" {
		cfg.DefaultActor = am.DefaultActor
	}
	m := &Manager{
		store:     store,
		catalog:   catalog,
		assembler: bundle.NewAssembler(catalog, catalog),
		gateway:   gateway,
		activity:  events,
		cfg:       cfg,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		newID:     uuid.NewString,
	}
	m.timeout.Store(int64(cfg.SubmitTimeout))
	return m
}

// SetTimeout replaces the scheduler submission timeout, e.g. after a config reload
func (m *Manager) SetTimeout(d time.Duration) {
	if d > 0 {
		m.timeout.Store(int64(d))
	}
}

// SaveDraft persists a new lineage whose first record is a draft
func (m *Manager) SaveDraft(ctx context.Context, def Definition) (*jobconfig.Record, error) {
	if strings.TrimSpace(def.ItemID) == "" {
		return nil, errors.WithHint(errors.NewValidationError("itemId is required"), "every job belongs to an item")
	}
	if err := validateChunkSize(def.ChunkSize); err != nil {
		return nil, err
	}

	actor := m.actor(ctx, def.Actor)
	draft := m.newDraft(def, actor)

	err := m.store.Transact(ctx, func(tx jobconfig.Tx) error {
		return m.insertDraft(ctx, tx, draft)
	})
	if err != nil {
		return nil, m.failed(ctx, "save draft", err, logger.FieldItemID, def.ItemID)
	}

	logger.ForState(logger.FromContext(ctx, m.logger), string(draft.State)).Infow("Draft saved",
		logger.FieldRecordID, draft.ID,
		logger.FieldItemID, draft.ItemID)
	m.record(ctx, activity.DraftSaved, draft, actor, "")
	return draft, nil
}

// Publish snapshots a job configuration as the next published version of its
// lineage. With an id the stored record is published as is. Without one, a
// definition lacking a parentId is saved as a draft and published at v1.0
// in the same transaction; with a parentId it is published into that lineage
// under the name of the lineage's latest record.
func (m *Manager) Publish(ctx context.Context, def Definition) (*jobconfig.Record, error) {
	actor := m.actor(ctx, def.Actor)

	var (
		base  *jobconfig.Record
		draft *jobconfig.Record
		err   error
	)

	switch {
	case def.ID != "":
		src, err := m.store.Records().Get(ctx, def.ID)
		if err != nil {
			return nil, m.failed(ctx, "publish", err, logger.FieldRecordID, def.ID)
		}
		base = src.Clone()

	case def.ParentID == "":
		if strings.TrimSpace(def.ItemID) == "" {
			return nil, errors.NewValidationError("itemId is required")
		}
		if err := validateChunkSize(def.ChunkSize); err != nil {
			return nil, err
		}
		draft = m.newDraft(def, actor)
		base = draft.Clone()

	default:
		latest, err := m.store.Records().Latest(ctx, def.ParentID)
		if err != nil {
			return nil, m.failed(ctx, "publish", err, logger.FieldParentID, def.ParentID)
		}
		if err := validateChunkSize(def.ChunkSize); err != nil {
			return nil, err
		}
		base = def.overlay(latest)
	}

	if err = m.resolveReferences(ctx, base); err != nil {
		return nil, err
	}

	template := base.Derive(jobconfig.StatePublished)
	parentID := template.ParentID

	var pub *jobconfig.Record
	err = m.transactVersioned(ctx, parentID, func(tx jobconfig.Tx) error {
		if draft != nil {
			if err := m.insertDraft(ctx, tx, draft); err != nil {
				return err
			}
		}

		version, err := nextVersion(ctx, tx, parentID, jobconfig.StatePublished)
		if err != nil {
			return err
		}
		rec := template.Clone()
		rec.PublishedVersion = version
		if err := m.insertDerived(ctx, tx, rec, actor); err != nil {
			return err
		}
		if err := tx.References().SetPublished(ctx, parentID, rec.ID); err != nil {
			return err
		}
		pub = rec
		return nil
	})
	if err != nil {
		return nil, m.failed(ctx, "publish", err, logger.FieldParentID, parentID)
	}

	logger.ForState(logger.FromContext(ctx, m.logger), string(pub.State)).Infow("Job configuration published",
		logger.FieldRecordID, pub.ID,
		logger.FieldParentID, pub.ParentID,
		logger.FieldVersion, pub.PublishedVersion)
	if draft != nil {
		m.record(ctx, activity.DraftSaved, draft, actor, "")
	}
	m.record(ctx, activity.JobPublished, pub, actor, pub.PublishedVersion)
	return pub, nil
}

// Deploy snapshots a published record as the next deployed version of its
// lineage and returns the new record together with its bundle. The bundle is
// not stored and not submitted.
func (m *Manager) Deploy(ctx context.Context, id, actor string) (*jobconfig.Record, *bundle.Bundle, error) {
	actor = m.actor(ctx, actor)

	pub, err := m.store.Records().Get(ctx, id)
	if err != nil {
		return nil, nil, m.failed(ctx, "deploy", err, logger.FieldRecordID, id)
	}
	if !pub.IsPublished() {
		return nil, nil, errors.WithHint(
			errors.NewValidationError("job configuration %s is %s; only PUBLISHED records can be deployed", id, pub.State),
			"publish it first, then deploy the published record")
	}

	b, err := m.assembler.Assemble(ctx, pub)
	if err != nil {
		return nil, nil, m.failed(ctx, "deploy", err, logger.FieldRecordID, id)
	}

	template := pub.Derive(jobconfig.StateDeployed)
	template.PublishedVersion = pub.PublishedVersion
	template.IsActive = true

	var dep *jobconfig.Record
	err = m.transactVersioned(ctx, template.ParentID, func(tx jobconfig.Tx) error {
		version, err := nextVersion(ctx, tx, template.ParentID, jobconfig.StateDeployed)
		if err != nil {
			return err
		}
		rec := template.Clone()
		rec.DeployedVersion = version
		if err := m.insertDerived(ctx, tx, rec, actor); err != nil {
			return err
		}
		dep = rec
		return nil
	})
	if err != nil {
		return nil, nil, m.failed(ctx, "deploy", err, logger.FieldRecordID, id)
	}

	digest, err := b.Digest()
	if err != nil {
		logger.FromContext(ctx, m.logger).Warnw("Failed to digest deployed bundle",
			logger.FieldRecordID, dep.ID,
			"error", err)
	}
	logger.ForState(logger.FromContext(ctx, m.logger), string(dep.State)).Infow("Job configuration deployed",
		logger.FieldRecordID, dep.ID,
		logger.FieldParentID, dep.ParentID,
		logger.FieldVersion, dep.DeployedVersion,
		logger.FieldDigest, digest)
	m.record(ctx, activity.JobDeployed, dep, actor, dep.DeployedVersion)
	return dep, b, nil
}

// UpdateJobConfig overwrites the non-nil fields of patch on record id in
// place. Drafts accept any field; published and deployed records only accept
// name, description and notes.
func (m *Manager) UpdateJobConfig(ctx context.Context, id string, patch jobconfig.Patch) (*jobconfig.Record, error) {
	rec, err := m.store.Records().Get(ctx, id)
	if err != nil {
		return nil, m.failed(ctx, "update", err, logger.FieldRecordID, id)
	}
	if patch.Empty() {
		return rec, nil
	}
	if !rec.IsDrafted() && !patch.Descriptive() {
		return nil, errors.WithHint(
			errors.NewValidationError("job configuration %s is %s; only name, description and notes can change", id, rec.State),
			"edit the draft and publish a new version")
	}
	if err := validateChunkSize(patch.ChunkSize); err != nil {
		return nil, err
	}

	patch.Apply(rec)
	rec.UpdatedBy = m.actor(ctx, "")
	rec.UpdatedAt = m.now()

	err = m.store.Transact(ctx, func(tx jobconfig.Tx) error {
		return tx.Records().Update(ctx, rec)
	})
	if err != nil {
		return nil, m.failed(ctx, "update", err, logger.FieldRecordID, id)
	}

	m.record(ctx, activity.JobUpdated, rec, rec.UpdatedBy, "")
	return rec, nil
}

// SetActive toggles the status flag of one record
func (m *Manager) SetActive(ctx context.Context, id string, active bool, actor string) (*jobconfig.Record, error) {
	actor = m.actor(ctx, actor)

	rec, err := m.store.Records().Get(ctx, id)
	if err != nil {
		return nil, m.failed(ctx, "set active", err, logger.FieldRecordID, id)
	}
	if rec.IsActive == active {
		return rec, nil
	}

	rec.IsActive = active
	rec.UpdatedBy = actor
	rec.UpdatedAt = m.now()
	err = m.store.Transact(ctx, func(tx jobconfig.Tx) error {
		return tx.Records().Update(ctx, rec)
	})
	if err != nil {
		return nil, m.failed(ctx, "set active", err, logger.FieldRecordID, id)
	}

	event := activity.JobDeactivated
	if active {
		event = activity.JobActivated
	}
	m.record(ctx, event, rec, actor, "")
	return rec, nil
}

// DeleteLineage removes the lineage reference and every record under parentID.
// It returns the number of records removed.
func (m *Manager) DeleteLineage(ctx context.Context, parentID string) (int64, error) {
	var deleted int64
	err := m.store.Transact(ctx, func(tx jobconfig.Tx) error {
		if err := tx.LockLineage(ctx, parentID); err != nil {
			return err
		}
		if err := tx.References().Delete(ctx, parentID); err != nil {
			return err
		}
		var err error
		deleted, err = tx.Records().DeleteLineage(ctx, parentID)
		return err
	})
	if err != nil {
		return 0, m.failed(ctx, "delete lineage", err, logger.FieldParentID, parentID)
	}

	logger.FromContext(ctx, m.logger).Infow("Lineage deleted",
		logger.FieldParentID, parentID,
		logger.FieldCount, deleted)
	m.activity.Record(ctx, activity.Event{
		Type:     activity.LineageDeleted,
		EntityID: parentID,
		Actor:    m.actor(ctx, ""),
	})
	return deleted, nil
}

// Get returns one record
func (m *Manager) Get(ctx context.Context, id string) (*jobconfig.Record, error) {
	return m.store.Records().Get(ctx, id)
}

// Lineage returns every record under parentID, oldest first
func (m *Manager) Lineage(ctx context.Context, parentID string) ([]*jobconfig.Record, error) {
	records, err := m.store.Records().Lineage(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.NewNotFoundError("lineage %s", parentID)
	}
	return records, nil
}

// ListReferences returns the lineages of itemID, or all lineages for ""
func (m *Manager) ListReferences(ctx context.Context, itemID string) ([]*jobconfig.Reference, error) {
	return m.store.References().ListByItem(ctx, itemID)
}

// Reference returns the lineage registry row for parentID
func (m *Manager) Reference(ctx context.Context, parentID string) (*jobconfig.Reference, error) {
	return m.store.References().Get(ctx, parentID)
}

// Preview assembles the bundle a deploy of id would produce, without persisting
func (m *Manager) Preview(ctx context.Context, id string) (*bundle.Bundle, error) {
	rec, err := m.store.Records().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.assembler.Assemble(ctx, rec)
}

func (m *Manager) newDraft(def Definition, actor string) *jobconfig.Record {
	now := m.now()
	draft := def.record()
	draft.ID = m.newID()
	draft.ParentID = draft.ID
	draft.Revision = 1
	draft.State = jobconfig.StateDraft
	draft.IsActive = false
	draft.CreatedBy = actor
	draft.CreatedAt = now
	draft.UpdatedBy = actor
	draft.UpdatedAt = now
	return draft
}

// insertDraft writes the first record of a lineage and its reference row
func (m *Manager) insertDraft(ctx context.Context, tx jobconfig.Tx, draft *jobconfig.Record) error {
	res, err := tx.Records().Insert(ctx, draft)
	if err != nil {
		return err
	}
	if res.Outcome == jobconfig.Conflict {
		return errors.NewDuplicationError("job configuration %s already exists", draft.ID)
	}
	return tx.References().Create(ctx, &jobconfig.Reference{
		ParentID:  draft.ParentID,
		ItemID:    draft.ItemID,
		CreatedAt: draft.CreatedAt,
		UpdatedAt: draft.CreatedAt,
	})
}

// insertDerived assigns identity, revision and audit fields to rec and
// inserts it. A conflict returns errVersionConflict.
func (m *Manager) insertDerived(ctx context.Context, tx jobconfig.Tx, rec *jobconfig.Record, actor string) error {
	revision, err := tx.Records().NextRevision(ctx, rec.ParentID)
	if err != nil {
		return err
	}

	now := m.now()
	rec.ID = m.newID()
	rec.Revision = revision
	rec.CreatedBy = actor
	rec.CreatedAt = now
	rec.UpdatedBy = actor
	rec.UpdatedAt = now

	res, err := tx.Records().Insert(ctx, rec)
	if err != nil {
		return err
	}
	if res.Outcome == jobconfig.Conflict {
		m.logger.Debugw("Version conflict", logger.FieldParentID, rec.ParentID, "constraint", res.Constraint)
		return errVersionConflict
	}
	return nil
}

// resolveReferences checks that the mapping and resources rec points at
// exist, fills missing resource types from the catalog and re-derives
// system fields. Failures are validation errors naming the entity.
func (m *Manager) resolveReferences(ctx context.Context, rec *jobconfig.Record) error {
	if rec.MappingID != "" {
		if _, err := m.catalog.GetMapping(ctx, rec.MappingID); err != nil {
			return lookupError(err, "mapping", rec.MappingID)
		}
	}
	for _, side := range []struct {
		name string
		frag *jobconfig.Fragment
	}{
		{"source", &rec.Source},
		{"target", &rec.Target},
	} {
		if side.frag.ResourceID == "" {
			continue
		}
		r, err := m.catalog.GetResource(ctx, side.frag.ResourceID)
		if err != nil {
			return lookupError(err, side.name+" resource", side.frag.ResourceID)
		}
		switch {
		case side.frag.ResourceType == "":
			side.frag.ResourceType = r.Type
		case !strings.EqualFold(side.frag.ResourceType, r.Type):
			return errors.NewValidationError("%s resource %s is of type %s, not %s",
				side.name, r.ID, r.Type, side.frag.ResourceType)
		}
	}
	jobconfig.ApplySystemFields(rec)
	return nil
}

func lookupError(err error, entity, id string) error {
	if errors.IsNotFoundError(err) {
		return errors.WithSecondaryError(errors.NewValidationError("%s %s does not exist", entity, id), err)
	}
	return err
}

// transactVersioned runs fn in a transaction holding the lineage lock and
// retries the whole transaction when fn reports a version conflict. A unique
// violation aborts a PostgreSQL transaction, so retrying inside it is not an
// option; fn must rebuild its records on every call.
func (m *Manager) transactVersioned(ctx context.Context, parentID string, fn func(jobconfig.Tx) error) error {
	for attempt := 1; attempt <= m.cfg.MaxVersionAttempts; attempt++ {
		err := m.store.Transact(ctx, func(tx jobconfig.Tx) error {
			if err := tx.LockLineage(ctx, parentID); err != nil {
				return err
			}
			return fn(tx)
		})
		if !errors.Is(err, errVersionConflict) {
			return err
		}
		m.logger.Infow("Concurrent writer took the version; retrying",
			logger.FieldParentID, parentID,
			logger.FieldAttempt, attempt)
	}

	return errors.WithHint(
		errors.NewDuplicationError("lineage %s kept changing after %d attempts", parentID, m.cfg.MaxVersionAttempts),
		"retry the operation")
}

// nextVersion reads the lineage's labels for state and returns the successor
// of the highest one
func nextVersion(ctx context.Context, tx jobconfig.Tx, parentID string, state jobconfig.State) (string, error) {
	labels, err := tx.Records().VersionLabels(ctx, parentID, state)
	if err != nil {
		return "", err
	}
	latest, err := jobconfig.LatestVersion(labels)
	if err != nil {
		return "", err
	}
	return jobconfig.NextVersion(latest)
}

func (m *Manager) actor(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if a := logger.ActorFromContext(ctx); a != "" {
		return a
	}
	return m.cfg.DefaultActor
}

func (m *Manager) record(ctx context.Context, eventType string, rec *jobconfig.Record, actor, detail string) {
	m.activity.Record(ctx, activity.Event{
		Type:       eventType,
		EntityID:   rec.ID,
		EntityName: rec.Name,
		Actor:      actor,
		Detail:     detail,
	})
}

// failed logs store failures with context; other kinds pass through quietly
func (m *Manager) failed(ctx context.Context, op string, err error, kv ...interface{}) error {
	if errors.IsStoreError(err) || errors.IsMalformedVersionError(err) {
		fields := append([]interface{}{logger.FieldOperation, op, logger.FieldError, err}, kv...)
		logger.FromContext(ctx, m.logger).Errorw("Job configuration operation failed", fields...)
	}
	return err
}
