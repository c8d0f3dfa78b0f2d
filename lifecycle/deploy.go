package lifecycle

import (
	"context"
	"time"

	"github.com/teranos/dataloader/activity"
	"github.com/teranos/dataloader/bundle"
	"github.com/teranos/dataloader/errors"
	"github.com/teranos/dataloader/jobconfig"
	"github.com/teranos/dataloader/logger"
	"github.com/teranos/dataloader/scheduler"
	"github.com/teranos/dataloader/sym"
)

// Deployment is the outcome of a deploy-and-submit. Record is set whenever
// the DEPLOYED record was persisted, even if submission failed.
type Deployment struct {
	Record *jobconfig.Record `json:"record"`
	Bundle *bundle.Bundle    `json:"bundle"`
	Digest string            `json:"digest"`
	Handle *scheduler.Handle `json:"handle,omitempty"`
}

// DeployAndSubmit deploys the published record id and hands its bundle to the
// scheduler. The DEPLOYED record is never rolled back: a scheduler failure
// returns the deployment together with a submission error, and Resubmit is
// the recovery path.
func (m *Manager) DeployAndSubmit(ctx context.Context, id, actor string) (*Deployment, error) {
	rec, b, err := m.Deploy(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return m.submit(ctx, rec, b, m.actor(ctx, actor))
}

// DeployLineage deploys the published record the lineage reference points at
func (m *Manager) DeployLineage(ctx context.Context, parentID, actor string) (*Deployment, error) {
	ref, err := m.store.References().Get(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if ref.PublishedID == "" {
		return nil, errors.WithHint(
			errors.NewValidationError("lineage %s has no published record", parentID),
			"publish the lineage before deploying it")
	}
	return m.DeployAndSubmit(ctx, ref.PublishedID, actor)
}

// Resubmit sends the bundle of an existing DEPLOYED record again without
// creating a new version
func (m *Manager) Resubmit(ctx context.Context, deployedID, actor string) (*Deployment, error) {
	rec, err := m.store.Records().Get(ctx, deployedID)
	if err != nil {
		return nil, err
	}
	if !rec.IsDeployed() {
		return nil, errors.NewValidationError("job configuration %s is %s; only DEPLOYED records can be resubmitted", deployedID, rec.State)
	}

	b, err := m.assembler.Assemble(ctx, rec)
	if err != nil {
		return nil, err
	}
	return m.submit(ctx, rec, b, m.actor(ctx, actor))
}

func (m *Manager) submit(ctx context.Context, rec *jobconfig.Record, b *bundle.Bundle, actor string) (*Deployment, error) {
	digest, err := b.Digest()
	if err != nil {
		return nil, errors.Wrap(err, "digest bundle")
	}
	out := &Deployment{Record: rec, Bundle: b, Digest: digest}

	submitCtx, cancel := context.WithTimeout(ctx, time.Duration(m.timeout.Load()))
	defer cancel()

	log := logger.AddSymbol(logger.FromContext(ctx, m.logger), sym.Scheduler)
	handle, err := m.gateway.Submit(submitCtx, scheduler.Submission{
		RecordID:           rec.ID,
		Bundle:             b,
		ScheduleExpression: rec.ScheduleExpression,
	})
	if err != nil {
		log.Warnw("Bundle submission failed",
			logger.FieldRecordID, rec.ID,
			logger.FieldDigest, digest,
			logger.FieldError, err)
		m.record(ctx, activity.SubmissionFailed, rec, actor, err.Error())
		return out, errors.WrapSubmission(err, "submit bundle for "+rec.ID)
	}

	out.Handle = &handle
	log.Infow("Bundle submitted",
		logger.FieldRecordID, rec.ID,
		logger.FieldRemoteJob, handle.RemoteJobID,
		logger.FieldDigest, digest)
	m.record(ctx, activity.JobSubmitted, rec, actor, handle.RemoteJobID)
	return out, nil
}
