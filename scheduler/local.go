package scheduler

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/dataloader/db"
	"github.com/teranos/dataloader/errors"
	"github.com/teranos/dataloader/logger"
)

// Deployment states in the local queue
const (
	StateActive   = "active"   // runs on its schedule
	StatePaused   = "paused"   // kept, not run
	StateInactive = "inactive" // superseded or stopped
)

// Deployment is one bundle accepted by the local gateway
type Deployment struct {
	ID                 string    `json:"id"`
	RecordID           string    `json:"recordId"`
	Name               string    `json:"name"`
	Bundle             string    `json:"bundle"`
	Digest             string    `json:"digest"`
	ScheduleExpression string    `json:"scheduleExpression,omitempty"`
	State              string    `json:"state"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// LocalGateway queues bundles in scheduled_deployments for a co-located runtime
type LocalGateway struct {
	db      *sql.DB
	dialect db.Dialect
	logger  *zap.SugaredLogger
}

// NewLocalGateway creates a gateway over database
func NewLocalGateway(database *sql.DB, log *zap.SugaredLogger) *LocalGateway {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &LocalGateway{db: database, dialect: db.DialectOf(database), logger: log}
}

// Submit stores the bundle as an active deployment
func (g *LocalGateway) Submit(ctx context.Context, sub Submission) (Handle, error) {
	if sub.Bundle == nil {
		return Handle{}, errors.New("no bundle to submit")
	}
	raw, err := sub.Bundle.Canonical()
	if err != nil {
		return Handle{}, errors.Wrap(err, "encode bundle")
	}
	digest, err := sub.Bundle.Digest()
	if err != nil {
		return Handle{}, errors.Wrap(err, "digest bundle")
	}

	now := db.FormatTime(time.Now())
	id := uuid.NewString()

	var schedule sql.NullString
	if sub.ScheduleExpression != "" {
		schedule = sql.NullString{String: sub.ScheduleExpression, Valid: true}
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return Handle{}, errors.Wrap(err, "begin queue transaction")
	}
	defer tx.Rollback()

	// A resubmitted record replaces its earlier queue entries
	retired, err := tx.ExecContext(ctx, g.dialect.Rebind(`UPDATE scheduled_deployments
		SET state = ?, updated_at = ? WHERE record_id = ? AND state <> ?`),
		StateInactive, now, sub.RecordID, StateInactive)
	if err != nil {
		return Handle{}, errors.Wrap(err, "retire earlier deployments")
	}

	_, err = tx.ExecContext(ctx, g.dialect.Rebind(`INSERT INTO scheduled_deployments
		(id, record_id, name, bundle, bundle_digest, schedule_expression, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		id, sub.RecordID, sub.Bundle.ConfigName, string(raw), digest, schedule, StateActive, now, now)
	if err != nil {
		return Handle{}, errors.Wrap(err, "queue deployment")
	}
	if err := tx.Commit(); err != nil {
		return Handle{}, errors.Wrap(err, "commit queued deployment")
	}

	if n, _ := retired.RowsAffected(); n > 0 {
		g.logger.Debugw("Retired earlier deployments", logger.FieldRecordID, sub.RecordID, "count", n)
	}
	g.logger.Infow("Deployment queued",
		logger.FieldRemoteJob, id,
		logger.FieldRecordID, sub.RecordID,
		logger.FieldDigest, digest)
	return Handle{RemoteJobID: id, RemoteJobName: sub.Bundle.ConfigName}, nil
}

const deploymentColumns = `id, record_id, name, bundle, bundle_digest, schedule_expression, state, created_at, updated_at`

// Get returns one queued deployment
func (g *LocalGateway) Get(ctx context.Context, id string) (*Deployment, error) {
	row := g.db.QueryRowContext(ctx, g.dialect.Rebind(`SELECT `+deploymentColumns+` FROM scheduled_deployments WHERE id = ?`), id)
	d, err := scanDeployment(row)
	if db.IsNoRows(err) {
		return nil, errors.NewNotFoundError("deployment %s", id)
	}
	if err != nil {
		return nil, errors.WrapStore(err, "get deployment")
	}
	return d, nil
}

// List returns deployments, newest first, optionally filtered by state
func (g *LocalGateway) List(ctx context.Context, state string) ([]*Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM scheduled_deployments`
	var args []interface{}
	if state != "" {
		query += ` WHERE state = ?`
		args = append(args, state)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := g.db.QueryContext(ctx, g.dialect.Rebind(query), args...)
	if err != nil {
		return nil, errors.WrapStore(err, "list deployments")
	}
	defer rows.Close()

	var out []*Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, errors.WrapStore(err, "scan deployment")
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStore(err, "list deployments")
	}
	return out, nil
}

// UpdateState moves a deployment between active, paused and inactive
func (g *LocalGateway) UpdateState(ctx context.Context, id, state string) error {
	switch state {
	case StateActive, StatePaused, StateInactive:
	default:
		return errors.NewValidationError("unknown deployment state %q", state)
	}

	res, err := g.db.ExecContext(ctx, g.dialect.Rebind(
		`UPDATE scheduled_deployments SET state = ?, updated_at = ? WHERE id = ?`),
		state, db.FormatTime(time.Now()), id)
	if err != nil {
		return errors.WrapStore(err, "update deployment state")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WrapStore(err, "update deployment state")
	}
	if n == 0 {
		return errors.NewNotFoundError("deployment %s", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDeployment(row rowScanner) (*Deployment, error) {
	var (
		d                    Deployment
		schedule             sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&d.ID, &d.RecordID, &d.Name, &d.Bundle, &d.Digest, &schedule, &d.State, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	d.ScheduleExpression = schedule.String
	if d.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, errors.Wrapf(err, "parse created_at for deployment %s", d.ID)
	}
	if d.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return nil, errors.Wrapf(err, "parse updated_at for deployment %s", d.ID)
	}
	return &d, nil
}
