// Package activity records lifecycle events for job configurations.
package activity

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/dataloader/db"
	"github.com/teranos/dataloader/errors"
	"github.com/teranos/dataloader/logger"
)

// Event types
const (
	DraftSaved       = "DRAFT_SAVED"
	JobPublished     = "JOB_PUBLISHED"
	JobDeployed      = "JOB_DEPLOYED"
	JobUpdated       = "JOB_UPDATED"
	JobActivated     = "JOB_ACTIVATED"
	JobDeactivated   = "JOB_DEACTIVATED"
	LineageDeleted   = "LINEAGE_DELETED"
	JobSubmitted     = "JOB_SUBMITTED"
	SubmissionFailed = "SUBMISSION_FAILED"
)

// Event is one activity log entry
type Event struct {
	ID         int64     `json:"id"`
	Type       string    `json:"type"`
	EntityID   string    `json:"entityId"`
	EntityName string    `json:"entityName,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Log accepts events without reporting failure
type Log interface {
	Record(ctx context.Context, ev Event)
}

// Store persists events in activity_log
type Store struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewStore creates an activity store
func NewStore(database *sql.DB) *Store {
	return &Store{db: database, dialect: db.DialectOf(database)}
}

// Append writes ev
func (s *Store) Append(ctx context.Context, ev Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(
		`INSERT INTO activity_log (event_type, entity_id, entity_name, actor, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		ev.Type, ev.EntityID, nullable(ev.EntityName), nullable(ev.Actor), nullable(ev.Detail), db.FormatTime(ev.CreatedAt))
	return errors.WrapStore(err, "append activity")
}

// List returns the newest events for entityID first, or for every entity
// when entityID is empty. A non-positive limit means 50.
func (s *Store) List(ctx context.Context, entityID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, event_type, entity_id, entity_name, actor, detail, created_at FROM activity_log`
	args := []interface{}{}
	if entityID != "" {
		query += ` WHERE entity_id = ?`
		args = append(args, entityID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, errors.WrapStore(err, "list activity")
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev                        Event
			entityName, actor, detail sql.NullString
			createdAt                 string
		)
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.EntityID, &entityName, &actor, &detail, &createdAt); err != nil {
			return nil, errors.WrapStore(err, "scan activity")
		}
		ev.EntityName = entityName.String
		ev.Actor = actor.String
		ev.Detail = detail.String
		if ev.CreatedAt, err = db.ParseTime(createdAt); err != nil {
			return nil, errors.WrapStore(err, "parse activity timestamp")
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStore(err, "list activity")
	}
	return events, nil
}

// Recorder is the fire-and-forget Log over a Store. Failures are logged and dropped.
type Recorder struct {
	store  *Store
	logger *zap.SugaredLogger
}

// NewRecorder wraps store
func NewRecorder(store *Store, log *zap.SugaredLogger) *Recorder {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Recorder{store: store, logger: log}
}

// Record appends ev and never fails the caller
func (r *Recorder) Record(ctx context.Context, ev Event) {
	if err := r.store.Append(ctx, ev); err != nil {
		r.logger.Warnw("Failed to record activity",
			"event_type", ev.Type,
			logger.FieldRecordID, ev.EntityID,
			logger.FieldError, err)
		return
	}
	r.logger.Debugw("Activity recorded", "event_type", ev.Type, logger.FieldRecordID, ev.EntityID, logger.FieldActor, ev.Actor)
}

// Discard is a Log that drops every event
type Discard struct{}

// Record does nothing
func (Discard) Record(context.Context, Event) {}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
