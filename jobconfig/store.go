package jobconfig

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/teranos/dataloader/db"
	"github.com/teranos/dataloader/errors"
)

// InsertOutcome tags the result of RecordStore.Insert
type InsertOutcome int

const (
	// Inserted: the row was written
	Inserted InsertOutcome = iota
	// Conflict: a concurrent writer already took the revision or version
	// label; the caller should recompute and retry in a new transaction
	Conflict
)

// InsertResult is returned by RecordStore.Insert. Version races are reported
// as Conflict, never as an error.
type InsertResult struct {
	Outcome    InsertOutcome
	Record     *Record
	Constraint string // set on Conflict
}

// RecordStore persists job configuration records
type RecordStore interface {
	Get(ctx context.Context, id string) (*Record, error)
	Insert(ctx context.Context, rec *Record) (InsertResult, error)
	Update(ctx context.Context, rec *Record) error
	Latest(ctx context.Context, parentID string) (*Record, error)
	NextRevision(ctx context.Context, parentID string) (int, error)
	VersionLabels(ctx context.Context, parentID string, state State) ([]string, error)
	Lineage(ctx context.Context, parentID string) ([]*Record, error)
	DeleteLineage(ctx context.Context, parentID string) (int64, error)
}

// ReferenceStore persists lineage references
type ReferenceStore interface {
	Get(ctx context.Context, parentID string) (*Reference, error)
	Create(ctx context.Context, ref *Reference) error
	SetPublished(ctx context.Context, parentID, recordID string) error
	Delete(ctx context.Context, parentID string) error
	ListByItem(ctx context.Context, itemID string) ([]*Reference, error)
}

// Tx exposes the stores bound to one transaction
type Tx interface {
	Records() RecordStore
	References() ReferenceStore
	// LockLineage serialises writers of parentID until the transaction ends
	LockLineage(ctx context.Context, parentID string) error
}

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store is the SQL-backed configuration store
type Store struct {
	db      *sql.DB
	dialect db.Dialect
	logger  *zap.SugaredLogger
}

// NewStore creates a store over database. The dialect is detected from the driver.
func NewStore(database *sql.DB, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{
		db:      database,
		dialect: db.DialectOf(database),
		logger:  logger,
	}
}

// Records returns a record store outside any transaction, for reads
func (s *Store) Records() RecordStore {
	return &recordStore{q: s.db, dialect: s.dialect}
}

// References returns a reference store outside any transaction, for reads
func (s *Store) References() ReferenceStore {
	return &referenceStore{q: s.db, dialect: s.dialect}
}

// Transact runs fn in one transaction. fn's error rolls back and is returned
// unchanged; begin/commit failures are returned as store errors.
func (s *Store) Transact(ctx context.Context, fn func(Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Errorw("Failed to begin transaction", "error", err)
		return errors.WrapStore(err, "begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				s.logger.Warnw("Rollback failed", "error", rbErr)
			}
		}
	}()

	if err = fn(&sqlTx{tx: tx, dialect: s.dialect}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		s.logger.Errorw("Failed to commit transaction", "error", err)
		return errors.WrapStore(err, "commit transaction")
	}
	return nil
}

type sqlTx struct {
	tx      *sql.Tx
	dialect db.Dialect
}

func (t *sqlTx) Records() RecordStore {
	return &recordStore{q: t.tx, dialect: t.dialect}
}

func (t *sqlTx) References() ReferenceStore {
	return &referenceStore{q: t.tx, dialect: t.dialect}
}

func (t *sqlTx) LockLineage(ctx context.Context, parentID string) error {
	return errors.WrapStore(t.dialect.LockLineage(ctx, t.tx, parentID), "lock lineage")
}
