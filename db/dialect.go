package db

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"strconv"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"

	"github.com/teranos/dataloader/errors"
)

// Dialect captures the few places where SQLite and PostgreSQL differ for the
// stores: placeholder syntax, unique-violation detection and lineage locking.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// DialectOf inspects the driver behind db. Anything that is not pgx
// (including sqlmock in tests) is treated as SQLite.
func DialectOf(db *sql.DB) Dialect {
	if _, ok := db.Driver().(*stdlib.Driver); ok {
		return Postgres
	}
	return SQLite
}

// Rebind rewrites ? placeholders to $n for PostgreSQL.
// Queries must not contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// UniqueViolation describes a rejected insert or update
type UniqueViolation struct {
	// Constraint is the index name (postgres) or the column list (sqlite)
	Constraint string
}

// Involves reports whether the violated constraint mentions name
func (v UniqueViolation) Involves(name string) bool {
	return strings.Contains(v.Constraint, name)
}

// AsUniqueViolation classifies err as a unique-constraint violation
func AsUniqueViolation(err error) (UniqueViolation, bool) {
	if err == nil {
		return UniqueViolation{}, false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return UniqueViolation{Constraint: pgErr.ConstraintName}, true
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) &&
		(liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		// "UNIQUE constraint failed: job_configs.parent_id, job_configs.published_version"
		msg := liteErr.Error()
		if i := strings.Index(msg, ": "); i >= 0 {
			msg = msg[i+2:]
		}
		return UniqueViolation{Constraint: msg}, true
	}

	return UniqueViolation{}, false
}

// LockKey derives a stable advisory lock id from parts
func LockKey(parts ...string) int64 {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	sum := h.Sum(nil)

	var id int64
	for i := 0; i < 8; i++ {
		id = (id << 8) | int64(sum[i])
	}
	return id
}

// LockLineage serialises writers of one lineage for the rest of tx.
// PostgreSQL takes a transaction-scoped advisory lock; SQLite transactions
// already hold the database write lock (BEGIN IMMEDIATE).
func (d Dialect) LockLineage(ctx context.Context, tx *sql.Tx, parentID string) error {
	if d != Postgres {
		return nil
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", LockKey("lineage", parentID)); err != nil {
		return errors.Wrap(err, "failed to acquire lineage lock")
	}
	return nil
}
