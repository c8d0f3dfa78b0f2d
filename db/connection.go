package db

import (
	"database/sql"
	"net/url"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/dataloader/errors"
	"github.com/teranos/dataloader/sym"
)

// SQLiteBusyTimeoutMS is how long a writer waits on a locked database
const SQLiteBusyTimeoutMS = 5000

// Open opens the configuration store for driver ("sqlite" or "postgres").
// For sqlite target is a file path, for postgres a DSN.
func Open(driver, target string, logger *zap.SugaredLogger) (*sql.DB, error) {
	switch Dialect(driver) {
	case "", SQLite:
		return OpenSQLite(target, logger)
	case Postgres:
		return OpenPostgres(target, logger)
	default:
		return nil, errors.Newf("unsupported database driver %q", driver)
	}
}

// OpenSQLite opens a SQLite database at path.
// Pragmas go through the DSN so that every pooled connection gets them.
// _txlock=immediate makes BEGIN take the write lock up front, which
// serialises version assignment across processes.
func OpenSQLite(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "path", path, "symbol", sym.DB)
	}

	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_foreign_keys", "on")
	params.Set("_busy_timeout", strconv.Itoa(SQLiteBusyTimeoutMS))
	params.Set("_txlock", "immediate")

	db, err := sql.Open("sqlite3", "file:"+path+"?"+params.Encode())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to connect to database at %s", path)
	}

	if logger != nil {
		logger.Infow("Database opened successfully",
			"path", path,
			"symbol", sym.DB,
			"wal_mode", true,
			"foreign_keys", true,
		)
	}

	return db, nil
}

// OpenPostgres opens a PostgreSQL database through the pgx stdlib driver
func OpenPostgres(dsn string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("postgres DSN is empty")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres connection")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}

	if logger != nil {
		logger.Infow("Database opened successfully", "driver", Postgres, "symbol", sym.DB)
	}

	return db, nil
}

// OpenWithMigrations opens the database and applies pending migrations
func OpenWithMigrations(driver, target string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(driver, target, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := Migrate(db, logger); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}

	return db, nil
}
