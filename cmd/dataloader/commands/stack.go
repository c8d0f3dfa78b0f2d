package commands

import (
	"database/sql"

	"github.com/teranos/dataloader/activity"
	"github.com/teranos/dataloader/am"
	"github.com/teranos/dataloader/catalog"
	"github.com/teranos/dataloader/db"
	"github.com/teranos/dataloader/errors"
	"github.com/teranos/dataloader/jobconfig"
	"github.com/teranos/dataloader/lifecycle"
	"github.com/teranos/dataloader/logger"
	"github.com/teranos/dataloader/scheduler"
)

// stack is everything a command needs to run lifecycle operations
type stack struct {
	cfg      *am.Config
	db       *sql.DB
	manager  *lifecycle.Manager
	catalog  *catalog.Store
	activity *activity.Store
	gateway  scheduler.Gateway
}

func (s *stack) Close() error {
	return s.db.Close()
}

// databaseTarget returns the sqlite path or postgres DSN for cfg
func databaseTarget(cfg *am.Config) string {
	if cfg.Database.Driver == am.DriverPostgres {
		return cfg.Database.DSN
	}
	return cfg.GetDatabasePath()
}

// openDatabase loads the config, validates it and opens the migrated store
func openDatabase() (*am.Config, *sql.DB, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, "invalid configuration")
	}

	database, err := db.OpenWithMigrations(cfg.Database.Driver, databaseTarget(cfg), logger.Logger)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open %s database", driverName(cfg))
	}
	return cfg, database, nil
}

func driverName(cfg *am.Config) string {
	if cfg.Database.Driver == "" {
		return am.DriverSQLite
	}
	return cfg.Database.Driver
}

// openStack opens the database and wires the lifecycle manager over it
func openStack() (*stack, error) {
	cfg, database, err := openDatabase()
	if err != nil {
		return nil, err
	}

	gateway, err := scheduler.New(cfg.Scheduler, database, logger.ComponentLogger("scheduler"))
	if err != nil {
		database.Close()
		return nil, errors.Wrap(err, "failed to create scheduler gateway")
	}

	s := &stack{
		cfg:      cfg,
		db:       database,
		catalog:  catalog.NewStore(database, logger.ComponentLogger("catalog")),
		activity: activity.NewStore(database),
		gateway:  gateway,
	}
	s.manager = lifecycle.NewManager(
		jobconfig.NewStore(database, logger.ComponentLogger("jobconfig")),
		s.catalog,
		gateway,
		activity.NewRecorder(s.activity, logger.ComponentLogger("activity")),
		lifecycle.ConfigFromAM(cfg),
		logger.ComponentLogger("lifecycle"),
	)
	return s, nil
}
