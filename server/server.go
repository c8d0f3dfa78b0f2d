// Package server exposes the job configuration lifecycle and the catalog over
// a JSON HTTP API.
package server

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/dataloader/activity"
	"github.com/teranos/dataloader/am"
	"github.com/teranos/dataloader/catalog"
	"github.com/teranos/dataloader/errors"
	"github.com/teranos/dataloader/jobconfig"
	"github.com/teranos/dataloader/lifecycle"
	"github.com/teranos/dataloader/scheduler"
)

// ServerState tracks the server lifecycle
type ServerState int32

const (
	ServerStateRunning ServerState = iota
	ServerStateDraining
	ServerStateStopped
)

// Server is the dataloader HTTP API
type Server struct {
	db       *sql.DB
	manager  *lifecycle.Manager
	catalog  *catalog.Store
	activity *activity.Store
	gateway  scheduler.Gateway
	logger   *zap.SugaredLogger

	cfgMu sync.RWMutex
	cfg   *am.Config

	mux           *http.ServeMux
	httpServer    *http.Server
	configWatcher *am.ConfigWatcher

	state     atomic.Int32
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// New wires the stores, the scheduler gateway and the lifecycle manager on
// top of an already migrated database
func New(database *sql.DB, cfg *am.Config, log *zap.SugaredLogger) (*Server, error) {
	if database == nil {
		return nil, errors.New("database is required")
	}
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	gateway, err := scheduler.New(cfg.Scheduler, database, log.Named("scheduler"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create scheduler gateway")
	}

	catalogStore := catalog.NewStore(database, log.Named("catalog"))
	activityStore := activity.NewStore(database)
	manager := lifecycle.NewManager(
		jobconfig.NewStore(database, log.Named("jobconfig")),
		catalogStore,
		gateway,
		activity.NewRecorder(activityStore, log.Named("activity")),
		lifecycle.ConfigFromAM(cfg),
		log.Named("lifecycle"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		db:        database,
		manager:   manager,
		catalog:   catalogStore,
		activity:  activityStore,
		gateway:   gateway,
		logger:    log,
		cfg:       cfg,
		mux:       http.NewServeMux(),
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.setState(ServerStateRunning)
	s.setupHTTPRoutes()

	readTimeout := time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}
	return s, nil
}

// Handler returns the routed API with request middleware applied
func (s *Server) Handler() http.Handler {
	return s.requestMiddleware(s.mux)
}

// Manager exposes the lifecycle manager, e.g. for CLI commands sharing a process
func (s *Server) Manager() *lifecycle.Manager {
	return s.manager
}

func (s *Server) config() *am.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

func (s *Server) setConfig(cfg *am.Config) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.cfg = cfg
}
