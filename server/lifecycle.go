package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/teranos/dataloader/am"
	"github.com/teranos/dataloader/errors"
	"github.com/teranos/dataloader/logger"
)

// shutdownTimeout bounds how long in-flight requests may drain
const shutdownTimeout = 10 * time.Second

// getState returns the current server state
func (s *Server) getState() ServerState {
	return ServerState(s.state.Load())
}

// setState atomically updates the server state
func (s *Server) setState(newState ServerState) {
	s.state.Store(int32(newState))
	s.logger.Infow("Server state changed", "new_state", stateString(newState))
}

// stateString returns human-readable state name
func stateString(state ServerState) string {
	switch state {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Start listens on port, or the next free port after it, and serves until
// Stop is called. It returns nil after a graceful shutdown.
func (s *Server) Start(port int) error {
	actualPort, err := findAvailablePort(port)
	if err != nil {
		return errors.Wrap(err, "failed to find available port")
	}
	if actualPort != port {
		s.logger.Infow("Port in use, using alternative",
			"requested_port", port,
			"actual_port", actualPort,
		)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", actualPort))
	if err != nil {
		return errors.Wrapf(err, "failed to listen on port %d", actualPort)
	}
	return s.Serve(listener)
}

// Serve accepts connections on listener until Stop is called
func (s *Server) Serve(listener net.Listener) error {
	s.logger.Infow("Server ready",
		logger.FieldAddress, listener.Addr().String(),
		"scheduler", s.config().Scheduler.Mode,
	)

	err := s.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// WatchConfig reloads tunables when the config file at path changes:
// verbosity, allowed origins and the scheduler submission timeout.
// Database and scheduler mode changes need a restart.
func (s *Server) WatchConfig(path string) {
	if path == "" {
		s.logger.Infow("No config file found, using defaults (config watching disabled)")
		return
	}

	watcher, err := am.NewConfigWatcher(path)
	if err != nil {
		s.logger.Warnw("Failed to create config watcher, manual restart required for config changes", "error", err)
		return
	}
	s.configWatcher = watcher
	am.SetGlobalWatcher(watcher)

	watcher.OnReload(s.applyConfig)
	watcher.Start()
	s.logger.Infow("Config watcher started", "path", path)
}

// applyConfig swaps in a reloaded config
func (s *Server) applyConfig(newCfg *am.Config) error {
	old := s.config()
	if newCfg.Database != old.Database || newCfg.Scheduler.Mode != old.Scheduler.Mode || newCfg.Scheduler.URL != old.Scheduler.URL {
		s.logger.Warnw("Database or scheduler settings changed; restart to apply them")
	}

	logger.SetLevel(newCfg.Log.Verbosity)
	if newCfg.Scheduler.TimeoutSeconds > 0 {
		s.manager.SetTimeout(time.Duration(newCfg.Scheduler.TimeoutSeconds) * time.Second)
	}
	s.setConfig(newCfg)

	s.logger.Infow("Config reloaded",
		"verbosity", newCfg.Log.Verbosity,
		"allowed_origins", newCfg.Server.AllowedOrigins,
		"scheduler_timeout_seconds", newCfg.Scheduler.TimeoutSeconds,
	)
	return nil
}

// Stop drains in-flight requests and releases the watcher
func (s *Server) Stop() error {
	s.logger.Infow("Initiating server shutdown")
	s.setState(ServerStateDraining)

	var shutdownErr error
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		shutdownErr = errors.Wrap(err, "http server shutdown")
	}

	if s.configWatcher != nil {
		if err := s.configWatcher.Stop(); err != nil {
			s.logger.Warnw("Failed to stop config watcher", "error", err)
		}
		am.SetGlobalWatcher(nil)
	}

	s.cancel()

	s.setState(ServerStateStopped)
	s.logger.Infow("Server shutdown complete")
	return shutdownErr
}
