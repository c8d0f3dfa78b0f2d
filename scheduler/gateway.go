// Package scheduler hands assembled bundles to whatever runs them: a remote
// scheduler over HTTP, a local queue table, or nothing at all.
package scheduler

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/dataloader/am"
	"github.com/teranos/dataloader/bundle"
	"github.com/teranos/dataloader/errors"
)

// Submission is one bundle headed for the scheduler
type Submission struct {
	RecordID           string
	Bundle             *bundle.Bundle
	ScheduleExpression string
}

// Handle identifies the job on the scheduler side
type Handle struct {
	RemoteJobID   string `json:"jobId"`
	RemoteJobName string `json:"jobName"`
}

// Gateway accepts deploy bundles
type Gateway interface {
	Submit(ctx context.Context, sub Submission) (Handle, error)
}

// ErrNotConfigured is returned by Nop
var ErrNotConfigured = errors.New("no scheduler configured")

// Nop rejects every submission
type Nop struct{}

// Submit always fails with ErrNotConfigured
func (Nop) Submit(context.Context, Submission) (Handle, error) {
	return Handle{}, errors.WithHint(ErrNotConfigured, "set scheduler.mode to local or http")
}

// New builds the gateway selected by cfg.Scheduler.Mode
func New(cfg am.SchedulerConfig, database *sql.DB, logger *zap.SugaredLogger) (Gateway, error) {
	switch cfg.Mode {
	case am.SchedulerLocal, "":
		return NewLocalGateway(database, logger), nil
	case am.SchedulerHTTP:
		gw, err := NewHTTPGateway(cfg.URL, HTTPOptions{
			Timeout:           time.Duration(cfg.TimeoutSeconds) * time.Second,
			RequestsPerMinute: cfg.RequestsPerMinute,
			AllowPrivateHosts: cfg.AllowPrivateHosts,
		}, logger)
		if err != nil {
			return nil, err
		}
		return gw, nil
	case am.SchedulerNone:
		return Nop{}, nil
	default:
		return nil, errors.Newf("unknown scheduler mode %q", cfg.Mode)
	}
}
