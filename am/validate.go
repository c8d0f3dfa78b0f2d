package am

import (
	"net/url"

	"github.com/teranos/dataloader/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "", DriverSQLite:
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required when database.driver is postgres")
		}
	default:
		return errors.Newf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeoutSeconds < 0 {
		return errors.Newf("server.read_timeout_seconds must be >= 0, got %d", c.Server.ReadTimeoutSeconds)
	}

	// 0 = default, negative = invalid
	if c.Lifecycle.MaxVersionAttempts < 0 {
		return errors.Newf("lifecycle.max_version_attempts must be >= 0, got %d", c.Lifecycle.MaxVersionAttempts)
	}

	switch c.Scheduler.Mode {
	case "", SchedulerLocal, SchedulerNone:
	case SchedulerHTTP:
		if c.Scheduler.URL == "" {
			return errors.New("scheduler.url cannot be empty when scheduler.mode is http")
		}
		u, err := url.Parse(c.Scheduler.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.Newf("scheduler.url must be an absolute http(s) URL, got %q", c.Scheduler.URL)
		}
	default:
		return errors.Newf("scheduler.mode must be local, http or none, got %q", c.Scheduler.Mode)
	}
	if c.Scheduler.TimeoutSeconds < 0 {
		return errors.Newf("scheduler.timeout_seconds must be >= 0, got %d", c.Scheduler.TimeoutSeconds)
	}
	if c.Scheduler.RequestsPerMinute < 0 {
		return errors.Newf("scheduler.requests_per_minute must be >= 0, got %d", c.Scheduler.RequestsPerMinute)
	}

	if c.Log.Verbosity < 0 {
		return errors.Newf("log.verbosity must be >= 0, got %d", c.Log.Verbosity)
	}

	return nil
}
