package am

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", DefaultDatabasePath)

	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"http://127.0.0.1",
	})

	v.SetDefault("lifecycle.max_version_attempts", DefaultMaxVersionAttempts)
	v.SetDefault("lifecycle.default_actor", DefaultActor)

	v.SetDefault("scheduler.mode", SchedulerLocal)
	v.SetDefault("scheduler.timeout_seconds", DefaultSchedulerTimeout)
	v.SetDefault("scheduler.requests_per_minute", 60)
	v.SetDefault("scheduler.allow_private_hosts", false)

	v.SetDefault("log.json", false)
	v.SetDefault("log.verbosity", 0)
}

// BindSensitiveEnvVars explicitly binds secrets to environment variables
// so they never have to live in a TOML file.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.dsn", "DATALOADER_DATABASE_DSN", "DATABASE_URL")
	v.BindEnv("scheduler.url", "DATALOADER_SCHEDULER_URL")
}
