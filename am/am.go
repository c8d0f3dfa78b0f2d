package am

import "fmt"

// Config represents the dataloader configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database" toml:"database" json:"database" yaml:"database"`
	Server    ServerConfig    `mapstructure:"server" toml:"server" json:"server" yaml:"server"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle" toml:"lifecycle" json:"lifecycle" yaml:"lifecycle"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" toml:"scheduler" json:"scheduler" yaml:"scheduler"`
	Log       LogConfig       `mapstructure:"log" toml:"log" json:"log" yaml:"log"`
}

// DatabaseConfig selects and locates the configuration store
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" toml:"driver" json:"driver" yaml:"driver"` // sqlite (default) or postgres
	Path   string `mapstructure:"path" toml:"path" json:"path" yaml:"path"`         // sqlite file path
	DSN    string `mapstructure:"dsn" toml:"dsn" json:"-" yaml:"-"`                 // postgres connection string
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Port               int      `mapstructure:"port" toml:"port" json:"port" yaml:"port"`
	ReadTimeoutSeconds int      `mapstructure:"read_timeout_seconds" toml:"read_timeout_seconds" json:"read_timeout_seconds" yaml:"read_timeout_seconds"`
	AllowedOrigins     []string `mapstructure:"allowed_origins" toml:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`
}

// LifecycleConfig tunes the job configuration lifecycle
type LifecycleConfig struct {
	MaxVersionAttempts int    `mapstructure:"max_version_attempts" toml:"max_version_attempts" json:"max_version_attempts" yaml:"max_version_attempts"` // inserts tried when a concurrent writer takes the same version
	DefaultActor       string `mapstructure:"default_actor" toml:"default_actor" json:"default_actor" yaml:"default_actor"`
}

// SchedulerConfig selects where deployed bundles are submitted
type SchedulerConfig struct {
	Mode              string `mapstructure:"mode" toml:"mode" json:"mode" yaml:"mode"` // local, http or none
	URL               string `mapstructure:"url" toml:"url" json:"url" yaml:"url"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds" toml:"timeout_seconds" json:"timeout_seconds" yaml:"timeout_seconds"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" toml:"requests_per_minute" json:"requests_per_minute" yaml:"requests_per_minute"` // 0 = unthrottled
	AllowPrivateHosts bool   `mapstructure:"allow_private_hosts" toml:"allow_private_hosts" json:"allow_private_hosts" yaml:"allow_private_hosts"`
}

// LogConfig configures the global logger
type LogConfig struct {
	JSON      bool `mapstructure:"json" toml:"json" json:"json" yaml:"json"`
	Verbosity int  `mapstructure:"verbosity" toml:"verbosity" json:"verbosity" yaml:"verbosity"`
}

// Database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Scheduler modes
const (
	SchedulerLocal = "local"
	SchedulerHTTP  = "http"
	SchedulerNone  = "none"
)

// Defaults
const (
	DefaultServerPort         = 8742
	DefaultDatabasePath       = "dataloader.db"
	DefaultMaxVersionAttempts = 3
	DefaultSchedulerTimeout   = 30
	DefaultActor              = "dataloader@local"
)

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// GetDatabasePath returns the configured sqlite path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return DefaultDatabasePath
	}
	return c.Database.Path
}

// GetServerPort returns the configured port, falling back to the default
func (c *Config) GetServerPort() int {
	if c.Server.Port == 0 {
		return DefaultServerPort
	}
	return c.Server.Port
}

// GetMaxVersionAttempts returns the number of insert attempts per publish/deploy
func (c *Config) GetMaxVersionAttempts() int {
	if c.Lifecycle.MaxVersionAttempts <= 0 {
		return DefaultMaxVersionAttempts
	}
	return c.Lifecycle.MaxVersionAttempts
}

// GetDefaultActor returns the actor recorded when a caller does not supply one
func (c *Config) GetDefaultActor() string {
	if c.Lifecycle.DefaultActor == "" {
		return DefaultActor
	}
	return c.Lifecycle.DefaultActor
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: {Driver: %s, Path: %s}, Server: {Port: %d}, Scheduler: {Mode: %s}}",
		c.Database.Driver, c.Database.Path, c.Server.Port, c.Scheduler.Mode)
}
