package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar points at an optional YAML file layered between defaults
// and environment variables.
const ConfigPathEnvVar = "OJSYNC_CONFIG"

var defaultConfigPaths = []string{"config.yaml", "/etc/ojsync/config.yaml"}

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Sync     SyncConfig     `koanf:"sync"`
	Security SecurityConfig `koanf:"security"`
	Log      LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	Port            string        `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	SyncTriggerRPM  int           `koanf:"sync_trigger_rpm"`
}

type DatabaseConfig struct {
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
	SSLMode  string `koanf:"sslmode"`
}

// ConnString builds the key=value DSN understood by pgx.
func (d DatabaseConfig) ConnString() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Addr         string        `koanf:"addr"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	QueueName    string        `koanf:"queue_name"`
	DelayedQueue string        `koanf:"delayed_queue"`
	LockPrefix   string        `koanf:"lock_prefix"`
	LockTTL      time.Duration `koanf:"lock_ttl"`
	EventChannel string        `koanf:"event_channel"`
}

type SyncConfig struct {
	RateLimitInterval time.Duration `koanf:"rate_limit_interval"`
	RetryAttempts     int           `koanf:"retry_attempts"`
	RetryBaseDelay    time.Duration `koanf:"retry_base_delay"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
	JobTimeout        time.Duration `koanf:"job_timeout"`
	Heartbeat         time.Duration `koanf:"heartbeat"`
	StaleAfter        time.Duration `koanf:"stale_after"`
	SweepInterval     time.Duration `koanf:"sweep_interval"`
	PromoteInterval   time.Duration `koanf:"promote_interval"`
	Schedule          string        `koanf:"schedule"`
	SchedulerEnabled  bool          `koanf:"scheduler_enabled"`
	Workers           int           `koanf:"workers"`
	FailureThreshold  int           `koanf:"failure_threshold"`
	FetchSourceCode   bool          `koanf:"fetch_source_code"`
	// SessionConflictPolicy is one of proceed, refuse, queue.
	SessionConflictPolicy string `koanf:"session_conflict_policy"`
	// QuietHours is "HH-HH" in the platforms' local time (UTC+8).
	QuietHours string `koanf:"quiet_hours"`
}

type SecurityConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	JWTExpiry time.Duration `koanf:"jwt_expiry"`
	// CredentialsKey is a 64 character hex string sealing stored platform credentials.
	CredentialsKey string `koanf:"credentials_key"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

var AppConfig *Config

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: 15 * time.Second,
			SyncTriggerRPM:  6,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "user",
			Password: "password",
			Name:     "oj_sync",
			SSLMode:  "disable",
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			QueueName:    "sync_jobs_queue",
			DelayedQueue: "sync_jobs_delayed",
			LockPrefix:   "sync:lock:account:",
			LockTTL:      45 * time.Minute,
			EventChannel: "sync.completed",
		},
		Sync: SyncConfig{
			RateLimitInterval:     2 * time.Second,
			RetryAttempts:         3,
			RetryBaseDelay:        time.Second,
			RequestTimeout:        30 * time.Second,
			JobTimeout:            30 * time.Minute,
			Heartbeat:             15 * time.Second,
			StaleAfter:            5 * time.Minute,
			SweepInterval:         time.Minute,
			PromoteInterval:       5 * time.Second,
			Schedule:              "@every 6h",
			SchedulerEnabled:      true,
			Workers:               4,
			FailureThreshold:      10,
			FetchSourceCode:       true,
			SessionConflictPolicy: "refuse",
			QuietHours:            "02-06",
		},
		Security: SecurityConfig{
			JWTSecret: "defaultsecret",
			JWTExpiry: 72 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load layers defaults, an optional YAML file and the environment (highest
// priority) and stores the result in AppConfig.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env is optional
		fmt.Println("No .env file found, relying on environment variables")
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envToKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	AppConfig = cfg
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range defaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var envSections = map[string]string{
	"server":   "server",
	"database": "database",
	"db":       "database",
	"redis":    "redis",
	"sync":     "sync",
	"security": "security",
	"log":      "log",
}

// envToKey maps SYNC_RATE_LIMIT_INTERVAL to sync.rate_limit_interval and
// DB_HOST to database.host. Variables outside the known sections are ignored.
func envToKey(name string) string {
	name = strings.ToLower(name)
	prefix, rest, ok := strings.Cut(name, "_")
	if !ok || rest == "" {
		return ""
	}
	section, known := envSections[prefix]
	if !known {
		return ""
	}
	return section + "." + rest
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Sync.RateLimitInterval < 0 {
		errs = append(errs, errors.New("sync.rate_limit_interval must not be negative"))
	}
	if c.Sync.RetryAttempts < 1 {
		errs = append(errs, errors.New("sync.retry_attempts must be at least 1"))
	}
	if c.Sync.Workers < 1 {
		errs = append(errs, errors.New("sync.workers must be at least 1"))
	}
	if c.Sync.FailureThreshold < 1 {
		errs = append(errs, errors.New("sync.failure_threshold must be at least 1"))
	}
	if c.Sync.JobTimeout <= 0 {
		errs = append(errs, errors.New("sync.job_timeout must be positive"))
	}
	if c.Sync.StaleAfter <= c.Sync.Heartbeat {
		errs = append(errs, errors.New("sync.stale_after must exceed sync.heartbeat"))
	}
	switch c.Sync.SessionConflictPolicy {
	case "proceed", "refuse", "queue":
	default:
		errs = append(errs, fmt.Errorf("sync.session_conflict_policy %q is not one of proceed, refuse, queue", c.Sync.SessionConflictPolicy))
	}
	if _, _, err := ParseQuietHours(c.Sync.QuietHours); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseQuietHours parses "HH-HH" into start and end hours.
func ParseQuietHours(s string) (int, int, error) {
	var start, end int
	if _, err := fmt.Sscanf(s, "%d-%d", &start, &end); err != nil {
		return 0, 0, fmt.Errorf("sync.quiet_hours %q must look like 02-06: %w", s, err)
	}
	if start < 0 || start > 23 || end < 0 || end > 23 || start == end {
		return 0, 0, fmt.Errorf("sync.quiet_hours %q out of range", s)
	}
	return start, end, nil
}
