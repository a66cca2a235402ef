package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported values for STATE_BACKEND.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config aggregates runtime settings. Environment variables provide the base
// values and an optional YAML file named by CONFIG_FILE overrides them.
type Config struct {
	HTTPPort    string      `yaml:"http_port"`
	Maintenance Maintenance `yaml:"maintenance"`
	Backend     string      `yaml:"backend"`
	StateFile   string      `yaml:"state_file"`
	Redis       Redis       `yaml:"redis"`
	Postgres    Postgres    `yaml:"postgres"`
	Logging     Logging     `yaml:"logging"`
}

// Maintenance configures the gate itself.
type Maintenance struct {
	ManagementPath  string        `yaml:"management_path"`
	ProtectedPrefix string        `yaml:"protected_prefix"`
	AccessKey       string        `yaml:"access_key"`
	RefreshInterval time.Duration `yaml:"-"`

	// RefreshIntervalRaw is the YAML form, e.g. "30s".
	RefreshIntervalRaw string `yaml:"refresh_interval"`
}

type Redis struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type Postgres struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSL      bool   `yaml:"ssl"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File enables a rotating log file next to stderr output.
	File string `yaml:"file"`
}

// Load builds a Config from the environment, applies CONFIG_FILE when set and validates the result.
func Load() (Config, error) {
	cfg := FromEnv()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// FromEnv reads every setting from environment variables, falling back to defaults.
func FromEnv() Config {
	refresh := 60 * time.Second
	if raw := os.Getenv("MAINTENANCE_REFRESH_MS"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			refresh = time.Duration(ms) * time.Millisecond
		}
	}

	redisDB := 0
	if raw := os.Getenv("REDIS_DB"); raw != "" {
		if db, err := strconv.Atoi(raw); err == nil {
			redisDB = db
		}
	}

	return Config{
		HTTPPort: firstNonEmpty(os.Getenv("PORT"), "3000"),
		Maintenance: Maintenance{
			ManagementPath:  firstNonEmpty(os.Getenv("MAINTENANCE_PATH"), "/maintenance"),
			ProtectedPrefix: firstNonEmpty(os.Getenv("MAINTENANCE_PROTECTED_PREFIX"), "/api"),
			AccessKey:       os.Getenv("MAINTENANCE_ACCESS_KEY"),
			RefreshInterval: refresh,
		},
		Backend:   firstNonEmpty(os.Getenv("STATE_BACKEND"), BackendNone),
		StateFile: firstNonEmpty(os.Getenv("MAINTENANCE_STATE_FILE"), "maintenance.json"),
		Redis: Redis{
			Addr:      os.Getenv("REDIS_ADDR"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			KeyPrefix: firstNonEmpty(os.Getenv("REDIS_KEY_PREFIX"), "maintenance:"),
		},
		Postgres: Postgres{
			Host:     firstNonEmpty(os.Getenv("PG_HOST"), "localhost"),
			Port:     firstNonEmpty(os.Getenv("PG_PORT"), "5432"),
			Database: firstNonEmpty(os.Getenv("PG_DATABASE"), "maintenance"),
			User:     firstNonEmpty(os.Getenv("PG_USER"), "maintenance"),
			Password: os.Getenv("PG_PASSWORD"),
			SSL:      os.Getenv("PG_SSL") == "true",
		},
		Logging: Logging{
			Level:  firstNonEmpty(os.Getenv("LOG_LEVEL"), "info"),
			Format: firstNonEmpty(os.Getenv("LOG_FORMAT"), "json"),
			File:   os.Getenv("LOG_FILE"),
		},
	}
}

// ApplyFile overlays the YAML file at path onto c. Fields missing from the
// file keep their current values. ${VAR} references are expanded first.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if raw := c.Maintenance.RefreshIntervalRaw; raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parsing refresh_interval %q: %w", raw, err)
		}
		c.Maintenance.RefreshInterval = d
	}
	return nil
}

// Validate checks that the selected backend has what it needs.
func (c *Config) Validate() error {
	if c.Maintenance.RefreshInterval <= 0 {
		return fmt.Errorf("maintenance.refresh_interval must be positive")
	}
	switch c.Backend {
	case BackendNone, BackendMemory:
	case BackendFile:
		if c.StateFile == "" {
			return fmt.Errorf("state_file is required for the file backend")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis backend")
		}
	case BackendPostgres:
		if c.Postgres.Host == "" || c.Postgres.Database == "" {
			return fmt.Errorf("postgres.host and postgres.database are required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or with an
// empty string when it is unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
