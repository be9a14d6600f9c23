// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fawad-mazhar/jobcards/internal/models"
	"github.com/fawad-mazhar/jobcards/internal/template"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig        `yaml:"server"`
	Log       LogConfig           `yaml:"log"`
	Storage   StorageConfig       `yaml:"storage"`
	Postgres  PostgresConfig      `yaml:"postgres"`
	LevelDB   LevelDBConfig       `yaml:"leveldb"`
	NATS      NATSConfig          `yaml:"nats"`
	Actors    []ActorConfig       `yaml:"actors"`
	Templates []template.Template `yaml:"templates"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string `yaml:"port"`
	ReadTimeout     int    `yaml:"readTimeout"`
	WriteTimeout    int    `yaml:"writeTimeout"`
	ShutdownTimeout int    `yaml:"shutdownTimeout"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Env  string `yaml:"env"`
	Path string `yaml:"path"`
}

// StorageConfig selects and configures the task store
type StorageConfig struct {
	Driver     string `yaml:"driver"`
	BoltPath   string `yaml:"boltPath"`
	BoltBucket string `yaml:"boltBucket"`
}

// PostgresConfig holds PostgreSQL configuration
type PostgresConfig struct {
	URL string `yaml:"-"`
}

// LevelDBConfig holds LevelDB view cache configuration
type LevelDBConfig struct {
	Path     string `yaml:"path"`
	TTLHours int    `yaml:"ttlHours"`
}

// NATSConfig holds event publishing configuration. An empty URL disables publishing.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subjectPrefix"`
	FlushInterval int    `yaml:"flushInterval"` // milliseconds
}

// ActorConfig maps an API token to a workshop identity and role
type ActorConfig struct {
	Token string      `yaml:"token"`
	ID    string      `yaml:"id"`
	Role  models.Role `yaml:"role"`
}

// Default configuration values
const (
	DefaultServerPort         = "8080"
	DefaultServerReadTimeout  = 30
	DefaultServerWriteTimeout = 30
	DefaultShutdownTimeout    = 30
	DefaultLogEnv             = "local"
	DefaultLogPath            = "./data/jobcards.log"
	DefaultStorageDriver      = DriverBolt
	DefaultBoltPath           = "./data/jobcards.db"
	DefaultBoltBucket         = "jobcards"
	DefaultLevelDBPath        = "./data/leveldb"
	DefaultCacheTTLHours      = 24
	DefaultSubjectPrefix      = "jobcards"
	DefaultFlushInterval      = 500
)

// Storage drivers
const (
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
)

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func orString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func orInt(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

// Load reads the YAML configuration file and applies environment overrides and defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse builds a configuration from YAML content, environment overrides and defaults
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.Server = ServerConfig{
		Port:            getEnv("JOBCARDS_SERVER_PORT", orString(config.Server.Port, DefaultServerPort)),
		ReadTimeout:     getEnvInt("JOBCARDS_SERVER_READ_TIMEOUT", orInt(config.Server.ReadTimeout, DefaultServerReadTimeout)),
		WriteTimeout:    getEnvInt("JOBCARDS_SERVER_WRITE_TIMEOUT", orInt(config.Server.WriteTimeout, DefaultServerWriteTimeout)),
		ShutdownTimeout: getEnvInt("JOBCARDS_SERVER_SHUTDOWN_TIMEOUT", orInt(config.Server.ShutdownTimeout, DefaultShutdownTimeout)),
	}

	config.Log = LogConfig{
		Env:  getEnv("JOBCARDS_LOG_ENV", orString(config.Log.Env, DefaultLogEnv)),
		Path: getEnv("JOBCARDS_LOG_PATH", orString(config.Log.Path, DefaultLogPath)),
	}

	config.Storage = StorageConfig{
		Driver:     getEnv("JOBCARDS_STORAGE_DRIVER", orString(config.Storage.Driver, DefaultStorageDriver)),
		BoltPath:   getEnv("JOBCARDS_BOLT_PATH", orString(config.Storage.BoltPath, DefaultBoltPath)),
		BoltBucket: getEnv("JOBCARDS_BOLT_BUCKET", orString(config.Storage.BoltBucket, DefaultBoltBucket)),
	}

	config.Postgres = PostgresConfig{
		URL: os.Getenv("JOBCARDS_POSTGRES_URL"),
	}

	config.LevelDB = LevelDBConfig{
		Path:     getEnv("JOBCARDS_LEVELDB_PATH", orString(config.LevelDB.Path, DefaultLevelDBPath)),
		TTLHours: getEnvInt("JOBCARDS_CACHE_TTL_HOURS", orInt(config.LevelDB.TTLHours, DefaultCacheTTLHours)),
	}

	config.NATS = NATSConfig{
		URL:           getEnv("JOBCARDS_NATS_URL", config.NATS.URL),
		SubjectPrefix: getEnv("JOBCARDS_NATS_SUBJECT_PREFIX", orString(config.NATS.SubjectPrefix, DefaultSubjectPrefix)),
		FlushInterval: getEnvInt("JOBCARDS_NATS_FLUSH_INTERVAL", orInt(config.NATS.FlushInterval, DefaultFlushInterval)),
	}

	// Initialize empty slices if none were loaded from file
	if config.Actors == nil {
		config.Actors = make([]ActorConfig, 0)
	}
	if config.Templates == nil {
		config.Templates = make([]template.Template, 0)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverBolt:
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("JOBCARDS_POSTGRES_URL environment variable is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	tokens := make(map[string]bool, len(c.Actors))
	for i, actor := range c.Actors {
		if actor.Token == "" || actor.ID == "" {
			return fmt.Errorf("actor %d: token and id are required", i)
		}
		if !actor.Role.IsValid() {
			return fmt.Errorf("actor %s: unknown role %q", actor.ID, actor.Role)
		}
		if tokens[actor.Token] {
			return fmt.Errorf("actor %s: duplicate token", actor.ID)
		}
		tokens[actor.Token] = true
	}

	return nil
}
