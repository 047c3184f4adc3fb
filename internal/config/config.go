package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// Crash Collector - Configuration with Environment Overrides
// =============================================================================

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	CrashStore CrashStoreConfig `yaml:"crash_store"`
	Publish    PublishConfig    `yaml:"publish"`
	Mover      MoverConfig      `yaml:"mover"`
	Throttler  ThrottlerConfig  `yaml:"throttler"`
	Redis      RedisConfig      `yaml:"redis"`
}

type ServerConfig struct {
	Port             string   `yaml:"port"`
	Env              string   `yaml:"env"`
	Interface        string   `yaml:"interface"`
	ReadTimeoutSec   int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec  int      `yaml:"write_timeout_sec"`
	IdleTimeoutSec   int      `yaml:"idle_timeout_sec"`
	ShutdownTimeout  int      `yaml:"shutdown_timeout_sec"`
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`
}

// CrashStoreConfig selects and configures the sink.Store backend.
// Class is "gcs" or "fs"; the gcs fields are ignored for "fs".
type CrashStoreConfig struct {
	Class      string `yaml:"class"`
	BucketName string `yaml:"bucket_name"`
	EndpointURL string `yaml:"endpoint_url"`
	Region     string `yaml:"region"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_access_key"`
	FSDir      string `yaml:"fs_dir"`
}

// PublishConfig selects and configures the sink.Publish backend.
// Class is "pubsub" or "local".
type PublishConfig struct {
	Class     string `yaml:"class"`
	ProjectID string `yaml:"project_id"`
	TopicName string `yaml:"topic_name"`
	QueueName string `yaml:"queue_name"`
	TimeoutSec int   `yaml:"timeout_sec"`
}

// MoverConfig configures the crash-mover's worker pool and retry schedule.
type MoverConfig struct {
	Workers           int `yaml:"workers"`
	QueueDepth        int `yaml:"queue_depth"`
	MaxAttempts       int `yaml:"max_attempts"`
	RetrySleepSeconds int `yaml:"retry_sleep_seconds"`
	ShutdownGraceSec  int `yaml:"shutdown_grace_sec"`
}

// ThrottlerConfig carries the product allow-list and an optional override
// of the default rule set's source (reserved for a future external rule
// file; the collector always runs throttle.DefaultRules() today).
type ThrottlerConfig struct {
	Rules    string   `yaml:"rules"`
	Products []string `yaml:"products"`
}

// RedisConfig configures the optional publish-dedup decorator.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTLSec   int    `yaml:"ttl_sec"`
}

// =============================================================================
// Singleton Pattern with Environment Overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton config instance
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file (using defaults)", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from YAML file
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides, per the
// CRASHMOVER_*/BREAKPAD_THROTTLER_* variables the collector documents.
func (c *Config) applyEnvOverrides() {
	// Server
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.Env = getEnv("COLLECTOR_ENV", c.Server.Env)
	c.Server.Interface = getEnv("COLLECTOR_INTERFACE", c.Server.Interface)
	if v := getEnvInt("SERVER_READ_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ReadTimeoutSec = v
	}
	if v := getEnvInt("SERVER_WRITE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.WriteTimeoutSec = v
	}
	if v := getEnvInt("SERVER_IDLE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.IdleTimeoutSec = v
	}
	if v := getEnvInt("SERVER_SHUTDOWN_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ShutdownTimeout = v
	}
	if origins := getEnv("CORS_ALLOW_ORIGINS", ""); origins != "" {
		c.Server.CORSAllowOrigins = splitCSV(origins)
	}

	// Crash store
	c.CrashStore.Class = getEnv("CRASHMOVER_CRASHSTORAGE_CLASS", c.CrashStore.Class)
	c.CrashStore.BucketName = getEnv("CRASHMOVER_CRASHSTORAGE_BUCKET_NAME", c.CrashStore.BucketName)
	c.CrashStore.EndpointURL = getEnv("CRASHMOVER_CRASHSTORAGE_ENDPOINT_URL", c.CrashStore.EndpointURL)
	c.CrashStore.Region = getEnv("CRASHMOVER_CRASHSTORAGE_REGION", c.CrashStore.Region)
	c.CrashStore.AccessKey = getEnv("CRASHMOVER_CRASHSTORAGE_ACCESS_KEY", c.CrashStore.AccessKey)
	c.CrashStore.SecretKey = getEnv("CRASHMOVER_CRASHSTORAGE_SECRET_ACCESS_KEY", c.CrashStore.SecretKey)
	c.CrashStore.FSDir = getEnv("CRASHMOVER_CRASHSTORAGE_FS_DIR", c.CrashStore.FSDir)

	// Publish
	c.Publish.Class = getEnv("CRASHMOVER_CRASHPUBLISH_CLASS", c.Publish.Class)
	c.Publish.ProjectID = getEnv("CRASHMOVER_CRASHPUBLISH_PROJECT_ID", c.Publish.ProjectID)
	c.Publish.TopicName = getEnv("CRASHMOVER_CRASHPUBLISH_TOPIC_NAME", c.Publish.TopicName)
	c.Publish.QueueName = getEnv("CRASHMOVER_CRASHPUBLISH_QUEUE_NAME", c.Publish.QueueName)
	if v := getEnvInt("CRASHMOVER_CRASHPUBLISH_TIMEOUT", 0); v > 0 {
		c.Publish.TimeoutSec = v
	}

	// Mover
	if v := getEnvInt("CRASHMOVER_WORKERS", 0); v > 0 {
		c.Mover.Workers = v
	}
	if v := getEnvInt("CRASHMOVER_QUEUE_DEPTH", 0); v > 0 {
		c.Mover.QueueDepth = v
	}
	if v := getEnvInt("CRASHMOVER_MAX_ATTEMPTS", 0); v > 0 {
		c.Mover.MaxAttempts = v
	}
	if v := getEnvInt("CRASHMOVER_RETRY_SLEEP_SECONDS", 0); v > 0 {
		c.Mover.RetrySleepSeconds = v
	}
	if v := getEnvInt("CRASHMOVER_SHUTDOWN_GRACE_SEC", 0); v > 0 {
		c.Mover.ShutdownGraceSec = v
	}

	// Throttler
	c.Throttler.Rules = getEnv("BREAKPAD_THROTTLER_RULES", c.Throttler.Rules)
	if products := getEnv("BREAKPAD_THROTTLER_PRODUCTS", ""); products != "" {
		c.Throttler.Products = splitCSV(products)
	}

	// Redis dedup
	c.Redis.Enabled = getEnvBool("REDIS_DEDUP_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	if v := getEnvInt("REDIS_DB", -1); v >= 0 {
		c.Redis.DB = v
	}
	if v := getEnvInt("REDIS_DEDUP_TTL_SEC", 0); v > 0 {
		c.Redis.TTLSec = v
	}

	c.applyDefaults()
}

// applyDefaults sets sensible defaults for zero-valued config fields
func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = 60
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30
	}
	if len(c.Server.CORSAllowOrigins) == 0 {
		c.Server.CORSAllowOrigins = []string{"*"}
	}
	if c.CrashStore.Class == "" {
		c.CrashStore.Class = "fs"
	}
	if c.CrashStore.FSDir == "" {
		c.CrashStore.FSDir = "./crash-data"
	}
	if c.Publish.Class == "" {
		c.Publish.Class = "local"
	}
	if c.Publish.TimeoutSec == 0 {
		c.Publish.TimeoutSec = 5
	}
	if c.Mover.Workers == 0 {
		c.Mover.Workers = 1
	}
	if c.Mover.QueueDepth == 0 {
		c.Mover.QueueDepth = 1000
	}
	if c.Mover.MaxAttempts == 0 {
		c.Mover.MaxAttempts = 5
	}
	if c.Mover.RetrySleepSeconds == 0 {
		c.Mover.RetrySleepSeconds = 2
	}
	if c.Mover.ShutdownGraceSec == 0 {
		c.Mover.ShutdownGraceSec = 10
	}
	if c.Redis.TTLSec == 0 {
		c.Redis.TTLSec = 3600
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// =============================================================================
// Convenience Methods
// =============================================================================

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

func (c *Config) GetPort() string {
	if c.Server.Port == "" {
		return "8080"
	}
	return c.Server.Port
}
