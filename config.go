package imagegate

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Queue      QueueConfig       `yaml:"queue"`
	Store      StoreConfig       `yaml:"store"`
	Generators []GeneratorConfig `yaml:"generators"`
	Cache      CacheConfig       `yaml:"cache"`
	Server     ServerConfig      `yaml:"server"`
}

// QueueConfig configures admission control.
type QueueConfig struct {
	MaxConcurrent int64         `yaml:"max_concurrent"`
	DailyLimit    int64         `yaml:"daily_limit"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	// MaxWait bounds the time spent waiting for a slot. Zero waits forever.
	MaxWait  time.Duration `yaml:"max_wait"`
	Timezone string        `yaml:"timezone"`
	Keys     Keys          `yaml:"keys"`
}

// StoreConfig selects the shared state backend.
type StoreConfig struct {
	Backend  string         `yaml:"backend"` // memory, badger, redis, postgres
	Badger   BadgerConfig   `yaml:"badger"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// BadgerConfig configures the on-disk store.
type BadgerConfig struct {
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"in_memory"`
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// PostgresConfig configures the PostgreSQL store.
type PostgresConfig struct {
	DSN         string `yaml:"dsn"`
	TablePrefix string `yaml:"table_prefix"`
}

// GeneratorConfig configures one image generator.
type GeneratorConfig struct {
	Provider string        `yaml:"provider"` // openai, gemini, mock
	ID       string        `yaml:"id"`
	Auth     Auth          `yaml:"auth"`
	Model    string        `yaml:"model"`
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	// Latency is only used by the mock generator.
	Latency time.Duration `yaml:"latency"`
}

// CacheConfig configures where fetched and generated images are kept.
type CacheConfig struct {
	Backend string   `yaml:"backend"` // local, s3, none
	Dir     string   `yaml:"dir"`
	S3      S3Config `yaml:"s3"`
}

// S3Config configures an S3-compatible bucket.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// ServerConfig configures the HTTP relay.
type ServerConfig struct {
	Addr             string        `yaml:"addr"`
	EnableReset      bool          `yaml:"enable_reset"`
	DownloadFilename string        `yaml:"download_filename"`
	// StaticDir holds the sample images the mock generator links to,
	// served under /examples/. Empty disables the route.
	StaticDir        string        `yaml:"static_dir"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
}

// DefaultConfig returns a config with the standard limits, an in-memory
// store and the mock generator.
func DefaultConfig() Config {
	return Config{
		Queue: DefaultQueueConfig(),
		Store: StoreConfig{
			Backend: "memory",
			Redis:   RedisConfig{Addr: "localhost:6379", KeyPrefix: "imagegate:"},
			Postgres: PostgresConfig{
				TablePrefix: "imagegate_",
			},
		},
		Generators: []GeneratorConfig{{Provider: "mock", ID: "mock"}},
		Cache:      CacheConfig{Backend: "local", Dir: "cache"},
		Server: ServerConfig{
			Addr:             ":8080",
			DownloadFilename: "kira-image.png",
			StaticDir:        "public",
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     5 * time.Minute,
		},
	}
}

// DefaultQueueConfig returns 3 concurrent slots, 250 per day and a 2s poll.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxConcurrent: 3,
		DailyLimit:    250,
		PollInterval:  2 * time.Second,
		Timezone:      "Local",
		Keys:          DefaultKeys(),
	}
}

// LoadConfig reads and parses a YAML config file on top of DefaultConfig.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("imagegate: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("imagegate: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	if err := c.Queue.Validate(); err != nil {
		return err
	}

	switch c.Store.Backend {
	case "memory":
	case "badger":
		if c.Store.Badger.Dir == "" && !c.Store.Badger.InMemory {
			return fmt.Errorf("imagegate: config: store.badger.dir is required")
		}
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("imagegate: config: store.redis.addr is required")
		}
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("imagegate: config: store.postgres.dsn is required")
		}
	default:
		return fmt.Errorf("imagegate: config: invalid store backend %q", c.Store.Backend)
	}

	if len(c.Generators) == 0 {
		return fmt.Errorf("imagegate: config: at least one generator is required")
	}
	ids := make(map[string]bool, len(c.Generators))
	for i, g := range c.Generators {
		if g.Provider == "" {
			return fmt.Errorf("imagegate: config: generators[%d]: provider is required", i)
		}
		switch g.Provider {
		case "openai", "gemini", "mock":
		default:
			return fmt.Errorf("imagegate: config: generators[%d]: unknown provider %q", i, g.Provider)
		}
		id := g.Name()
		if ids[id] {
			return fmt.Errorf("imagegate: config: duplicate generator id %q", id)
		}
		ids[id] = true
	}

	switch c.Cache.Backend {
	case "", "none":
	case "local":
		if c.Cache.Dir == "" {
			return fmt.Errorf("imagegate: config: cache.dir is required")
		}
	case "s3":
		if c.Cache.S3.Bucket == "" {
			return fmt.Errorf("imagegate: config: cache.s3.bucket is required")
		}
	default:
		return fmt.Errorf("imagegate: config: invalid cache backend %q", c.Cache.Backend)
	}

	return nil
}

// Validate checks the admission limits.
func (q QueueConfig) Validate() error {
	if q.MaxConcurrent < 1 {
		return fmt.Errorf("imagegate: config: queue.max_concurrent must be at least 1")
	}
	if q.DailyLimit < 1 {
		return fmt.Errorf("imagegate: config: queue.daily_limit must be at least 1")
	}
	if q.PollInterval <= 0 {
		return fmt.Errorf("imagegate: config: queue.poll_interval must be positive")
	}
	if q.MaxWait < 0 {
		return fmt.Errorf("imagegate: config: queue.max_wait must not be negative")
	}
	if q.Keys.Active == "" || q.Keys.DailyCount == "" || q.Keys.LastDate == "" {
		return fmt.Errorf("imagegate: config: queue.keys must all be set")
	}
	if _, err := q.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone. Empty and "Local" mean the host zone.
func (q QueueConfig) Location() (*time.Location, error) {
	if q.Timezone == "" || q.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return nil, fmt.Errorf("imagegate: config: queue.timezone: %w", err)
	}
	return loc, nil
}

// Name returns the generator id, defaulting to the provider name.
func (g GeneratorConfig) Name() string {
	if g.ID != "" {
		return g.ID
	}
	return g.Provider
}
