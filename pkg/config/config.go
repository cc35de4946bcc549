// Package config loads settings for the server and client binaries.
//
// Values start from built-in defaults, are overlaid by an optional YAML file
// (path from POS_CONFIG or the --config flag) and finally by individual
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	AppEnv   string `yaml:"app_env"`
	LogLevel string `yaml:"log_level"`

	// CatalogPath overrides the embedded menu when set.
	CatalogPath string `yaml:"catalog_path"`

	Server ServerConfig `yaml:"server"`
	MySQL  MySQLConfig  `yaml:"mysql"`
	Redis  RedisConfig  `yaml:"redis"`
	Client ClientConfig `yaml:"client"`
}

type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type MySQLConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	PoolSize int    `yaml:"pool_size"`
}

type ClientConfig struct {
	// ServerURL is the HTTP base of the order server, e.g. http://localhost:8080/api.
	ServerURL string `yaml:"server_url"`
	// GRPCTarget switches the client to the gRPC transport when set.
	GRPCTarget string `yaml:"grpc_target"`

	OutboxPath string `yaml:"outbox_path"`

	SubmitTimeout time.Duration `yaml:"submit_timeout"`
	SyncInterval  time.Duration `yaml:"sync_interval"`
	SyncTimeout   time.Duration `yaml:"sync_timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	PollTimeout   time.Duration `yaml:"poll_timeout"`

	// BackoffMax caps the wait between failing cycles. Equal to the interval
	// it keeps the cadence flat.
	BackoffMax        time.Duration `yaml:"backoff_max"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`

	MetricsAddr string `yaml:"metrics_addr"`
}

func Default() Config {
	return Config{
		AppEnv:   "dev",
		LogLevel: "info",
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":50051",
			ShutdownTimeout: 10 * time.Second,
		},
		MySQL: MySQLConfig{
			DSN:          "root:root@tcp(localhost:3306)/cafepos",
			MaxOpenConns: 50,
			MaxIdleConns: 25,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 100,
		},
		Client: ClientConfig{
			ServerURL:         "http://localhost:8080/api",
			OutboxPath:        "outbox.db",
			SubmitTimeout:     2 * time.Second,
			SyncInterval:      5 * time.Second,
			SyncTimeout:       5 * time.Second,
			PollInterval:      3 * time.Second,
			PollTimeout:       5 * time.Second,
			BackoffMax:        time.Minute,
			BackoffMultiplier: 2,
		},
	}
}

// Load returns the defaults overlaid by the YAML file at path (skipped when
// path is empty) and then by environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Path resolves the config file location: the flag value wins over POS_CONFIG.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("POS_CONFIG")
}

func (c *Config) applyEnv() {
	c.AppEnv = getEnv("APP_ENV", c.AppEnv)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.CatalogPath = getEnv("POS_CATALOG", c.CatalogPath)

	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)

	c.MySQL.DSN = getEnv("MYSQL_DSN", c.MySQL.DSN)
	c.MySQL.MaxOpenConns = getEnvInt("MYSQL_MAX_OPEN_CONNS", c.MySQL.MaxOpenConns)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.PoolSize = getEnvInt("REDIS_POOL_SIZE", c.Redis.PoolSize)

	c.Client.ServerURL = getEnv("POS_SERVER_URL", c.Client.ServerURL)
	c.Client.GRPCTarget = getEnv("POS_GRPC_TARGET", c.Client.GRPCTarget)
	c.Client.OutboxPath = getEnv("POS_OUTBOX_PATH", c.Client.OutboxPath)
	c.Client.SyncInterval = getEnvDuration("POS_SYNC_INTERVAL", c.Client.SyncInterval)
	c.Client.PollInterval = getEnvDuration("POS_POLL_INTERVAL", c.Client.PollInterval)
	c.Client.MetricsAddr = getEnv("POS_METRICS_ADDR", c.Client.MetricsAddr)
}

func (c Config) Validate() error {
	cl := c.Client
	for name, d := range map[string]time.Duration{
		"client.submit_timeout": cl.SubmitTimeout,
		"client.sync_interval":  cl.SyncInterval,
		"client.sync_timeout":   cl.SyncTimeout,
		"client.poll_interval":  cl.PollInterval,
		"client.poll_timeout":   cl.PollTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive, got %v", name, d)
		}
	}
	if cl.BackoffMultiplier < 1 {
		return fmt.Errorf("config: client.backoff_multiplier must be >= 1, got %v", cl.BackoffMultiplier)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)

	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}

	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
