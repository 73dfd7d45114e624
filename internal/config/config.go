package config

import (
	"fmt"
	"math"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the waypoint service
type Config struct {
	// Server configuration
	HTTPPort int    `env:"WAYPOINT_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"WAYPOINT_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Backend selects the storage and event bus adapters: memory or redis
	Backend string `env:"WAYPOINT_BACKEND" envDefault:"memory"`

	// Redis configuration
	Redis RedisConfig

	// Roadmap configuration
	Roadmap RoadmapConfig

	// Mission configuration
	Mission MissionConfig

	// Worker configuration
	Workers WorkerConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	// Report retention
	ReportTTL time.Duration `env:"REDIS_REPORT_TTL" envDefault:"24h"`
}

// RoadmapConfig selects the process graph. File wins over random generation.
type RoadmapConfig struct {
	File    string `env:"ROADMAP_FILE"`
	Nodes   int    `env:"ROADMAP_RANDOM_NODES" envDefault:"100"`
	MinCost int64  `env:"ROADMAP_RANDOM_MIN_COST" envDefault:"1"`
	MaxCost int64  `env:"ROADMAP_RANDOM_MAX_COST" envDefault:"10"`
	Seed    int64  `env:"ROADMAP_RANDOM_SEED" envDefault:"1"`
}

// MissionConfig holds phase execution settings
type MissionConfig struct {
	// PhaseDuration is how long each stub phase holds the actuation channel
	PhaseDuration time.Duration `env:"MISSION_PHASE_DURATION" envDefault:"0s"`

	// ActuationWaitTimeout bounds how long a phase waits for the actuation channel
	ActuationWaitTimeout time.Duration `env:"MISSION_ACTUATION_WAIT_TIMEOUT" envDefault:"30s"`
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	PoolSize            int           `env:"WORKER_POOL_SIZE" envDefault:"4"`
	QueueSize           int           `env:"WORKER_QUEUE_SIZE" envDefault:"64"`
	HealthCheckInterval time.Duration `env:"WORKER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
	QueueStallThreshold time.Duration `env:"WORKER_QUEUE_STALL_THRESHOLD" envDefault:"5m"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	MissionExecutionTimeout time.Duration `env:"TIMEOUT_MISSION_EXECUTION" envDefault:"600s"` // 10 minutes
	ShutdownTimeout         time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	switch c.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required for the redis backend")
		}
	default:
		return fmt.Errorf("unsupported backend: %s (must be memory or redis)", c.Backend)
	}

	// Validate roadmap config
	if c.Roadmap.File == "" {
		if c.Roadmap.Nodes < 1 {
			return fmt.Errorf("random roadmap needs at least one node")
		}
		if c.Roadmap.MinCost < 0 || c.Roadmap.MaxCost < c.Roadmap.MinCost ||
			c.Roadmap.MaxCost-c.Roadmap.MinCost == math.MaxInt64 {
			return fmt.Errorf("invalid random cost range [%d,%d]", c.Roadmap.MinCost, c.Roadmap.MaxCost)
		}
	}

	if c.Mission.PhaseDuration < 0 {
		return fmt.Errorf("phase duration must not be negative")
	}
	if c.Mission.ActuationWaitTimeout <= 0 {
		return fmt.Errorf("actuation wait timeout must be positive")
	}

	// Validate worker config
	if c.Workers.PoolSize < 1 {
		return fmt.Errorf("worker pool size must be at least 1")
	}
	if c.Workers.QueueSize < 1 {
		return fmt.Errorf("worker queue size must be at least 1")
	}
	if c.Workers.QueueStallThreshold < 0 {
		return fmt.Errorf("worker queue stall threshold must not be negative")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
