// Package config loads Zoe's runtime configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration, loaded from environment variables.
type Config struct {
	// Mode selects the runtime mode: "scheduler" (default) or "initdb".
	Mode string `env:"ZOE_MODE" envDefault:"scheduler"`

	// Health/metrics endpoint (ambient ops surface, not part of the core API).
	Host string `env:"ZOE_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"ZOE_PORT" envDefault:"5020"`

	// Database
	DBUser          string `env:"ZOE_DB_USER" envDefault:"zoe"`
	DBPass          string `env:"ZOE_DB_PASS" envDefault:"zoe"`
	DBHost          string `env:"ZOE_DB_HOST" envDefault:"localhost"`
	DBPort          int    `env:"ZOE_DB_PORT" envDefault:"5432"`
	DBName          string `env:"ZOE_DB_NAME" envDefault:"zoe"`
	DeploymentName  string `env:"ZOE_DEPLOYMENT_NAME" envDefault:"zoe"`
	MigrationsDir   string `env:"ZOE_MIGRATIONS_DIR" envDefault:"migrations/zoe"`
	ForceSchemaInit bool   `env:"ZOE_FORCE_SCHEMA_INIT" envDefault:"false"`

	// Logging
	LogLevel  string `env:"ZOE_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"ZOE_LOG_FORMAT" envDefault:"json"`

	// Scheduler
	SchedulerPolicy string `env:"ZOE_SCHEDULER_POLICY" envDefault:"FIFO"`

	// Resource caps applied to every spawned service (spec.md §3, ServiceInstance).
	MaxMemoryLimitGiB int `env:"ZOE_MAX_MEMORY_LIMIT_GIB" envDefault:"64"`
	MaxCoreLimit      int `env:"ZOE_MAX_CORE_LIMIT" envDefault:"32"`

	OverlayNetworkName string `env:"ZOE_OVERLAY_NETWORK_NAME" envDefault:"zoe"`
	GELFAddress        string `env:"ZOE_GELF_ADDRESS"`

	WorkspaceBasePath       string `env:"ZOE_WORKSPACE_BASE_PATH" envDefault:"/mnt/workspaces"`
	WorkspaceDeploymentPath string `env:"ZOE_WORKSPACE_DEPLOYMENT_PATH" envDefault:"prod"`
	ZAppShopPath            string `env:"ZOE_ZAPP_SHOP_PATH" envDefault:""`

	// Backend selects the container backend: "kubernetes" or "swarm".
	Backend string `env:"ZOE_BACKEND" envDefault:"kubernetes"`

	// Kubernetes backend
	K8sAPIURL string `env:"ZOE_K8S_API_URL"`
	K8sToken  string `env:"ZOE_K8S_TOKEN"`

	// Swarm backend: http(s)://, zk://host1,host2/docker, or consul://host
	SwarmManagerURL   string `env:"ZOE_SWARM_MANAGER_URL" envDefault:"http://localhost:2375"`
	SwarmZKLeaderPath string `env:"ZOE_SWARM_ZK_PATH" envDefault:"/docker"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the address the health/metrics server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseURL builds a libpq-style connection string for pgx.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
}

// MaxMemoryLimitBytes is the global per-service memory ceiling (spec.md §3).
func (c *Config) MaxMemoryLimitBytes() int64 {
	return int64(c.MaxMemoryLimitGiB) * 1024 * 1024 * 1024
}
