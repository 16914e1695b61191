// Package config loads warren.yml, the single configuration file shared by
// the CLI and the consumer daemon. Configuration is read once at startup
// and never reloaded; changing roles or credentials means a restart.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/warrenlabs/warren/internal/policy"
)

// Config represents the top-level warren.yml configuration.
type Config struct {
	Version  string         `yaml:"version"`
	Instance string         `yaml:"instance"`
	Redis    RedisConfig    `yaml:"redis"`
	Queue    QueueConfig    `yaml:"queue,omitempty"`
	Consumer ConsumerConfig `yaml:"consumer,omitempty"`
	Health   HealthConfig   `yaml:"health,omitempty"`
}

// RedisConfig locates the shared store and carries one credential per role.
// Each role authenticates as its own Redis user, so the server-side ACLs
// back up the in-process capability table.
type RedisConfig struct {
	Addr  string                     `yaml:"addr"`
	DB    int                        `yaml:"db,omitempty"`
	Roles map[string]RoleCredentials `yaml:"roles"`
}

// RoleCredentials is one role's store identity.
type RoleCredentials struct {
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// QueueConfig tunes the backlog probe.
type QueueConfig struct {
	WarnBacklog int64 `yaml:"warn_backlog,omitempty"` // Depth at which the queue probe reports degraded (default 50)
}

// ConsumerConfig tunes warrend.
type ConsumerConfig struct {
	ID                string `yaml:"id,omitempty"`                 // Defaults to the hostname
	ExecutorURL       string `yaml:"executor_url,omitempty"`       // Model-routing proxy endpoint
	HealthPort        int    `yaml:"health_port,omitempty"`        // /healthz listen port (default 8080)
	TakeTimeout       string `yaml:"take_timeout,omitempty"`       // e.g. "5s"
	TaskTimeout       string `yaml:"task_timeout,omitempty"`       // e.g. "2m"
	HeartbeatInterval string `yaml:"heartbeat_interval,omitempty"` // e.g. "15s"
	LeaseTTL          string `yaml:"lease_ttl,omitempty"`          // e.g. "5m"
}

// HealthConfig configures the aggregator and its collaborator probes.
type HealthConfig struct {
	OverallTimeout  string       `yaml:"overall_timeout,omitempty"`   // Whole-cycle deadline (default 10s)
	ProbeTimeout    string       `yaml:"probe_timeout,omitempty"`     // Per-probe deadline (default 5s)
	HeartbeatMaxAge string       `yaml:"heartbeat_max_age,omitempty"` // Staleness threshold (default 60s)
	HTTPTargets     []HTTPTarget `yaml:"http_targets,omitempty"`
	TCPTargets      []TCPTarget  `yaml:"tcp_targets,omitempty"`
}

// HTTPTarget is a collaborator probed via an HTTP health endpoint.
type HTTPTarget struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// TCPTarget is a collaborator probed by port reachability alone.
type TCPTarget struct {
	Name string `yaml:"name"`
	Addr string `yaml:"addr"`
}

// Load reads and validates warren.yml from the specified path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate performs strict validation and applies defaults.
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Instance == "" {
		return fmt.Errorf("instance name is required")
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}

	for name := range c.Redis.Roles {
		if err := policy.Role(name).Validate(); err != nil {
			return fmt.Errorf("redis.roles: %w", err)
		}
	}

	if c.Queue.WarnBacklog < 0 {
		return fmt.Errorf("queue.warn_backlog must be >= 0, got %d", c.Queue.WarnBacklog)
	}
	if c.Queue.WarnBacklog == 0 {
		c.Queue.WarnBacklog = 50
	}

	if c.Consumer.HealthPort == 0 {
		c.Consumer.HealthPort = 8080
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"consumer.take_timeout", c.Consumer.TakeTimeout},
		{"consumer.task_timeout", c.Consumer.TaskTimeout},
		{"consumer.heartbeat_interval", c.Consumer.HeartbeatInterval},
		{"consumer.lease_ttl", c.Consumer.LeaseTTL},
		{"health.overall_timeout", c.Health.OverallTimeout},
		{"health.probe_timeout", c.Health.ProbeTimeout},
		{"health.heartbeat_max_age", c.Health.HeartbeatMaxAge},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("%s: invalid duration %q", field.name, field.value)
		}
	}

	for i, target := range c.Health.HTTPTargets {
		if target.Name == "" || target.URL == "" {
			return fmt.Errorf("health.http_targets[%d]: name and url are required", i)
		}
	}
	for i, target := range c.Health.TCPTargets {
		if target.Name == "" || target.Addr == "" {
			return fmt.Errorf("health.tcp_targets[%d]: name and addr are required", i)
		}
	}

	return nil
}

// RedisOptions builds connection options for one role's identity.
// A role with no configured credentials connects unauthenticated, which is
// only sensible for local development.
func (c *Config) RedisOptions(role policy.Role) *redis.Options {
	creds := c.Redis.Roles[string(role)]
	return &redis.Options{
		Addr:     c.Redis.Addr,
		DB:       c.Redis.DB,
		Username: creds.Username,
		Password: creds.Password,
	}
}

// Duration parses a duration field that Validate has already checked,
// returning fallback for empty values.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
