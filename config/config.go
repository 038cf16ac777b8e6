// Package config loads and validates the agent's runtime configuration
// (spec §6 "Configuration"). Grounded on the teacher's pkg/config, adapted
// from its consul/etcd/zookeeper multi-backend loader down to the file +
// environment sources this runtime actually needs, but keeping the same
// koanf + mapstructure pipeline.
package config

import (
	"fmt"
	"regexp"
	"strings"
)

// Config is every option the core recognizes (spec §6).
type Config struct {
	AgentName string `yaml:"agent_name" koanf:"agent_name"`
	Namespace string `yaml:"namespace" koanf:"namespace"`

	WorkerPoolSize int `yaml:"worker_pool_size" koanf:"worker_pool_size"`

	TimeoutSweepIntervalMS int `yaml:"timeout_sweep_interval_ms" koanf:"timeout_sweep_interval_ms"`

	LLMRetryMaxAttempts int `yaml:"llm_retry_max_attempts" koanf:"llm_retry_max_attempts"`

	DefaultPeerTimeoutSeconds int `yaml:"default_peer_timeout_seconds" koanf:"default_peer_timeout_seconds"`

	DiscoveryPublishIntervalSeconds int `yaml:"discovery_publish_interval_seconds" koanf:"discovery_publish_interval_seconds"`

	CheckpointBackendURL string `yaml:"checkpoint_backend_url" koanf:"checkpoint_backend_url"`
	CheckpointDialect    string `yaml:"checkpoint_dialect" koanf:"checkpoint_dialect"`

	LogLevel  string `yaml:"log_level" koanf:"log_level"`
	LogFormat string `yaml:"log_format" koanf:"log_format"`

	MetricsAddr string `yaml:"metrics_addr" koanf:"metrics_addr"`
	TracingAddr string `yaml:"tracing_addr" koanf:"tracing_addr"`

	// JWKSUrl, when set, enables the jwx-backed AccessValidator
	// (SPEC_FULL domain stack).
	JWKSUrl string `yaml:"jwks_url" koanf:"jwks_url"`
}

// Defaults matches spec §6's stated defaults.
func Defaults() Config {
	return Config{
		WorkerPoolSize:                  8,
		TimeoutSweepIntervalMS:          1000,
		LLMRetryMaxAttempts:             3,
		DefaultPeerTimeoutSeconds:       300,
		DiscoveryPublishIntervalSeconds: 10,
		LogLevel:                        "info",
		LogFormat:                       "text",
		CheckpointDialect:               "sqlite",
	}
}

var agentNameCharPattern = regexp.MustCompile(`[^A-Za-z0-9_]`)

// SanitizeAgentName replaces characters outside [A-Za-z0-9_] with
// underscore, per spec §6, and reports whether any substitution occurred
// so the caller can warn.
func SanitizeAgentName(name string) (sanitized string, changed bool) {
	sanitized = agentNameCharPattern.ReplaceAllString(name, "_")
	return sanitized, sanitized != name
}

// Validate enforces the required fields and normalizes agent_name,
// returning warnings for non-fatal adjustments (e.g. sanitization).
func (c *Config) Validate() (warnings []string, err error) {
	if strings.TrimSpace(c.AgentName) == "" {
		return nil, fmt.Errorf("config: agent_name is required")
	}
	if strings.TrimSpace(c.Namespace) == "" {
		return nil, fmt.Errorf("config: namespace is required")
	}
	if sanitized, changed := SanitizeAgentName(c.AgentName); changed {
		warnings = append(warnings, fmt.Sprintf("agent_name %q contains invalid characters, sanitized to %q", c.AgentName, sanitized))
		c.AgentName = sanitized
	}
	if c.WorkerPoolSize <= 0 {
		return nil, fmt.Errorf("config: worker_pool_size must be positive, got %d", c.WorkerPoolSize)
	}
	if c.TimeoutSweepIntervalMS <= 0 {
		return nil, fmt.Errorf("config: timeout_sweep_interval_ms must be positive, got %d", c.TimeoutSweepIntervalMS)
	}
	if c.CheckpointBackendURL == "" {
		return nil, fmt.Errorf("config: checkpoint_backend_url is required")
	}
	switch c.CheckpointDialect {
	case "sqlite", "postgres", "mysql":
	default:
		return nil, fmt.Errorf("config: checkpoint_dialect must be one of sqlite, postgres, mysql, got %q", c.CheckpointDialect)
	}
	return warnings, nil
}
