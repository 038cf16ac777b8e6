package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeAgentName(t *testing.T) {
	sanitized, changed := SanitizeAgentName("math-agent!")
	assert.True(t, changed)
	assert.Equal(t, "math_agent_", sanitized)

	sanitized, changed = SanitizeAgentName("math_agent_1")
	assert.False(t, changed)
	assert.Equal(t, "math_agent_1", sanitized)
}

func TestConfigValidate_RequiresAgentName(t *testing.T) {
	cfg := Defaults()
	cfg.Namespace = "acme"
	cfg.CheckpointBackendURL = "sqlite://sam.db"

	_, err := cfg.Validate()
	require.Error(t, err)
}

func TestConfigValidate_RequiresNamespace(t *testing.T) {
	cfg := Defaults()
	cfg.AgentName = "math"
	cfg.CheckpointBackendURL = "sqlite://sam.db"

	_, err := cfg.Validate()
	require.Error(t, err)
}

func TestConfigValidate_SanitizesAgentNameAndWarns(t *testing.T) {
	cfg := Defaults()
	cfg.AgentName = "math-agent"
	cfg.Namespace = "acme"
	cfg.CheckpointBackendURL = "sqlite://sam.db"

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "math_agent", cfg.AgentName)
}

func TestConfigValidate_RejectsUnknownDialect(t *testing.T) {
	cfg := Defaults()
	cfg.AgentName = "math"
	cfg.Namespace = "acme"
	cfg.CheckpointBackendURL = "sqlite://sam.db"
	cfg.CheckpointDialect = "oracle"

	_, err := cfg.Validate()
	require.Error(t, err)
}

func TestConfigValidate_RejectsNonPositivePoolSize(t *testing.T) {
	cfg := Defaults()
	cfg.AgentName = "math"
	cfg.Namespace = "acme"
	cfg.CheckpointBackendURL = "sqlite://sam.db"
	cfg.WorkerPoolSize = 0

	_, err := cfg.Validate()
	require.Error(t, err)
}

func TestConfigValidate_AcceptsWellFormedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.AgentName = "math"
	cfg.Namespace = "acme"
	cfg.CheckpointBackendURL = "sqlite://sam.db"

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.Empty(t, warnings)
}
