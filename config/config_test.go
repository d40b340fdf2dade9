package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentbus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, time.Minute, cfg.Breaker.RecoveryTimeout())
	assert.Equal(t, 1000, cfg.Tool.QueueCapacity)
	assert.Equal(t, 30*time.Second, cfg.LLM.CallTimeout())
	assert.Equal(t, 5*time.Second, cfg.Wise.GuidanceTimeout())
	assert.Equal(t, 5*time.Second, cfg.Communication.DrainTimeout())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
circuit_breaker:
  failure_threshold: 2
  recovery_timeout_seconds: 10
llm_bus:
  queue_capacity: 50
  call_timeout_seconds: 120
wise_bus:
  guidance_timeout_seconds: 3
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 10*time.Second, cfg.Breaker.RecoveryTimeout())
	assert.Equal(t, 3, cfg.Breaker.SuccessThreshold, "untouched keys keep defaults")
	assert.Equal(t, 50, cfg.LLM.QueueCapacity)
	assert.Equal(t, 2*time.Minute, cfg.LLM.CallTimeout())
	assert.Equal(t, 1000, cfg.Tool.QueueCapacity)
	assert.Equal(t, 3*time.Second, cfg.Wise.GuidanceTimeout())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"zero failure threshold": "circuit_breaker:\n  failure_threshold: 0\n",
		"zero queue capacity":    "tool_bus:\n  queue_capacity: 0\n",
		"bad log level":          "logging:\n  level: loud\n",
		"bad log format":         "logging:\n  format: xml\n",
		"negative probes":        "circuit_breaker:\n  max_half_open_probes: -1\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "tool_bus: ["))
	assert.Error(t, err)
}
