package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Should return validated defaults when no file or env is present", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "./data", cfg.Runtime.DataDir)
		assert.Equal(t, 30*time.Second, cfg.Runtime.LoopInterval)
		assert.Equal(t, 100.0, cfg.Budget.MonthlyCapUSD)
		assert.Equal(t, 10, cfg.Memory.RetrievalCount)
		assert.Equal(t, "https://api.x.ai/v1", cfg.Providers.GrokBaseURL)
	})

	t.Run("Should overlay values from a YAML file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "aion.yaml")
		content := "runtime:\n  data_dir: /tmp/aion\nbudget:\n  monthly_cap_usd: 25\nlog:\n  level: debug\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "/tmp/aion", cfg.Runtime.DataDir)
		assert.Equal(t, 25.0, cfg.Budget.MonthlyCapUSD)
		assert.Equal(t, "debug", cfg.Log.Level)
		// Untouched keys keep their defaults.
		assert.Equal(t, 30*time.Second, cfg.Runtime.LoopInterval)
	})

	t.Run("Should overlay environment variables over file values", func(t *testing.T) {
		t.Setenv("AION_RUNTIME__DATA_DIR", "/tmp/env-aion")
		t.Setenv("AION_BUDGET__MONTHLY_CAP_USD", "7.5")
		t.Setenv("AION_PROVIDERS__OPENAI_API_KEY", "sk-test")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "/tmp/env-aion", cfg.Runtime.DataDir)
		assert.Equal(t, 7.5, cfg.Budget.MonthlyCapUSD)
		assert.Equal(t, "sk-test", cfg.Providers.OpenAIAPIKey.String())
	})

	t.Run("Should fail when an explicit config file is missing", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("Should reject an invalid log level", func(t *testing.T) {
		t.Setenv("AION_LOG__LEVEL", "loud")
		_, err := Load("")
		assert.Error(t, err)
	})
}

func TestSensitiveString(t *testing.T) {
	t.Run("Should expose the raw value only through String", func(t *testing.T) {
		s := SensitiveString("super-secret")
		assert.Equal(t, "super-secret", s.String())
		assert.True(t, s.IsSet())
	})

	t.Run("Should redact in JSON output", func(t *testing.T) {
		payload, err := json.Marshal(struct {
			Key SensitiveString `json:"key"`
		}{Key: "super-secret"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"key":"[REDACTED]"}`, string(payload))
	})

	t.Run("Should redact under fmt verbs", func(t *testing.T) {
		s := SensitiveString("super-secret")
		assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
		assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", s))
		assert.Equal(t, `"[REDACTED]"`, fmt.Sprintf("%q", s))
	})

	t.Run("Should round-trip the raw value through UnmarshalJSON", func(t *testing.T) {
		var s SensitiveString
		require.NoError(t, json.Unmarshal([]byte(`"abc123"`), &s))
		assert.Equal(t, "abc123", s.String())
	})
}

func TestDatabasePath(t *testing.T) {
	t.Run("Should default under the data dir", func(t *testing.T) {
		cfg := Default()
		cfg.Runtime.DataDir = "/srv/aion"
		assert.Equal(t, filepath.Join("/srv/aion", "aion.db"), cfg.DatabasePath())
	})

	t.Run("Should honor an explicit database path", func(t *testing.T) {
		cfg := Default()
		cfg.Database.Path = "/elsewhere/state.db"
		assert.Equal(t, "/elsewhere/state.db", cfg.DatabasePath())
	})
}
