package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "9083", cfg.GRPCPort)
	assert.Equal(t, "8083", cfg.HTTPPort)
	assert.Equal(t, "memory", cfg.HistoryBackend)
	assert.Equal(t, "models/risk_model.json", cfg.ModelPath)
	assert.Equal(t, 0.15, cfg.Threshold)
	assert.Equal(t, 450, cfg.Corpus.Everyday)
	assert.Equal(t, 50, cfg.Corpus.HighValue)
	assert.Equal(t, 100, cfg.Train.Epochs)
	require.NoError(t, cfg.Validate())
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
grpc_port: "7000"
history_backend: redis
redis_url: redis://cache:6379
threshold: 0.2
train:
  epochs: 50
  batch_size: 16
  learning_rate: 0.001
  validation_split: 0.2
  seed: 7
  log_every: 10
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.GRPCPort)
	assert.Equal(t, "redis", cfg.HistoryBackend)
	assert.Equal(t, "redis://cache:6379", cfg.RedisURL)
	assert.Equal(t, 0.2, cfg.Threshold)
	assert.Equal(t, 50, cfg.Train.Epochs)
	assert.Equal(t, int64(7), cfg.Train.Seed)

	// Untouched fields keep their defaults.
	assert.Equal(t, "8083", cfg.HTTPPort)
	assert.Equal(t, 450, cfg.Corpus.Everyday)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GRPC_PORT", "7500")
	t.Setenv("RISK_THRESHOLD", "0.3")
	t.Setenv("TRAIN_EPOCHS", "10")
	t.Setenv("FORCE_RETRAIN", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "7500", cfg.GRPCPort)
	assert.Equal(t, 0.3, cfg.Threshold)
	assert.Equal(t, 10, cfg.Train.Epochs)
	assert.True(t, cfg.ForceRetrain)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_port: \"9000\"\n"), 0o644))
	t.Setenv("HTTP_PORT", "9999")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.HTTPPort)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grpc_port: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero threshold", func(c *Config) { c.Threshold = 0 }},
		{"negative threshold", func(c *Config) { c.Threshold = -0.1 }},
		{"unknown backend", func(c *Config) { c.HistoryBackend = "etcd" }},
		{"empty corpus", func(c *Config) { c.Corpus.Everyday = 0; c.Corpus.HighValue = 0 }},
		{"zero epochs", func(c *Config) { c.Train.Epochs = 0 }},
		{"zero batch size", func(c *Config) { c.Train.BatchSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
