// Package config loads engine configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/zktransfer/risk-engine/internal/ml"
)

// Config holds service configuration.
type Config struct {
	// Server
	GRPCPort string `yaml:"grpc_port"`
	HTTPPort string `yaml:"http_port"`

	// History backend: "memory" or "redis"
	HistoryBackend string `yaml:"history_backend"`
	RedisURL       string `yaml:"redis_url"`

	// Decision audit log (optional)
	ClickHouseAddr     string `yaml:"clickhouse_addr"`
	ClickHouseDatabase string `yaml:"clickhouse_database"`
	ClickHouseUser     string `yaml:"clickhouse_user"`
	ClickHousePassword string `yaml:"clickhouse_password"`

	// Decision events (optional)
	RabbitMQURL string `yaml:"rabbitmq_url"`

	// Model registry (optional); when unset the file store is used alone.
	DatabaseURL string `yaml:"database_url"`

	// Model artifact on disk
	ModelPath string `yaml:"model_path"`
	// Retrain even if a persisted artifact exists.
	ForceRetrain bool `yaml:"force_retrain"`
	// Optional exported model; when set, inference runs through ONNX
	// instead of the embedded network.
	ONNXModelPath string `yaml:"onnx_model_path"`

	// Reconstruction error expected for borderline-normal inputs.
	Threshold float64 `yaml:"threshold"`

	Corpus ml.CorpusConfig `yaml:"corpus"`
	Train  ml.TrainConfig  `yaml:"train"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		GRPCPort:           "9083",
		HTTPPort:           "8083",
		HistoryBackend:     "memory",
		RedisURL:           "redis://localhost:6379",
		ClickHouseDatabase: "default",
		ModelPath:          "models/risk_model.json",
		Threshold:          ml.DefaultThreshold,
		Corpus:             ml.DefaultCorpusConfig(),
		Train:              ml.DefaultTrainConfig(),
		LogLevel:           "info",
	}
}

// Load reads the YAML file at path (if path is non-empty and the file
// exists) and then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		body, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(body, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.GRPCPort = getEnv("GRPC_PORT", cfg.GRPCPort)
	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.HistoryBackend = getEnv("HISTORY_BACKEND", cfg.HistoryBackend)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.ClickHouseAddr = getEnv("CLICKHOUSE_ADDR", cfg.ClickHouseAddr)
	cfg.ClickHouseDatabase = getEnv("CLICKHOUSE_DATABASE", cfg.ClickHouseDatabase)
	cfg.ClickHouseUser = getEnv("CLICKHOUSE_USER", cfg.ClickHouseUser)
	cfg.ClickHousePassword = getEnv("CLICKHOUSE_PASSWORD", cfg.ClickHousePassword)
	cfg.RabbitMQURL = getEnv("RABBITMQ_URL", cfg.RabbitMQURL)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.ModelPath = getEnv("MODEL_PATH", cfg.ModelPath)
	cfg.ForceRetrain = getEnvBool("FORCE_RETRAIN", cfg.ForceRetrain)
	cfg.ONNXModelPath = getEnv("ONNX_MODEL_PATH", cfg.ONNXModelPath)
	cfg.Threshold = getEnvFloat("RISK_THRESHOLD", cfg.Threshold)
	cfg.Train.Epochs = getEnvInt("TRAIN_EPOCHS", cfg.Train.Epochs)
	cfg.Train.Seed = int64(getEnvInt("TRAIN_SEED", int(cfg.Train.Seed)))
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot start with.
func (c Config) Validate() error {
	if c.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %g", c.Threshold)
	}
	if c.HistoryBackend != "memory" && c.HistoryBackend != "redis" {
		return fmt.Errorf("unknown history backend %q", c.HistoryBackend)
	}
	if c.Corpus.Everyday+c.Corpus.HighValue <= 0 {
		return fmt.Errorf("corpus must contain at least one sample")
	}
	if c.Train.Epochs <= 0 || c.Train.BatchSize <= 0 {
		return fmt.Errorf("invalid training config: epochs=%d batch=%d", c.Train.Epochs, c.Train.BatchSize)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseBool(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return defaultValue
}
