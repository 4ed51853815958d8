package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/docuchat-backend/internal/logger"
	"github.com/yungbote/docuchat-backend/internal/utils"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Storage   StorageConfig   `yaml:"storage"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	History   HistoryConfig   `yaml:"history"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Name)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
}

type OpenAIConfig struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	EmbedModel     string `yaml:"embed_model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

type QdrantConfig struct {
	URL       string `yaml:"url"`
	VectorDim int    `yaml:"vector_dim"`
}

type StorageConfig struct {
	Bucket string `yaml:"bucket"`
}

type IngestConfig struct {
	ChunkSize           int `yaml:"chunk_size"`
	ChunkOverlap        int `yaml:"chunk_overlap"`
	Concurrency         int `yaml:"concurrency"`
	MaxAttempts         int `yaml:"max_attempts"`
	RetryDelaySeconds   int `yaml:"retry_delay_seconds"`
	StaleRunningSeconds int `yaml:"stale_running_seconds"`
	MaxUploadBytes      int `yaml:"max_upload_bytes"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

type HistoryConfig struct {
	Limit int `yaml:"limit"`
}

// Load reads the optional yaml file at CONFIG_PATH, then applies
// environment overrides on top. Every knob has a usable default so the
// service boots with nothing but OPENAI_API_KEY set.
func Load(log *logger.Logger) (*Config, error) {
	cfg := &Config{}

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
		if log != nil {
			log.Info("Loaded config file", "path", path)
		}
	}

	cfg.Server.Port = utils.GetEnv("PORT", def(cfg.Server.Port, "8080"), log)

	cfg.Postgres.Host = utils.GetEnv("POSTGRES_HOST", def(cfg.Postgres.Host, "localhost"), log)
	cfg.Postgres.Port = utils.GetEnv("POSTGRES_PORT", def(cfg.Postgres.Port, "5432"), log)
	cfg.Postgres.User = utils.GetEnv("POSTGRES_USER", def(cfg.Postgres.User, "postgres"), log)
	cfg.Postgres.Password = utils.GetEnv("POSTGRES_PASSWORD", cfg.Postgres.Password, nil)
	cfg.Postgres.Name = utils.GetEnv("POSTGRES_NAME", def(cfg.Postgres.Name, "docuchat"), log)

	cfg.Redis.Addr = utils.GetEnv("REDIS_ADDR", cfg.Redis.Addr, log)
	cfg.Redis.Password = utils.GetEnv("REDIS_PASSWORD", cfg.Redis.Password, nil)

	cfg.OpenAI.BaseURL = utils.GetEnv("OPENAI_BASE_URL", def(cfg.OpenAI.BaseURL, "https://api.openai.com"), log)
	cfg.OpenAI.Model = utils.GetEnv("OPENAI_MODEL", def(cfg.OpenAI.Model, "gpt-4o-mini"), log)
	cfg.OpenAI.EmbedModel = utils.GetEnv("OPENAI_EMBED_MODEL", def(cfg.OpenAI.EmbedModel, "text-embedding-3-small"), log)
	cfg.OpenAI.TimeoutSeconds = utils.GetEnvAsInt("OPENAI_TIMEOUT_SECONDS", defInt(cfg.OpenAI.TimeoutSeconds, 180), log)
	cfg.OpenAI.MaxRetries = utils.GetEnvAsInt("OPENAI_MAX_RETRIES", defInt(cfg.OpenAI.MaxRetries, 4), log)

	cfg.Qdrant.URL = utils.GetEnv("QDRANT_URL", def(cfg.Qdrant.URL, "http://localhost:6333"), log)
	cfg.Qdrant.VectorDim = utils.GetEnvAsInt("QDRANT_VECTOR_DIM", defInt(cfg.Qdrant.VectorDim, 1536), log)

	cfg.Storage.Bucket = utils.GetEnv("GCS_BUCKET_NAME", cfg.Storage.Bucket, log)

	cfg.Ingest.ChunkSize = utils.GetEnvAsInt("INGEST_CHUNK_SIZE", defInt(cfg.Ingest.ChunkSize, 1000), log)
	cfg.Ingest.ChunkOverlap = utils.GetEnvAsInt("INGEST_CHUNK_OVERLAP", defInt(cfg.Ingest.ChunkOverlap, 200), log)
	cfg.Ingest.Concurrency = utils.GetEnvAsInt("INGEST_CONCURRENCY", defInt(cfg.Ingest.Concurrency, 8), log)
	cfg.Ingest.MaxAttempts = utils.GetEnvAsInt("INGEST_MAX_ATTEMPTS", defInt(cfg.Ingest.MaxAttempts, 5), log)
	cfg.Ingest.RetryDelaySeconds = utils.GetEnvAsInt("INGEST_RETRY_DELAY_SECONDS", defInt(cfg.Ingest.RetryDelaySeconds, 30), log)
	cfg.Ingest.StaleRunningSeconds = utils.GetEnvAsInt("INGEST_STALE_RUNNING_SECONDS", defInt(cfg.Ingest.StaleRunningSeconds, 120), log)
	cfg.Ingest.MaxUploadBytes = utils.GetEnvAsInt("INGEST_MAX_UPLOAD_BYTES", defInt(cfg.Ingest.MaxUploadBytes, 10*1024*1024), log)

	cfg.Retrieval.TopK = utils.GetEnvAsInt("RETRIEVAL_TOP_K", defInt(cfg.Retrieval.TopK, 4), log)
	cfg.History.Limit = utils.GetEnvAsInt("HISTORY_LIMIT", defInt(cfg.History.Limit, 10), log)

	return cfg, nil
}

func def(current, fallback string) string {
	if current != "" {
		return current
	}
	return fallback
}

func defInt(current, fallback int) int {
	if current != 0 {
		return current
	}
	return fallback
}
