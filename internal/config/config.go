// Package config loads service configuration from defaults, an optional .env
// file, and SAGE_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Engine  EngineConfig
	RAG     RAGConfig
	Jobs    JobsConfig
	Storage StorageConfig
}

type ServerConfig struct {
	Port     int
	Token    string // optional bearer token; empty disables auth
	LogLevel string
}

type EngineConfig struct {
	OllamaURL    string
	ChatModel    string
	EmbedModel   string
	GeminiAPIKey string
}

type RAGConfig struct {
	TopK int
}

type JobsConfig struct {
	Timeout       time.Duration
	Retention     time.Duration
	SweepInterval time.Duration
}

type StorageConfig struct {
	DataDir string
}

const (
	defaultOllamaChatModel  = "llama3.2"
	defaultOllamaEmbedModel = "nomic-embed-text"
	defaultGeminiChatModel  = "gemini-2.5-flash"
	defaultGeminiEmbedModel = "gemini-embedding-001"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:     4000,
			LogLevel: "info",
		},
		Engine: EngineConfig{
			OllamaURL:  "http://localhost:11434",
			ChatModel:  defaultOllamaChatModel,
			EmbedModel: defaultOllamaEmbedModel,
		},
		RAG: RAGConfig{
			TopK: 5,
		},
		Jobs: JobsConfig{
			Timeout:       5 * time.Minute,
			Retention:     time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "sage-data"
		}
	}
	return filepath.Join(dir, "sage")
}

// Load builds the effective configuration: defaults, then a .env file in the
// working directory if one exists, then SAGE_* environment variables.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("config: no .env file loaded", "error", err)
	}

	cfg := defaults()
	applyEnvOverrides(&cfg)

	// GEMINI_API_KEY is the conventional name; honor it as a fallback.
	if cfg.Engine.GeminiAPIKey == "" {
		cfg.Engine.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	resolveModels(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// resolveModels keeps model names in step with the selected backend: names
// left at their Ollama defaults switch to the Gemini equivalents when an API
// key routes inference to Gemini.
func resolveModels(cfg *Config) {
	if cfg.Engine.GeminiAPIKey == "" {
		return
	}
	if cfg.Engine.ChatModel == defaultOllamaChatModel {
		cfg.Engine.ChatModel = defaultGeminiChatModel
	}
	if cfg.Engine.EmbedModel == defaultOllamaEmbedModel {
		cfg.Engine.EmbedModel = defaultGeminiEmbedModel
	}
}

// Validate checks the configuration for values the service cannot start with.
func (c Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Engine.GeminiAPIKey == "" && c.Engine.OllamaURL == "" {
		return fmt.Errorf("engine.ollama_url is required when no Gemini API key is set")
	}
	if c.Engine.ChatModel == "" {
		return fmt.Errorf("engine.chat_model is required")
	}
	if c.Engine.EmbedModel == "" {
		return fmt.Errorf("engine.embed_model is required")
	}
	if c.RAG.TopK < 1 {
		return fmt.Errorf("rag.top_k must be at least 1, got %d", c.RAG.TopK)
	}
	if c.Jobs.Timeout <= 0 {
		return fmt.Errorf("jobs.timeout must be positive, got %s", c.Jobs.Timeout)
	}
	if c.Jobs.Retention <= 0 {
		return fmt.Errorf("jobs.ttl must be positive, got %s", c.Jobs.Retention)
	}
	if c.Jobs.SweepInterval <= 0 {
		return fmt.Errorf("jobs.sweep_interval must be positive, got %s", c.Jobs.SweepInterval)
	}
	return nil
}

// SlogLevel maps the configured level name to a slog level, defaulting to Info.
func (c Config) SlogLevel() slog.Level {
	switch c.Server.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
