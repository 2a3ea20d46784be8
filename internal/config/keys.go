package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "SAGE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "SAGE_SERVER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "server.log_level", typ: kString, env: "SAGE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Server.LogLevel = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.LogLevel },
	},
	{
		key: "engine.ollama_url", typ: kString, env: "SAGE_OLLAMA_URL",
		apply:   func(cfg *Config, v any) { cfg.Engine.OllamaURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.OllamaURL },
	},
	{
		key: "engine.chat_model", typ: kString, env: "SAGE_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Engine.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.ChatModel },
	},
	{
		key: "engine.embed_model", typ: kString, env: "SAGE_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Engine.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.EmbedModel },
	},
	{
		key: "engine.gemini_api_key", typ: kString, env: "SAGE_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Engine.GeminiAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.GeminiAPIKey },
	},
	{
		key: "rag.top_k", typ: kInt, env: "SAGE_RAG_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.RAG.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.RAG.TopK },
	},
	{
		key: "jobs.timeout", typ: kDuration, env: "SAGE_JOBS_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Jobs.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Jobs.Timeout },
	},
	{
		key: "jobs.ttl", typ: kDuration, env: "SAGE_JOBS_TTL",
		apply:   func(cfg *Config, v any) { cfg.Jobs.Retention = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Jobs.Retention },
	},
	{
		key: "jobs.sweep_interval", typ: kDuration, env: "SAGE_JOBS_SWEEP_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Jobs.SweepInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Jobs.SweepInterval },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all non-secret config key/value pairs from cfg.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}
