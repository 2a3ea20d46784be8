package engine

import "context"

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	GeminiAPIKey  string
	OllamaBaseURL string
}

// Detect selects the inference backend: the hosted Gemini API when an API key
// is configured, otherwise a local Ollama server.
func Detect(ctx context.Context, cfg DetectConfig) (Engine, error) {
	if cfg.GeminiAPIKey != "" {
		return NewGeminiEngine(ctx, cfg.GeminiAPIKey)
	}
	return NewOllamaEngine(cfg.OllamaBaseURL), nil
}
