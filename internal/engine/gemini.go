package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

const geminiAttempts = 3

// GeminiEngine serves chat and embedding through the hosted Gemini API.
// There is no local process to manage, so the model-management operations
// degrade to no-ops: models are assumed available and never pulled.
type GeminiEngine struct {
	client *genai.Client
	logger *slog.Logger
}

// NewGeminiEngine creates a GeminiEngine authenticated with apiKey.
func NewGeminiEngine(ctx context.Context, apiKey string) (*GeminiEngine, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiEngine{client: client, logger: slog.Default()}, nil
}

func (e *GeminiEngine) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	var system *genai.Content
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = genai.NewContentFromText(m.Content, genai.RoleUser)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	var cfg *genai.GenerateContentConfig
	if system != nil {
		cfg = &genai.GenerateContentConfig{SystemInstruction: system}
	}

	var lastErr error
	for attempt := 0; attempt < geminiAttempts; attempt++ {
		if attempt > 0 {
			if err := backoff(ctx, attempt); err != nil {
				return "", err
			}
		}

		resp, err := e.client.Models.GenerateContent(ctx, model, contents, cfg)
		if err != nil {
			lastErr = err
			if retryable(err) {
				e.logger.Warn("gemini chat throttled, retrying", "model", model, "attempt", attempt+1)
				continue
			}
			return "", fmt.Errorf("gemini chat: %w", err)
		}
		return resp.Text(), nil
	}
	return "", fmt.Errorf("gemini chat after %d attempts: %w", geminiAttempts, lastErr)
}

func (e *GeminiEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt < geminiAttempts; attempt++ {
		if attempt > 0 {
			if err := backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		resp, err := e.client.Models.EmbedContent(ctx, model,
			[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, nil)
		if err != nil {
			lastErr = err
			if retryable(err) {
				e.logger.Warn("gemini embed throttled, retrying", "model", model, "attempt", attempt+1)
				continue
			}
			return nil, fmt.Errorf("gemini embed: %w", err)
		}
		if len(resp.Embeddings) == 0 {
			return nil, errors.New("gemini embed: empty embeddings response")
		}
		return resp.Embeddings[0].Values, nil
	}
	return nil, fmt.Errorf("gemini embed after %d attempts: %w", geminiAttempts, lastErr)
}

// IsRunning always reports true: the hosted API has no local process to
// probe, and reachability problems surface on the first real call.
func (e *GeminiEngine) IsRunning(ctx context.Context) bool {
	return e.client != nil
}

// ListModels is not supported for the hosted backend.
func (e *GeminiEngine) ListModels(ctx context.Context) ([]string, error) {
	return nil, errors.New("model listing is not available for the hosted gemini backend")
}

// HasModel assumes any requested model exists; a wrong name fails on use.
func (e *GeminiEngine) HasModel(ctx context.Context, name string) bool {
	return true
}

// PullModel is a no-op: hosted models are never downloaded.
func (e *GeminiEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	if onProgress != nil {
		onProgress(PullProgress{Status: "hosted model, nothing to pull"})
	}
	return nil
}

// retryable reports whether the error is a quota or rate-limit rejection
// worth backing off on.
func retryable(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

func backoff(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(1<<attempt) * time.Second):
		return nil
	}
}
