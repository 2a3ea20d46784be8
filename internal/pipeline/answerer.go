// Package pipeline answers study questions over submitted material and runs
// each request as a tracked asynchronous job.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sagelearn/sage/internal/composer"
	"github.com/sagelearn/sage/internal/engine"
	"github.com/sagelearn/sage/internal/insight"
	"github.com/sagelearn/sage/internal/retrieval"
)

// ErrUpstreamModel marks language-model failures, including empty completions.
var ErrUpstreamModel = errors.New("upstream model failure")

// Progress milestones reported as stages start. The model call holds the last
// milestone; completion moves the job to 100 in a single jump.
const (
	progressAnalyzing  = 10
	progressRetrieving = 30
)

// Request is one question together with the study material to answer it from.
type Request struct {
	Question     string
	Context      string
	WeakConcepts []string
}

// ProgressFunc receives stage updates while a request is being answered.
type ProgressFunc func(progress int, message string)

// Answerer runs the answer pipeline: insight extraction, context ranking,
// prompt composition, and the chat-model call.
type Answerer struct {
	engine    engine.Engine
	embedder  *retrieval.Embedder
	extractor insight.Extractor
	chatModel string
	topK      int
}

// NewAnswerer creates an Answerer wired to all pipeline components.
// topK controls how many context chunks are kept (default 5 if <= 0).
func NewAnswerer(eng engine.Engine, embedder *retrieval.Embedder, extractor insight.Extractor, chatModel string, topK int) *Answerer {
	if topK <= 0 {
		topK = 5
	}
	return &Answerer{
		engine:    eng,
		embedder:  embedder,
		extractor: extractor,
		chatModel: chatModel,
		topK:      topK,
	}
}

// Answer runs the full pipeline on one request:
//  1. Extract difficulty and progress signals from the study material
//  2. Reduce the material to the chunks most relevant to the question
//  3. Compose the tutor prompt and call the chat model
//  4. Parse the completion into answer, citations, and themes
//
// Embedding initialization failure aborts the request; ranking failures do
// not, the pipeline falls back to the full material instead. Model-call
// failures and empty completions abort with ErrUpstreamModel.
func (a *Answerer) Answer(ctx context.Context, req Request, report ProgressFunc) (composer.Parsed, error) {
	if report == nil {
		report = func(int, string) {}
	}

	// 1. Learning signals from the raw material.
	report(progressAnalyzing, "analyzing study material")
	stats := a.extractor.Extract(req.Context)

	if err := a.embedder.EnsureReady(ctx); err != nil {
		return composer.Parsed{}, fmt.Errorf("preparing embedding model: %w", err)
	}

	// 2. Rank the material against the question.
	report(progressRetrieving, "finding relevant content")
	relevant := retrieval.RelevantContext(ctx, a.embedder, req.Context, req.Question, a.topK)

	// 3. Compose and query.
	prompt := composer.BuildPrompt(req.Question, relevant, stats, req.WeakConcepts)
	report(progressRetrieving, "generating answer")
	completion, err := a.engine.Chat(ctx, a.chatModel, []engine.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return composer.Parsed{}, fmt.Errorf("%w: %w", ErrUpstreamModel, err)
	}
	if strings.TrimSpace(completion) == "" {
		return composer.Parsed{}, fmt.Errorf("%w: model returned an empty completion", ErrUpstreamModel)
	}

	// 4. Structure the result.
	return composer.ParseResponse(completion, relevant), nil
}
