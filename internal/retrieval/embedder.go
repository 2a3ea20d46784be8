package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sagelearn/sage/internal/engine"
)

// ErrEmbeddingUnavailable marks failures of the embedding model to initialize
// or infer. Jobs hitting it fail outright; a zero vector is never substituted.
var ErrEmbeddingUnavailable = errors.New("embedding model unavailable")

// probeText is embedded once during initialization to verify the model
// responds and to pin the vector dimensionality.
const probeText = "readiness probe"

// Embedder wraps an Engine to generate unit-normalized text embeddings.
// The underlying model is readied lazily, exactly once per process: concurrent
// first callers share a single initialization through a singleflight group.
type Embedder struct {
	engine engine.Engine
	model  string

	init singleflight.Group

	mu    sync.RWMutex
	ready bool
	dims  int
}

// NewEmbedder creates an Embedder using the given Engine and model name.
func NewEmbedder(e engine.Engine, model string) *Embedder {
	return &Embedder{engine: e, model: model}
}

// EnsureReady initializes the embedding model if it hasn't been yet.
// Safe for concurrent use; a failed attempt may be retried by a later call.
func (e *Embedder) EnsureReady(ctx context.Context) error {
	if e.Ready() {
		return nil
	}

	_, err, _ := e.init.Do("init", func() (any, error) {
		if e.Ready() {
			return nil, nil
		}

		vec, err := e.engine.Embed(ctx, e.model, probeText)
		if err != nil {
			return nil, fmt.Errorf("%w: initializing model %s: %w", ErrEmbeddingUnavailable, e.model, err)
		}
		if len(vec) == 0 {
			return nil, fmt.Errorf("%w: model %s returned an empty vector", ErrEmbeddingUnavailable, e.model)
		}

		e.mu.Lock()
		e.ready = true
		e.dims = len(vec)
		e.mu.Unlock()
		return nil, nil
	})
	return err
}

// Ready reports whether the embedding model finished initializing.
func (e *Embedder) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready
}

// Dimensions returns the pinned vector dimensionality, 0 before initialization.
func (e *Embedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// Embed returns the unit-normalized embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.EnsureReady(ctx); err != nil {
		return nil, err
	}

	vec, err := e.engine.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding text: %w", ErrEmbeddingUnavailable, err)
	}
	if err := e.checkDims(vec); err != nil {
		return nil, err
	}
	return Normalize(vec), nil
}

// EmbedBatch returns unit-normalized vectors for multiple texts, in input
// order. The engine sees one call per text (no true batching); calls are
// fanned out with bounded concurrency. Returns nil (not error) for empty input.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := e.EnsureReady(ctx); err != nil {
		return nil, err
	}

	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // at most four in-flight engine calls

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.engine.Embed(gCtx, e.model, text)
			if err != nil {
				return fmt.Errorf("%w: embedding text %d: %w", ErrEmbeddingUnavailable, i, err)
			}
			if err := e.checkDims(vec); err != nil {
				return err
			}
			results[i] = Normalize(vec)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// checkDims verifies the vector matches the dimensionality pinned at
// initialization. A drifting model is treated as unavailable.
func (e *Embedder) checkDims(vec []float32) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.dims != 0 && len(vec) != e.dims {
		return fmt.Errorf("%w: got %d dimensions, want %d", ErrEmbeddingUnavailable, len(vec), e.dims)
	}
	return nil
}
