package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Policy constants for corpus reduction. RelevantContext always chunks with
// these; they are not tunable per request.
const (
	contextChunkSize    = 1000
	contextChunkOverlap = 200
)

// TextEmbedder supplies embedding vectors for ranking. *Embedder satisfies it.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Match pairs a chunk with its similarity score against a query.
type Match struct {
	Chunk *Chunk
	Score float32
}

// FindSimilar scores chunks against the query and returns the top k, ordered
// by descending cosine similarity with ties kept in original chunk order.
// k is clamped to [0, len(chunks)]. Chunk embeddings are memoized on the
// chunks themselves, so ranking the same set again recomputes nothing.
func FindSimilar(ctx context.Context, embedder TextEmbedder, query string, chunks []*Chunk, k int) ([]Match, error) {
	if k < 0 {
		k = 0
	}
	if k > len(chunks) {
		k = len(chunks)
	}
	if k == 0 {
		return nil, nil
	}

	queryVec, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	if err := fillEmbeddings(ctx, embedder, chunks); err != nil {
		return nil, err
	}

	matches := make([]Match, len(chunks))
	for i, c := range chunks {
		matches[i] = Match{Chunk: c, Score: CosineSimilarity(queryVec, c.embedding)}
	}

	// SliceStable keeps equal scores in original chunk order.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches[:k], nil
}

// fillEmbeddings populates the embedding cache of any chunk that is missing
// one, in a single bounded batch.
func fillEmbeddings(ctx context.Context, embedder TextEmbedder, chunks []*Chunk) error {
	var missing []int
	var texts []string
	for i, c := range chunks {
		if c.embedding == nil {
			missing = append(missing, i)
			texts = append(texts, c.Text)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	vecs, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(missing), err)
	}
	for j, i := range missing {
		chunks[i].embedding = vecs[j]
	}
	return nil
}

// RelevantContext reduces a corpus to its k most query-relevant chunks, joined
// by blank lines in ranked order. A corpus that splits into k or fewer chunks
// is returned unchanged without ranking. Any internal failure degrades to
// returning the original corpus instead of failing the request.
func RelevantContext(ctx context.Context, embedder TextEmbedder, corpus, query string, k int) string {
	chunks := SplitText(corpus, contextChunkSize, contextChunkOverlap)
	if len(chunks) <= k {
		return corpus
	}

	matches, err := FindSimilar(ctx, embedder, query, chunks, k)
	if err != nil {
		slog.Warn("context ranking failed, falling back to full corpus", "chunks", len(chunks), "error", err)
		return corpus
	}

	var b strings.Builder
	for i, m := range matches {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Chunk.Text)
	}
	return b.String()
}
