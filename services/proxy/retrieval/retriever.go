// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval turns a caller's utterance into knowledge-base passages.
//
// The pipeline is embed-then-query: the utterance is embedded once, the
// vector index returns the nearest passages, and anything below the score
// threshold is dropped. Both halves sit behind small interfaces so the
// embedding service and the vector database can be swapped independently
// through configuration.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samawellness/voicebridge/services/proxy/datatypes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("voicebridge.proxy.retrieval")

const (
	// DefaultTopK is the passage count requested per query.
	DefaultTopK = 3
	// DefaultScoreThreshold is the minimum similarity for a passage to be
	// injected into the prompt. Scores are normalized to [0,1] by each
	// index backend before the threshold applies.
	DefaultScoreThreshold = 0.5
	// maxEmbedLength caps the utterance length sent to the embedding
	// service. Voice transcripts can run long on rambling turns.
	maxEmbedLength = 8192
)

// Embedder computes a vector for a piece of text.
type Embedder interface {
	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is the storage half of the retrieval pipeline.
//
// Implementations must normalize scores to [0,1] where higher is more
// similar, so the threshold in Search behaves the same across backends.
type VectorIndex interface {
	// Query returns up to topK passages nearest to the vector, best first.
	Query(ctx context.Context, vector []float32, topK int) ([]datatypes.Passage, error)
	// Upsert writes passages and their vectors to the index. Vector i
	// belongs to passage i.
	Upsert(ctx context.Context, passages []datatypes.Passage, vectors [][]float32) error
	// Ready reports whether the backing store is reachable.
	Ready(ctx context.Context) error
	// Name identifies the backend for logs and health reporting.
	Name() string
}

// Retriever is the knowledge-base search facade used by the chat pipeline.
//
// # Description
//
// Retriever binds an Embedder to a VectorIndex and applies the relevance
// threshold. A nil *Retriever is valid and searches nothing; this is how
// the proxy runs when no vector database is configured.
//
// # Thread Safety
//
// Safe for concurrent use; both halves are stateless per call.
type Retriever struct {
	embedder  Embedder
	index     VectorIndex
	topK      int
	threshold float32
}

// NewRetriever wires an embedder and an index into a search facade.
//
// topK and threshold fall back to the package defaults when out of range.
func NewRetriever(embedder Embedder, index VectorIndex, topK int, threshold float32) *Retriever {
	if topK < 1 {
		slog.Warn("Invalid retrieval topK, using default", "provided", topK, "default", DefaultTopK)
		topK = DefaultTopK
	}
	if threshold < 0 || threshold > 1 {
		slog.Warn("Invalid retrieval score threshold, using default",
			"provided", threshold, "default", DefaultScoreThreshold)
		threshold = DefaultScoreThreshold
	}
	return &Retriever{
		embedder:  embedder,
		index:     index,
		topK:      topK,
		threshold: threshold,
	}
}

// Search returns the passages relevant to the utterance, best first.
//
// # Description
//
// Embeds the utterance, queries the index for the configured topK, and
// drops passages scoring below the threshold or carrying empty text. An
// empty result is normal operation, not an error.
//
// # Inputs
//
//   - ctx: Context for cancellation and deadline; the caller bounds the
//     whole call so a slow vector store cannot stall the voice session.
//   - query: The caller's utterance. Blank queries return no passages.
//
// # Outputs
//
//   - []datatypes.Passage: Relevant passages in descending score order.
//   - error: Non-nil when the embedder or the index failed.
func (r *Retriever) Search(ctx context.Context, query string) ([]datatypes.Passage, error) {
	if r == nil {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "Retriever.Search")
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if len(query) > maxEmbedLength {
		slog.Debug("Truncated query for embedding", "originalLen", len(query), "truncatedLen", maxEmbedLength)
		query = query[:maxEmbedLength]
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := r.index.Query(ctx, vector, r.topK)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	passages := make([]datatypes.Passage, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < r.threshold {
			continue
		}
		if strings.TrimSpace(hit.Text) == "" {
			continue
		}
		passages = append(passages, hit)
	}

	span.SetAttributes(
		attribute.Int("retrieval.hits", len(hits)),
		attribute.Int("retrieval.passages", len(passages)),
		attribute.String("retrieval.backend", r.index.Name()),
	)
	slog.Debug("Knowledge-base search completed",
		"backend", r.index.Name(), "hits", len(hits), "kept", len(passages))
	return passages, nil
}

// Ingest embeds and stores passages in the index. Used by the ingest CLI.
func (r *Retriever) Ingest(ctx context.Context, passages []datatypes.Passage) error {
	if r == nil {
		return fmt.Errorf("retrieval is not configured")
	}
	ctx, span := tracer.Start(ctx, "Retriever.Ingest")
	defer span.End()

	if len(passages) == 0 {
		return nil
	}
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}

	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to embed passages: %w", err)
	}
	if len(vectors) != len(passages) {
		return fmt.Errorf("embedding service returned %d vectors for %d passages", len(vectors), len(passages))
	}

	if err := r.index.Upsert(ctx, passages, vectors); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to store passages: %w", err)
	}
	return nil
}

// Ready reports whether the index behind the retriever is reachable.
// A nil retriever reports an error so health output can show "disabled".
func (r *Retriever) Ready(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("retrieval is not configured")
	}
	return r.index.Ready(ctx)
}

// Backend names the configured index, or "none" for a nil retriever.
func (r *Retriever) Backend() string {
	if r == nil {
		return "none"
	}
	return r.index.Name()
}
