// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/samawellness/voicebridge/services/proxy/datatypes"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

const (
	defaultEmbeddingModel  = "nomic-embed-text"
	defaultQdrantPort      = 6334
	defaultVectorDimension = 768
)

// NewFromEnv builds the retriever described by the environment, or nil
// when no vector backend is configured.
//
// # Description
//
// Reads VECTOR_BACKEND ("weaviate", "qdrant", or empty) and the matching
// connection variables, plus EMBEDDING_BACKEND ("ollama" or "openai") and
// RETRIEVAL_TOP_K / RETRIEVAL_SCORE_THRESHOLD overrides. A nil return with
// nil error means retrieval is intentionally disabled and the proxy runs
// in lightweight mode (chat only, no knowledge-base context).
//
// # Outputs
//
//   - *Retriever: The configured retriever, or nil when disabled.
//   - error: Non-nil when a backend was requested but could not be built.
func NewFromEnv(ctx context.Context) (*Retriever, error) {
	backend := strings.TrimSpace(os.Getenv("VECTOR_BACKEND"))
	if backend == "" {
		slog.Info("VECTOR_BACKEND not set. Running in lightweight mode (chat only).")
		return nil, nil
	}

	embedder, err := newEmbedderFromEnv()
	if err != nil {
		return nil, err
	}

	var index VectorIndex
	switch backend {
	case "weaviate":
		index, err = newWeaviateFromEnv(ctx)
	case "qdrant":
		index, err = newQdrantFromEnv()
	default:
		return nil, fmt.Errorf("unknown VECTOR_BACKEND %q (expected weaviate or qdrant)", backend)
	}
	if err != nil {
		return nil, err
	}

	topK := envInt("RETRIEVAL_TOP_K", DefaultTopK)
	threshold := envFloat("RETRIEVAL_SCORE_THRESHOLD", DefaultScoreThreshold)
	return NewRetriever(embedder, index, topK, threshold), nil
}

func newEmbedderFromEnv() (Embedder, error) {
	model := os.Getenv("EMBEDDING_MODEL_NAME")
	if model == "" {
		slog.Warn("EMBEDDING_MODEL_NAME is not set, defaulting", "default", defaultEmbeddingModel)
		model = defaultEmbeddingModel
	}

	switch backend := os.Getenv("EMBEDDING_BACKEND"); backend {
	case "", "ollama":
		baseURL := os.Getenv("OLLAMA_SERVICE_URL")
		if baseURL == "" {
			slog.Warn("OLLAMA_SERVICE_URL is not set, defaulting to http://localhost:11434")
			baseURL = "http://localhost:11434"
		}
		return NewOllamaEmbedder(baseURL, model), nil
	case "openai":
		baseURL := os.Getenv("EMBEDDING_SERVICE_URL")
		if baseURL == "" {
			return nil, fmt.Errorf("EMBEDDING_BACKEND=openai requires EMBEDDING_SERVICE_URL")
		}
		apiKey := os.Getenv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = "not-needed"
		}
		return NewOpenAIEmbedder(baseURL, apiKey, model), nil
	default:
		return nil, fmt.Errorf("unknown EMBEDDING_BACKEND %q (expected ollama or openai)", backend)
	}
}

func newWeaviateFromEnv(ctx context.Context) (VectorIndex, error) {
	raw := strings.Trim(os.Getenv("WEAVIATE_SERVICE_URL"), "\"' ")
	if raw == "" || !strings.Contains(raw, "http") {
		return nil, fmt.Errorf("VECTOR_BACKEND=weaviate requires a valid WEAVIATE_SERVICE_URL")
	}

	parsedURL, err := url.Parse(raw)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("WEAVIATE_SERVICE_URL %q is invalid: %w", raw, err)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}
	if err := datatypes.EnsureWeaviateSchema(ctx, client); err != nil {
		return nil, err
	}
	return NewWeaviateIndex(client), nil
}

func newQdrantFromEnv() (VectorIndex, error) {
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		slog.Warn("QDRANT_HOST is not set, defaulting to localhost")
		host = "localhost"
	}
	port := envInt("QDRANT_PORT", defaultQdrantPort)
	dimension := envInt("EMBEDDING_DIMENSION", defaultVectorDimension)
	return NewQdrantIndex(host, port, uint64(dimension))
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

func envFloat(key string, fallback float32) float32 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		slog.Warn("Invalid float in environment, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return float32(v)
}
