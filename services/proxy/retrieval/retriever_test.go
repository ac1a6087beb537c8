// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/samawellness/voicebridge/services/proxy/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type mockEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	return m.vector, m.err
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = m.vector
	}
	return out, nil
}

type mockIndex struct {
	hits     []datatypes.Passage
	err      error
	upserted []datatypes.Passage
	lastTopK int
}

func (m *mockIndex) Query(ctx context.Context, vector []float32, topK int) ([]datatypes.Passage, error) {
	m.lastTopK = topK
	return m.hits, m.err
}

func (m *mockIndex) Upsert(ctx context.Context, passages []datatypes.Passage, vectors [][]float32) error {
	m.upserted = append(m.upserted, passages...)
	return m.err
}

func (m *mockIndex) Ready(ctx context.Context) error { return m.err }
func (m *mockIndex) Name() string                    { return "mock" }

// --- Tests ---

func TestSearchFiltersByThreshold(t *testing.T) {
	index := &mockIndex{hits: []datatypes.Passage{
		{Text: "strong match", Score: 0.92},
		{Text: "borderline match", Score: 0.5},
		{Text: "weak match", Score: 0.49},
	}}
	r := NewRetriever(&mockEmbedder{vector: []float32{0.1}}, index, 3, 0.5)

	passages, err := r.Search(context.Background(), "how do I sleep better")
	require.NoError(t, err)

	require.Len(t, passages, 2, "only passages at or above the threshold survive")
	assert.Equal(t, "strong match", passages[0].Text)
	assert.Equal(t, "borderline match", passages[1].Text)
}

func TestSearchDropsEmptyPassages(t *testing.T) {
	index := &mockIndex{hits: []datatypes.Passage{
		{Text: "   ", Score: 0.9},
		{Text: "real content", Score: 0.8},
	}}
	r := NewRetriever(&mockEmbedder{vector: []float32{0.1}}, index, 3, 0.5)

	passages, err := r.Search(context.Background(), "anything")
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "real content", passages[0].Text)
}

func TestSearchBlankQuerySkipsPipeline(t *testing.T) {
	embedder := &mockEmbedder{vector: []float32{0.1}}
	r := NewRetriever(embedder, &mockIndex{}, 3, 0.5)

	passages, err := r.Search(context.Background(), "   \n ")
	require.NoError(t, err)
	assert.Empty(t, passages)
	assert.Zero(t, embedder.calls, "blank queries must not reach the embedder")
}

func TestSearchNilRetrieverIsNoop(t *testing.T) {
	var r *Retriever

	passages, err := r.Search(context.Background(), "hello")
	assert.NoError(t, err)
	assert.Nil(t, passages)
	assert.Equal(t, "none", r.Backend())
	assert.Error(t, r.Ready(context.Background()))
}

func TestSearchPropagatesEmbedderError(t *testing.T) {
	r := NewRetriever(&mockEmbedder{err: errors.New("embed service down")}, &mockIndex{}, 3, 0.5)

	_, err := r.Search(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to embed query")
}

func TestSearchPropagatesIndexError(t *testing.T) {
	index := &mockIndex{err: errors.New("connection refused")}
	r := NewRetriever(&mockEmbedder{vector: []float32{0.1}}, index, 3, 0.5)

	_, err := r.Search(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector search failed")
}

func TestSearchUsesConfiguredTopK(t *testing.T) {
	index := &mockIndex{}
	r := NewRetriever(&mockEmbedder{vector: []float32{0.1}}, index, 7, 0.5)

	_, err := r.Search(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, 7, index.lastTopK)
}

func TestNewRetrieverCorrectsInvalidConfig(t *testing.T) {
	index := &mockIndex{}
	r := NewRetriever(&mockEmbedder{vector: []float32{0.1}}, index, 0, 1.5)

	_, err := r.Search(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, index.lastTopK)
	assert.Equal(t, float32(DefaultScoreThreshold), r.threshold)
}

func TestIngestEmbedsAndUpserts(t *testing.T) {
	index := &mockIndex{}
	r := NewRetriever(&mockEmbedder{vector: []float32{0.1, 0.2}}, index, 3, 0.5)

	passages := []datatypes.Passage{
		{Text: "chunk one", Source: "guide.md"},
		{Text: "chunk two", Source: "guide.md"},
	}
	require.NoError(t, r.Ingest(context.Background(), passages))
	assert.Equal(t, passages, index.upserted)
}

func TestIngestNilRetrieverFails(t *testing.T) {
	var r *Retriever
	assert.Error(t, r.Ingest(context.Background(), []datatypes.Passage{{Text: "x"}}))
}
