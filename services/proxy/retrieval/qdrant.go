// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/samawellness/voicebridge/services/proxy/datatypes"
)

// QdrantCollection is the collection holding knowledge-base passages.
const QdrantCollection = "wellness_knowledge"

// QdrantIndex implements VectorIndex on a Qdrant instance over gRPC.
//
// Qdrant with cosine distance returns scores already in [0,1] with higher
// meaning more similar, matching the VectorIndex score contract directly.
type QdrantIndex struct {
	client *qdrant.Client
}

// NewQdrantIndex connects to Qdrant and makes sure the passage collection
// exists. vectorSize must match the embedding model's output dimension.
func NewQdrantIndex(host string, port int, vectorSize uint64) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	idx := &QdrantIndex{client: client}
	if err := idx.ensureCollection(context.Background(), vectorSize); err != nil {
		return nil, err
	}
	return idx, nil
}

func (q *QdrantIndex) Name() string { return "qdrant" }

func (q *QdrantIndex) ensureCollection(ctx context.Context, vectorSize uint64) error {
	exists, err := q.client.CollectionExists(ctx, QdrantCollection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", QdrantCollection, err)
	}
	if exists {
		return nil
	}

	slog.Info("Creating qdrant collection", "collection", QdrantCollection, "vectorSize", vectorSize)
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: QdrantCollection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", QdrantCollection, err)
	}
	return nil
}

// Query returns the topK passages nearest to the vector, best first.
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, topK int) ([]datatypes.Passage, error) {
	limit := uint64(topK)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: QdrantCollection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query qdrant: %w", err)
	}

	passages := make([]datatypes.Passage, 0, len(hits))
	for _, hit := range hits {
		payload := hit.GetPayload()
		if payload == nil {
			continue
		}
		passages = append(passages, datatypes.Passage{
			Text:   payload["content"].GetStringValue(),
			Source: payload["source"].GetStringValue(),
			Score:  hit.GetScore(),
		})
	}
	return passages, nil
}

// Upsert writes passages with text-derived point ids so re-ingesting a
// document overwrites its previous chunks.
func (q *QdrantIndex) Upsert(ctx context.Context, passages []datatypes.Passage, vectors [][]float32) error {
	if len(passages) != len(vectors) {
		return fmt.Errorf("passage count %d does not match vector count %d", len(passages), len(vectors))
	}

	points := make([]*qdrant.PointStruct, len(passages))
	for i, p := range passages {
		hash := sha256.Sum256([]byte(p.Text))
		pointUUID, _ := uuid.FromBytes(hash[:16])

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(pointUUID.String()),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]interface{}{
				"content": p.Text,
				"source":  p.Source,
			}),
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: QdrantCollection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert passages: %w", err)
	}
	return nil
}

// Ready checks the instance health over gRPC.
func (q *QdrantIndex) Ready(ctx context.Context) error {
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check failed: %w", err)
	}
	return nil
}
