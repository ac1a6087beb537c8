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

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/samawellness/voicebridge/services/proxy/datatypes"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// WeaviateIndex implements VectorIndex on a Weaviate instance.
//
// # Description
//
// Stores knowledge-base passages in the KnowledgePassage class and queries
// them with a near-vector search. Certainty is requested instead of raw
// distance because it is always normalized to [0,1] regardless of the
// distance metric, which is what the threshold contract requires.
//
// # Thread Safety
//
// Safe for concurrent use. The Weaviate client pools connections.
type WeaviateIndex struct {
	client *weaviate.Client
}

// NewWeaviateIndex wraps a connected client. The caller is responsible for
// running datatypes.EnsureWeaviateSchema before first use.
func NewWeaviateIndex(client *weaviate.Client) *WeaviateIndex {
	return &WeaviateIndex{client: client}
}

func (w *WeaviateIndex) Name() string { return "weaviate" }

// Query returns the topK passages nearest to the vector, best first.
func (w *WeaviateIndex) Query(ctx context.Context, vector []float32, topK int) ([]datatypes.Passage, error) {
	nearVector := w.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	result, err := w.client.GraphQL().Get().
		WithClassName(datatypes.KnowledgePassageClass).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.KnowledgeQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	passages := make([]datatypes.Passage, 0, len(parsed.Get.KnowledgePassage))
	for _, hit := range parsed.Get.KnowledgePassage {
		passages = append(passages, datatypes.Passage{
			Text:   hit.Content,
			Source: hit.Source,
			Score:  float32(hit.Additional.Certainty),
		})
	}
	return passages, nil
}

// Upsert writes passages in one batch. Object ids are derived from the
// passage text so re-ingesting the same document overwrites instead of
// duplicating.
func (w *WeaviateIndex) Upsert(ctx context.Context, passages []datatypes.Passage, vectors [][]float32) error {
	if len(passages) != len(vectors) {
		return fmt.Errorf("passage count %d does not match vector count %d", len(passages), len(vectors))
	}

	objects := make([]*models.Object, len(passages))
	for i, p := range passages {
		hash := sha256.Sum256([]byte(p.Text))
		docUUID, _ := uuid.FromBytes(hash[:16])

		objects[i] = &models.Object{
			Class:  datatypes.KnowledgePassageClass,
			ID:     strfmt.UUID(docUUID.String()),
			Vector: vectors[i],
			Properties: map[string]interface{}{
				"content": p.Text,
				"source":  p.Source,
			},
		}
	}

	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to batch import passages: %w", err)
	}
	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch import item failed: %s", item.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

// Ready checks the instance's readiness endpoint.
func (w *WeaviateIndex) Ready(ctx context.Context) error {
	ready, err := w.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate readiness check failed: %w", err)
	}
	if !ready {
		return fmt.Errorf("weaviate is not ready")
	}
	return nil
}
