// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// KnowledgePassageClass is the Weaviate class holding knowledge-base chunks.
const KnowledgePassageClass = "KnowledgePassage"

// GetKnowledgePassageSchema returns the class definition for the
// knowledge base. Vectors are supplied by the proxy's own embedder, so
// the class vectorizer is disabled.
func GetKnowledgePassageSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       KnowledgePassageClass,
		Description: "A chunk of wellness knowledge-base content with its source document.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The passage text injected into prompts.",
				Tokenization: "word",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "The document the passage was chunked from.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
		},
	}
}

// EnsureWeaviateSchema creates the knowledge-base class if it is missing.
//
// # Description
//
// Checks for the class and creates it when absent. Called once at startup;
// an unreachable Weaviate is reported as an error so the caller can fall
// back to running without retrieval instead of crashing.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - client: Connected Weaviate client.
//
// # Outputs
//
//   - error: Non-nil if the class could not be verified or created.
func EnsureWeaviateSchema(ctx context.Context, client *weaviate.Client) error {
	class := GetKnowledgePassageSchema()

	_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx)
	if err == nil {
		slog.Info("Schema already exists", "class", class.Class)
		return nil
	}

	slog.Info("Schema not found, creating it", "class", class.Class)
	if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create schema for class %s: %w", class.Class, err)
	}
	slog.Info("Successfully created schema", "class", class.Class)
	return nil
}

// KnowledgeQueryResponse is the typed shape of a KnowledgePassage
// near-vector query. Field names must match the GraphQL response exactly.
type KnowledgeQueryResponse struct {
	Get struct {
		KnowledgePassage []struct {
			Content    string `json:"content"`
			Source     string `json:"source"`
			Additional struct {
				Certainty float64 `json:"certainty"`
			} `json:"_additional"`
		} `json:"KnowledgePassage"`
	} `json:"Get"`
}

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target
// type via the marshal/unmarshal round trip the client requires for its
// dynamic response maps. Type mismatches yield zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("GraphQL query returned error: %s", resp.Errors[0].Message)
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}
	return &result, nil
}
