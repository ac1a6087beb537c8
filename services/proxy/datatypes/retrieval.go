// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// Passage is one retrieved knowledge-base excerpt. Produced fresh per
// request by the retrieval adapter and consumed immediately by the prompt
// assembler; never persisted.
type Passage struct {
	Text   string  `json:"text"`
	Score  float32 `json:"score"`
	Source string  `json:"source"`
}

// HealthStatus is the advisory health report returned by GET /health.
// Not consumed by the request pipeline.
type HealthStatus struct {
	Status          string   `json:"status"`
	Inference       string   `json:"inference"`
	InferenceURL    string   `json:"inference_url"`
	ConfiguredModel string   `json:"configured_model"`
	AvailableModels []string `json:"available_models,omitempty"`
	Retrieval       string   `json:"retrieval"`
	ConversationDB  string   `json:"conversation_db"`
}
