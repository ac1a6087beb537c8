// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/samawellness/voicebridge/services/inference"
	"github.com/samawellness/voicebridge/services/proxy/conversation"
	"github.com/samawellness/voicebridge/services/proxy/datatypes"
	"github.com/samawellness/voicebridge/services/proxy/retrieval"
)

const healthProbeTimeout = 3 * time.Second

// HealthHandler reports the reachability of every dependency the proxy
// needs for a full-featured call.
type HealthHandler struct {
	store     *conversation.Store
	retriever *retrieval.Retriever
	llm       *inference.Client
}

// NewHealthHandler creates the health handler. retriever may be nil.
func NewHealthHandler(store *conversation.Store, retriever *retrieval.Retriever, llm *inference.Client) *HealthHandler {
	return &HealthHandler{store: store, retriever: retriever, llm: llm}
}

// HandleHealth serves GET /health.
//
// Returns 200 when the inference server answers and 503 otherwise; the
// platform only needs the model to hold a conversation. Retrieval and
// store state are reported but do not gate the status code, since the
// proxy degrades through both.
func (h *HealthHandler) HandleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()

	health := datatypes.HealthStatus{
		Status:          "ok",
		Inference:       "ok",
		InferenceURL:    h.llm.BaseURL(),
		ConfiguredModel: h.llm.Model(),
		Retrieval:       "disabled",
		ConversationDB:  "ok",
	}

	models, err := h.llm.ListLocalModels(ctx)
	if err != nil {
		health.Status = "degraded"
		health.Inference = "unreachable"
	} else {
		health.AvailableModels = models
	}

	if h.retriever != nil {
		if err := h.retriever.Ready(ctx); err != nil {
			health.Retrieval = "unreachable"
		} else {
			health.Retrieval = h.retriever.Backend()
		}
	}

	if err := h.store.Ping(ctx); err != nil {
		health.ConversationDB = "unreachable"
	}

	statusCode := http.StatusOK
	if health.Inference != "ok" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, health)
}
