// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the proxy's HTTP surface.
package handlers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samawellness/voicebridge/services/inference"
	"github.com/samawellness/voicebridge/services/proxy/conversation"
	"github.com/samawellness/voicebridge/services/proxy/datatypes"
	"github.com/samawellness/voicebridge/services/proxy/observability"
	"github.com/samawellness/voicebridge/services/proxy/prompt"
	"github.com/samawellness/voicebridge/services/proxy/retrieval"
)

const (
	// retrievalTimeout bounds the knowledge-base lookup. A slow vector
	// store degrades to a context-free answer instead of a silent call.
	retrievalTimeout = 10 * time.Second
	// persistTimeout bounds the post-stream assistant write, which runs
	// on a background context because the request may already be gone.
	persistTimeout = 5 * time.Second
	// scanBufferSize is the line buffer for upstream SSE frames. A single
	// frame carries at most one token delta, but error frames can embed
	// full upstream responses.
	scanBufferSize = 1024 * 1024

	statusSuccess        = "success"
	statusInvalidRequest = "invalid_request"
	statusStorageError   = "storage_error"
	statusUpstreamError  = "upstream_error"
	statusDisconnect     = "disconnect"
)

// ChatHandler relays chat completions between the voice platform and the
// local model server, persisting both sides of every turn.
type ChatHandler struct {
	store     *conversation.Store
	retriever *retrieval.Retriever
	assembler *prompt.Assembler
	llm       *inference.Client
	tracer    trace.Tracer
}

// NewChatHandler wires the relay's dependencies. retriever may be nil when
// the proxy runs without a vector backend.
func NewChatHandler(store *conversation.Store, retriever *retrieval.Retriever, llm *inference.Client) *ChatHandler {
	return &ChatHandler{
		store:     store,
		retriever: retriever,
		assembler: prompt.NewAssembler(store),
		llm:       llm,
		tracer:    otel.Tracer("voicebridge.proxy.handlers"),
	}
}

// HandleChatCompletion serves POST /chat/completions.
//
// # Description
//
// The full turn pipeline: resolve the session, persist the caller's
// utterance, fetch knowledge-base context, assemble the prompt from
// durable history, open the upstream stream, and relay its SSE frames
// byte-for-byte while accumulating the assistant's reply. The reply is
// persisted after the stream ends on every path, including client
// disconnect, so the next turn sees whatever the caller actually heard.
//
// Error surfaces split on whether stream bytes have been written: before
// the first frame the platform gets a JSON error with a real status code;
// after it, the HTTP status is already committed and the relay can only
// stop.
//
// # Limitations
//
//   - Retrieval failures are logged and skipped, never surfaced.
//   - A reply that produced no tokens is not persisted.
func (h *ChatHandler) HandleChatCompletion(c *gin.Context) {
	startTime := time.Now()

	ctx, span := h.tracer.Start(c.Request.Context(), "HandleChatCompletion")
	defer span.End()

	if m := observability.DefaultMetrics; m != nil {
		m.ActiveStreams.Inc()
		defer m.ActiveStreams.Dec()
	}

	status := statusUpstreamError
	defer func() {
		if m := observability.DefaultMetrics; m != nil {
			m.RequestsTotal.WithLabelValues(status).Inc()
			m.StreamDurationSeconds.WithLabelValues(status).Observe(time.Since(startTime).Seconds())
		}
	}()

	// Step 1: Parse and validate the request body.
	var req datatypes.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request body")
		slog.Error("Failed to parse chat completion request", "error", err)
		status = statusInvalidRequest
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		slog.Error("Chat completion request validation failed", "error", err)
		status = statusInvalidRequest
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: validation failed"})
		return
	}

	// Step 2: Resolve the session identity.
	sessionID := ExtractSessionID(&req, c.Request.Header)
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int("request.message_count", len(req.Messages)),
	)

	// Step 3: Persist the caller's utterance before anything can fail
	// downstream. A turn the store refused must not reach the model.
	userMessage := req.LatestUserMessage()
	if userMessage != "" {
		if _, err := h.store.Append(ctx, sessionID, datatypes.RoleUser, userMessage); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to persist user turn")
			slog.Error("Failed to persist user turn", "sessionID", sessionID, "error", err)
			status = statusStorageError
			c.JSON(http.StatusInternalServerError, datatypes.NewStorageErrorResponse(
				"failed to persist conversation turn"))
			return
		}
		if m := observability.DefaultMetrics; m != nil {
			m.PersistedTurnsTotal.WithLabelValues(datatypes.RoleUser).Inc()
		}
	}

	// Step 4: Fetch knowledge-base context. Best effort only.
	passages := h.searchKnowledgeBase(ctx, userMessage)
	span.SetAttributes(attribute.Int("retrieval.passages", len(passages)))

	// Step 5: Assemble the outbound prompt from durable history.
	messages, err := h.assembler.Assemble(ctx, sessionID, req.Messages, passages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prompt assembly failed")
		slog.Error("Failed to assemble prompt", "sessionID", sessionID, "error", err)
		status = statusStorageError
		c.JSON(http.StatusInternalServerError, datatypes.NewStorageErrorResponse(
			"failed to load conversation history"))
		return
	}

	// Step 6: Open the upstream stream. Failures here happen before any
	// response bytes, so the platform still gets a proper 502.
	upstream, err := h.llm.StreamChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: toOpenAIMessages(messages),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream request failed")
		var upErr *inference.UpstreamError
		if errors.As(err, &upErr) {
			slog.Error("Inference server rejected request",
				"sessionID", sessionID, "status_code", upErr.StatusCode)
		} else {
			slog.Error("Cannot reach inference server", "sessionID", sessionID, "error", err)
		}
		c.JSON(http.StatusBadGateway, datatypes.NewUpstreamErrorResponse(
			"inference server is unavailable"))
		return
	}
	defer upstream.Close()

	// Step 7: Commit to a stream response.
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	// Step 8: Persist whatever reply accumulates, on every exit path.
	// Runs on a background context: by the time a disconnect lands here
	// the request context is already canceled.
	accumulator := NewTokenAccumulator()
	defer func() {
		reply := accumulator.Finalize()
		if reply == "" {
			return
		}
		persistCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if _, err := h.store.Append(persistCtx, sessionID, datatypes.RoleAssistant, reply); err != nil {
			slog.Error("Failed to persist assistant turn", "sessionID", sessionID, "error", err)
			return
		}
		if m := observability.DefaultMetrics; m != nil {
			m.PersistedTurnsTotal.WithLabelValues(datatypes.RoleAssistant).Inc()
		}
		slog.Debug("Stored assistant reply", "sessionID", sessionID, "length", len(reply))
	}()

	// Step 9: Relay upstream frames verbatim.
	scanner := bufio.NewScanner(upstream)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufferSize)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if _, err := fmt.Fprintf(c.Writer, "%s\n\n", line); err != nil {
			span.SetStatus(codes.Error, "client disconnected")
			slog.Warn("Client disconnected mid-stream", "sessionID", sessionID, "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.ClientDisconnectsTotal.Inc()
			}
			status = statusDisconnect
			return
		}
		c.Writer.Flush()
		accumulator.ConsumeLine(line)
	}

	if err := scanner.Err(); err != nil {
		if c.Request.Context().Err() != nil {
			span.SetStatus(codes.Error, "client disconnected")
			slog.Warn("Client disconnected mid-stream", "sessionID", sessionID)
			if m := observability.DefaultMetrics; m != nil {
				m.ClientDisconnectsTotal.Inc()
			}
			status = statusDisconnect
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream stream failed")
		slog.Error("Upstream stream failed mid-relay", "sessionID", sessionID, "error", err)
		status = statusUpstreamError
		return
	}

	// Step 10: Terminate the stream the way the platform expects.
	fmt.Fprint(c.Writer, doneFrame+"\n\n")
	c.Writer.Flush()
	status = statusSuccess
}

// searchKnowledgeBase runs the bounded retrieval lookup. Failures degrade
// to an empty result; the call continues without injected context.
func (h *ChatHandler) searchKnowledgeBase(ctx context.Context, query string) []datatypes.Passage {
	if h.retriever == nil || query == "" {
		return nil
	}

	searchCtx, cancel := context.WithTimeout(ctx, retrievalTimeout)
	defer cancel()

	passages, err := h.retriever.Search(searchCtx, query)
	if err != nil {
		slog.Warn("Knowledge-base search failed, continuing without context", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RetrievalFailuresTotal.Inc()
		}
		return nil
	}
	return passages
}

func toOpenAIMessages(messages []datatypes.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}
