// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package inference talks to the local OpenAI-compatible model server.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("voicebridge.inference")

// UpstreamError reports a non-success HTTP status from the model server.
// The relay uses it to answer the platform with a proper error response
// before any stream bytes have been written.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("inference server returned status %d: %s", e.StatusCode, e.Body)
}

// Client streams chat completions from an OpenAI-compatible endpoint.
//
// # Description
//
// The client posts to {baseURL}/v1/chat/completions with stream enabled
// and hands the raw response body to the caller, because the relay must
// forward the server's SSE frames byte-for-byte rather than re-encode
// them. Model listing for health checks goes through Ollama's /api/tags.
//
// # Thread Safety
//
// Safe for concurrent use.
type Client struct {
	baseURL      string
	model        string
	streamClient *http.Client
	probeClient  *http.Client
}

// NewClient creates a client for the model server at baseURL (for example
// "http://localhost:11434").
//
// The streaming client has no overall timeout; a voice turn can stream for
// minutes. Instead the transport bounds how long the server may take to
// start answering, so a hung upstream still fails fast.
func NewClient(baseURL, model string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		streamClient: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 60 * time.Second,
			},
		},
		probeClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Model returns the configured model name, which may be empty when the
// platform supplies the model per request.
func (c *Client) Model() string { return c.model }

// BaseURL returns the configured server address for health reporting.
func (c *Client) BaseURL() string { return c.baseURL }

// StreamChatCompletion starts a streaming completion and returns the raw
// SSE body.
//
// # Description
//
// Sends the assembled messages with stream forced on. On a non-2xx status
// the body is consumed and returned inside an *UpstreamError so the caller
// can translate it before committing to a stream response. On success the
// caller owns the returned body and must close it.
//
// # Inputs
//
//   - ctx: Canceling it aborts the upstream request mid-stream.
//   - req: The outbound completion request; Stream is overridden to true
//     and an empty Model falls back to the configured default.
//
// # Outputs
//
//   - io.ReadCloser: The upstream SSE byte stream.
//   - error: *UpstreamError for HTTP-level failures, wrapped transport
//     errors otherwise.
func (c *Client) StreamChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (io.ReadCloser, error) {
	ctx, span := tracer.Start(ctx, "Client.StreamChatCompletion")
	defer span.End()

	req.Stream = true
	if req.Model == "" {
		req.Model = c.model
	}
	span.SetAttributes(
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.num_messages", len(req.Messages)),
	)

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	url := c.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to reach inference server at %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		upErr := &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
		slog.Error("Inference server rejected completion request",
			"status_code", resp.StatusCode, "response", string(body))
		span.RecordError(upErr)
		span.SetStatus(codes.Error, upErr.Error())
		return nil, upErr
	}

	return resp.Body, nil
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListLocalModels returns the model names the server has loaded, via
// Ollama's /api/tags. Used by the health endpoint; servers that do not
// implement the endpoint report an error, not a crash.
func (c *Client) ListLocalModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create tags request: %w", err)
	}

	resp, err := c.probeClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach inference server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model listing returned status %d", resp.StatusCode)
	}

	var parsed ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode model listing: %w", err)
	}

	names := make([]string, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
