// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package inference

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamChatCompletionForcesStreamAndDefaultModel(t *testing.T) {
	var gotReq openai.ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "llama3.2")
	body, err := client.StreamChatCompletion(context.Background(), openai.ChatCompletionRequest{
		Messages: []openai.ChatCompletionMessage{{Role: "user", Content: "hello"}},
	})
	require.NoError(t, err)
	defer body.Close()

	assert.True(t, gotReq.Stream, "stream must be forced on")
	assert.Equal(t, "llama3.2", gotReq.Model, "empty model must fall back to the default")

	scanner := bufio.NewScanner(body)
	require.True(t, scanner.Scan())
	assert.Contains(t, scanner.Text(), "\"content\":\"hi\"")
}

func TestStreamChatCompletionKeepsRequestModel(t *testing.T) {
	var gotReq openai.ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "llama3.2")
	body, err := client.StreamChatCompletion(context.Background(), openai.ChatCompletionRequest{
		Model: "platform-chosen",
	})
	require.NoError(t, err)
	body.Close()

	assert.Equal(t, "platform-chosen", gotReq.Model)
}

func TestStreamChatCompletionUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not loaded"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "llama3.2")
	_, err := client.StreamChatCompletion(context.Background(), openai.ChatCompletionRequest{})
	require.Error(t, err)

	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr), "HTTP failures must surface as UpstreamError")
	assert.Equal(t, http.StatusServiceUnavailable, upErr.StatusCode)
	assert.Contains(t, upErr.Body, "model not loaded")
}

func TestStreamChatCompletionUnreachableServer(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "llama3.2")
	_, err := client.StreamChatCompletion(context.Background(), openai.ChatCompletionRequest{})
	require.Error(t, err)

	var upErr *UpstreamError
	assert.False(t, errors.As(err, &upErr), "transport failures are not UpstreamError")
}

func TestListLocalModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models":[{"name":"llama3.2"},{"name":"nomic-embed-text"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "llama3.2")
	models, err := client.ListLocalModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.2", "nomic-embed-text"}, models)
}

func TestListLocalModelsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "llama3.2")
	_, err := client.ListLocalModels(context.Background())
	assert.Error(t, err)
}
