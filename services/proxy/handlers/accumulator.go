// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

const sseDataPrefix = "data: "

// doneFrame is the terminal SSE line of an OpenAI-compatible stream.
const doneFrame = "data: [DONE]"

// TokenAccumulator rebuilds the assistant's full reply from the SSE frames
// passing through the relay.
//
// # Description
//
// Each relayed "data: {...}" line is parsed as a chat completion chunk and
// its delta content appended. Unparseable frames are tolerated and skipped;
// the relay forwards bytes it does not understand, so the accumulator must
// not turn a malformed frame into a failed stream. Finalize returns the
// concatenated reply exactly once.
//
// # Thread Safety
//
// Safe for concurrent use, though the relay drives it from one goroutine.
type TokenAccumulator struct {
	mu        sync.Mutex
	builder   strings.Builder
	finalized bool
}

// NewTokenAccumulator returns an empty accumulator.
func NewTokenAccumulator() *TokenAccumulator {
	return &TokenAccumulator{}
}

// ConsumeLine inspects one relayed SSE line and accumulates any delta
// content it carries. Non-data lines, the [DONE] sentinel, and frames
// that fail to parse are ignored.
func (a *TokenAccumulator) ConsumeLine(line string) {
	if !strings.HasPrefix(line, sseDataPrefix) || strings.TrimSpace(line) == doneFrame {
		return
	}

	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(line[len(sseDataPrefix):]), &chunk); err != nil {
		return
	}
	if len(chunk.Choices) == 0 {
		return
	}
	token := chunk.Choices[0].Delta.Content
	if token == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return
	}
	a.builder.WriteString(token)
}

// Finalize returns the accumulated reply and seals the accumulator.
// Subsequent calls return the empty string, which keeps the persistence
// path idempotent when more than one exit path runs the deferred save.
func (a *TokenAccumulator) Finalize() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return ""
	}
	a.finalized = true
	return a.builder.String()
}
