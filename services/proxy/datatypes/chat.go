// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides wire and data types for the proxy service.
//
// This file contains the OpenAI-compatible chat-completion request shape
// accepted from the voice platform. For retrieval types, see retrieval.go.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// RoleSystem, RoleUser and RoleAssistant form the closed set of roles
	// a persisted conversation message may carry.
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"

	// MaxMessageContentBytes is the maximum size of a single message content.
	// Byte length, not rune count, to bound memory per request.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxMessagesPerRequest is the maximum number of messages in a request.
	MaxMessagesPerRequest = 200
)

// ValidRole reports whether role belongs to the closed persisted-role set.
func ValidRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes validates that a string field does not exceed
// MaxMessageContentBytes. Checks byte length to prevent memory exhaustion
// with large payloads.
func validateMaxBytes(fl validator.FieldLevel) bool {
	content := fl.Field().String()
	return len(content) <= MaxMessageContentBytes
}

// =============================================================================
// Chat Completion Request Types
// =============================================================================

// Message is one turn in a conversation, in the OpenAI wire shape.
type Message struct {
	Role    string `json:"role" validate:"required,max=32"`
	Content string `json:"content" validate:"maxbytes"`
}

// CallInfo carries the voice platform's call metadata embedded in the
// request body.
type CallInfo struct {
	ID string `json:"id"`
}

// ChatCompletionRequest represents the inbound OpenAI-compatible
// chat-completion request body.
//
// # Description
//
// The voice platform sends one request per conversational turn. Only the
// fields the proxy acts on are declared; unknown fields are ignored so the
// platform can evolve its payload without breaking us. An empty messages
// array is valid (the platform occasionally probes with bare requests) —
// the pipeline then skips user-turn persistence and retrieval.
//
// # Fields
//
//   - Model: Optional caller-side model hint; the proxy's configured model
//     is authoritative for the upstream request.
//   - Messages: Conversation turns as seen by the platform. The persisted
//     history, not this list, is the source of truth for prior turns.
//   - Stream: Ignored; the proxy always streams upstream.
//   - Call: Optional call metadata; Call.ID has the highest precedence
//     when deriving the session key.
type ChatCompletionRequest struct {
	Model    string    `json:"model,omitempty"`
	Messages []Message `json:"messages" validate:"max=200,dive"`
	Stream   bool      `json:"stream,omitempty"`
	Call     *CallInfo `json:"call,omitempty"`
}

// Validate validates the request using go-playground/validator tags and
// the custom maxbytes validator. Call after binding the JSON body.
func (r *ChatCompletionRequest) Validate() error {
	return chatValidate.Struct(r)
}

// LatestUserMessage returns the content of the most recent user message,
// or "" when the request carries none.
func (r *ChatCompletionRequest) LatestUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}
