// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package prompt builds the outbound message list sent to the model.
package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/samawellness/voicebridge/services/proxy/datatypes"
)

// DefaultPersona is the system prompt used when the platform does not
// supply one of its own.
const DefaultPersona = "You are a compassionate and knowledgeable wellness assistant for Sama Wellness. You speak warmly and provide helpful guidance."

const (
	contextHeader = "\n\n--- Relevant knowledge-base context ---\n"
	contextFooter = "\n--- End of context ---\n"
)

// HistoryReader supplies the stored conversation for a session.
type HistoryReader interface {
	History(ctx context.Context, sessionID string) ([]datatypes.Message, error)
}

// Assembler composes system prompt, retrieved passages, and stored history
// into the message list handed to the inference backend.
//
// # Thread Safety
//
// Safe for concurrent use; Assemble has no mutable state.
type Assembler struct {
	store HistoryReader
}

// NewAssembler creates an assembler over the given history source.
func NewAssembler(store HistoryReader) *Assembler {
	return &Assembler{store: store}
}

// Assemble builds the outbound message list for one chat turn.
//
// # Description
//
// The system prompt is taken from the first system message of the inbound
// request when the platform sent one, otherwise DefaultPersona. Retrieved
// passages are appended to the system content inside fixed delimiter lines
// so the model can tell injected knowledge from instructions. The rest of
// the outbound list is the stored history verbatim, which already ends
// with the caller's current utterance because the user turn is persisted
// before assembly runs.
//
// Inbound non-system messages are deliberately ignored: the durable store
// is the single source of conversational truth, so a platform that resends
// prior turns in the request body cannot duplicate them.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - sessionID: The session whose history forms the prompt.
//   - inbound: The messages from the platform's request body.
//   - passages: Retrieved knowledge-base passages; may be empty.
//
// # Outputs
//
//   - []datatypes.Message: At least one element; the system message is
//     always first.
//   - error: Non-nil when history could not be read.
func (a *Assembler) Assemble(ctx context.Context, sessionID string, inbound []datatypes.Message, passages []datatypes.Passage) ([]datatypes.Message, error) {
	system := DefaultPersona
	for _, m := range inbound {
		if m.Role == datatypes.RoleSystem {
			system = m.Content
			break
		}
	}

	if len(passages) > 0 {
		texts := make([]string, len(passages))
		for i, p := range passages {
			texts[i] = p.Text
		}
		system += contextHeader + strings.Join(texts, "\n\n") + contextFooter
	}

	history, err := a.store.History(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for prompt: %w", err)
	}

	outbound := make([]datatypes.Message, 0, len(history)+1)
	outbound = append(outbound, datatypes.Message{Role: datatypes.RoleSystem, Content: system})
	outbound = append(outbound, history...)
	return outbound, nil
}
