// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package prompt

import (
	"context"
	"errors"
	"testing"

	"github.com/samawellness/voicebridge/services/proxy/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHistory struct {
	messages []datatypes.Message
	err      error
}

func (s *stubHistory) History(ctx context.Context, sessionID string) ([]datatypes.Message, error) {
	return s.messages, s.err
}

func TestAssembleUsesDefaultPersona(t *testing.T) {
	a := NewAssembler(&stubHistory{messages: []datatypes.Message{
		{Role: datatypes.RoleUser, Content: "hello"},
	}})

	out, err := a.Assemble(context.Background(), "call-1", nil, nil)
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, datatypes.RoleSystem, out[0].Role)
	assert.Equal(t, DefaultPersona, out[0].Content)
	assert.Equal(t, "hello", out[1].Content)
}

func TestAssemblePrefersInboundSystemMessage(t *testing.T) {
	a := NewAssembler(&stubHistory{})

	inbound := []datatypes.Message{
		{Role: datatypes.RoleSystem, Content: "You are a scheduling assistant."},
		{Role: datatypes.RoleSystem, Content: "second system, ignored"},
		{Role: datatypes.RoleUser, Content: "hi"},
	}
	out, err := a.Assemble(context.Background(), "call-1", inbound, nil)
	require.NoError(t, err)

	require.NotEmpty(t, out)
	assert.Equal(t, "You are a scheduling assistant.", out[0].Content)
}

func TestAssembleInjectsPassagesWithDelimiters(t *testing.T) {
	a := NewAssembler(&stubHistory{})

	passages := []datatypes.Passage{
		{Text: "Drink water regularly.", Score: 0.9},
		{Text: "Sleep eight hours.", Score: 0.8},
	}
	out, err := a.Assemble(context.Background(), "call-1", nil, passages)
	require.NoError(t, err)

	want := DefaultPersona +
		"\n\n--- Relevant knowledge-base context ---\n" +
		"Drink water regularly.\n\nSleep eight hours." +
		"\n--- End of context ---\n"
	assert.Equal(t, want, out[0].Content)
}

func TestAssembleNoPassagesNoDelimiters(t *testing.T) {
	a := NewAssembler(&stubHistory{})

	out, err := a.Assemble(context.Background(), "call-1", nil, nil)
	require.NoError(t, err)
	assert.NotContains(t, out[0].Content, "knowledge-base context")
}

func TestAssembleIgnoresInboundNonSystemMessages(t *testing.T) {
	a := NewAssembler(&stubHistory{messages: []datatypes.Message{
		{Role: datatypes.RoleUser, Content: "stored question"},
	}})

	inbound := []datatypes.Message{
		{Role: datatypes.RoleUser, Content: "resent question"},
		{Role: datatypes.RoleAssistant, Content: "resent answer"},
	}
	out, err := a.Assemble(context.Background(), "call-1", inbound, nil)
	require.NoError(t, err)

	require.Len(t, out, 2, "inbound non-system messages must not be appended")
	assert.Equal(t, "stored question", out[1].Content)
}

func TestAssembleHistoryOrderPreserved(t *testing.T) {
	history := []datatypes.Message{
		{Role: datatypes.RoleUser, Content: "first"},
		{Role: datatypes.RoleAssistant, Content: "second"},
		{Role: datatypes.RoleUser, Content: "third"},
	}
	a := NewAssembler(&stubHistory{messages: history})

	out, err := a.Assemble(context.Background(), "call-1", nil, nil)
	require.NoError(t, err)

	require.Len(t, out, 4)
	assert.Equal(t, history, out[1:])
}

func TestAssembleEmptyHistoryStillHasSystem(t *testing.T) {
	a := NewAssembler(&stubHistory{})

	out, err := a.Assemble(context.Background(), "call-1", nil, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, datatypes.RoleSystem, out[0].Role)
}

func TestAssemblePropagatesHistoryError(t *testing.T) {
	a := NewAssembler(&stubHistory{err: errors.New("database locked")})

	_, err := a.Assemble(context.Background(), "call-1", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load history")
}
