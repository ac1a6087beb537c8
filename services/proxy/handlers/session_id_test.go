// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"testing"

	"github.com/samawellness/voicebridge/services/proxy/datatypes"
	"github.com/stretchr/testify/assert"
)

func TestExtractSessionIDPrecedence(t *testing.T) {
	withBody := &datatypes.ChatCompletionRequest{Call: &datatypes.CallInfo{ID: "body-id"}}
	withoutBody := &datatypes.ChatCompletionRequest{}

	bothHeaders := http.Header{}
	bothHeaders.Set("x-vapi-call-id", "vapi-id")
	bothHeaders.Set("x-request-id", "request-id")

	requestIDOnly := http.Header{}
	requestIDOnly.Set("x-request-id", "request-id")

	tests := []struct {
		name   string
		req    *datatypes.ChatCompletionRequest
		header http.Header
		want   string
	}{
		{"body call id wins over headers", withBody, bothHeaders, "body-id"},
		{"vapi header beats request id header", withoutBody, bothHeaders, "vapi-id"},
		{"request id header as last resort", withoutBody, requestIDOnly, "request-id"},
		{"default when nothing present", withoutBody, http.Header{}, DefaultSessionID},
		{"nil request still safe", nil, http.Header{}, DefaultSessionID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSessionID(tt.req, tt.header))
		})
	}
}

func TestExtractSessionIDEmptyCallID(t *testing.T) {
	req := &datatypes.ChatCompletionRequest{Call: &datatypes.CallInfo{ID: ""}}
	header := http.Header{}
	header.Set("x-vapi-call-id", "vapi-id")

	assert.Equal(t, "vapi-id", ExtractSessionID(req, header))
}
