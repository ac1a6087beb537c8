// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/samawellness/voicebridge/services/proxy/datatypes"
)

// DefaultSessionID is used when no call identity can be found anywhere in
// the request. All such requests share one conversation, which is the
// intended single-session fallback for local testing.
const DefaultSessionID = "default_session"

// ExtractSessionID resolves the stable call identifier for a request.
//
// # Description
//
// The platform embeds call metadata in the body on current versions and
// in headers on older ones, so resolution is by precedence: the call id
// from the request body, then the x-vapi-call-id header, then the
// x-request-id header, then DefaultSessionID. The same call always
// resolves to the same id, which is what keys its durable history.
//
// # Inputs
//
//   - req: The parsed request body; may carry call metadata.
//   - header: The request headers.
//
// # Outputs
//
//   - string: Never empty.
func ExtractSessionID(req *datatypes.ChatCompletionRequest, header http.Header) string {
	if req != nil && req.Call != nil && req.Call.ID != "" {
		return req.Call.ID
	}
	if id := header.Get("x-vapi-call-id"); id != "" {
		return id
	}
	if id := header.Get("x-request-id"); id != "" {
		return id
	}
	return DefaultSessionID
}
