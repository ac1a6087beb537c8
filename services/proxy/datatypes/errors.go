// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// ErrorDetail is the body of an OpenAI-style error envelope.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// ErrorResponse is the JSON error envelope returned to the voice platform
// when a request fails before streaming starts. The shape matches what
// OpenAI clients already know how to parse.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// NewUpstreamErrorResponse builds the error envelope for an unreachable or
// failing inference endpoint.
func NewUpstreamErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{
		Message: message,
		Type:    "server_error",
		Code:    "upstream_unavailable",
	}}
}

// NewStorageErrorResponse builds the error envelope for a failed durable
// write. The exchange must not proceed to inference when the user turn
// could not be recorded.
func NewStorageErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{
		Message: message,
		Type:    "server_error",
		Code:    "storage_error",
	}}
}
