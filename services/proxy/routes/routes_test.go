// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samawellness/voicebridge/services/inference"
	"github.com/samawellness/voicebridge/services/proxy/conversation"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	store, err := conversation.Open(filepath.Join(t.TempDir(), "routes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	router := gin.New()
	SetupRoutes(router, store, nil, inference.NewClient("http://127.0.0.1:1", "test-model"))
	return router
}

func TestRoutesRegistered(t *testing.T) {
	router := newRouter(t)

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/v1/sessions", "", http.StatusOK},
		{http.MethodGet, "/v1/sessions/none/history", "", http.StatusOK},
		{http.MethodDelete, "/v1/sessions/none", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		// Inference is unreachable in this test, so health degrades.
		{http.MethodGet, "/health", "", http.StatusServiceUnavailable},
		// Both completion paths reach the relay, which reports the dead upstream.
		{http.MethodPost, "/", `{"messages":[]}`, http.StatusBadGateway},
		{http.MethodPost, "/chat/completions", `{"messages":[]}`, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
