// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/samawellness/voicebridge/services/proxy/conversation"
)

// SessionHandler exposes the stored conversations for inspection and
// cleanup. These routes are operator tooling, not part of the platform's
// OpenAI-compatible surface.
type SessionHandler struct {
	store *conversation.Store
}

// NewSessionHandler creates the session admin handler.
func NewSessionHandler(store *conversation.Store) *SessionHandler {
	return &SessionHandler{store: store}
}

// HandleListSessions serves GET /v1/sessions.
func (h *SessionHandler) HandleListSessions(c *gin.Context) {
	ids, err := h.store.Sessions(c.Request.Context())
	if err != nil {
		slog.Error("Failed to list sessions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": ids, "count": len(ids)})
}

// HandleGetSessionHistory serves GET /v1/sessions/:sessionId/history.
// An unknown session returns an empty history, matching store semantics.
func (h *SessionHandler) HandleGetSessionHistory(c *gin.Context) {
	sessionID := c.Param("sessionId")

	records, err := h.store.Log(c.Request.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to load session history", "sessionID", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"messages":   records,
		"count":      len(records),
	})
}

// HandleDeleteSession serves DELETE /v1/sessions/:sessionId.
func (h *SessionHandler) HandleDeleteSession(c *gin.Context) {
	sessionID := c.Param("sessionId")

	if err := h.store.Purge(c.Request.Context(), sessionID); err != nil {
		slog.Error("Failed to purge session", "sessionID", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to purge session"})
		return
	}
	slog.Info("Purged session", "sessionID", sessionID)
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "status": "purged"})
}
