// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samawellness/voicebridge/services/inference"
	"github.com/samawellness/voicebridge/services/proxy/conversation"
	"github.com/samawellness/voicebridge/services/proxy/handlers"
	"github.com/samawellness/voicebridge/services/proxy/retrieval"
)

// SetupRoutes wires every endpoint the proxy serves.
//
// The voice platform posts completions to /chat/completions; some platform
// versions post to the bare root instead, so both land on the same relay.
func SetupRoutes(router *gin.Engine, store *conversation.Store, retriever *retrieval.Retriever, llm *inference.Client) {
	chat := handlers.NewChatHandler(store, retriever, llm)
	sessions := handlers.NewSessionHandler(store)
	health := handlers.NewHealthHandler(store, retriever, llm)

	router.POST("/", chat.HandleChatCompletion)
	router.POST("/chat/completions", chat.HandleChatCompletion)

	router.GET("/health", health.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		// Session administration routes
		sessionGroup := v1.Group("/sessions")
		{
			sessionGroup.GET("", sessions.HandleListSessions)
			sessionGroup.GET("/:sessionId/history", sessions.HandleGetSessionHistory)
			sessionGroup.DELETE("/:sessionId", sessions.HandleDeleteSession)
		}
	}
}
