// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/samawellness/voicebridge/services/inference"
	"github.com/samawellness/voicebridge/services/proxy/conversation"
	"github.com/samawellness/voicebridge/services/proxy/observability"
	"github.com/samawellness/voicebridge/services/proxy/retrieval"
	"github.com/samawellness/voicebridge/services/proxy/routes"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const serviceName = "voicebridge-proxy"

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "localhost:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	port := os.Getenv("PROXY_PORT")
	if port == "" {
		port = "8000"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Tracing is optional; a missing collector must not keep calls from
	// being answered.
	cleanup, err := initTracer()
	if err != nil {
		slog.Warn("Failed to set up the OTLP tracer, continuing without tracing", "error", err)
	} else {
		defer cleanup(context.Background())
	}

	observability.InitMetrics()

	dbPath := os.Getenv("CONVERSATION_DB_PATH")
	if dbPath == "" {
		dbPath = "data/conversations.db"
		slog.Warn("CONVERSATION_DB_PATH is not set, defaulting", "path", dbPath)
	}
	store, err := conversation.Open(dbPath)
	if err != nil {
		log.Fatalf("FATAL: Could not open the conversation store: %v", err)
	}
	defer store.Close()
	slog.Info("Conversation store ready", "path", dbPath)

	retriever, err := retrieval.NewFromEnv(context.Background())
	if err != nil {
		slog.Warn("Failed to configure retrieval, continuing without knowledge-base context",
			"error", err)
		retriever = nil
	}
	if retriever != nil {
		slog.Info("Retrieval configured", "backend", retriever.Backend())
	}

	inferenceURL := os.Getenv("INFERENCE_SERVER_URL")
	if inferenceURL == "" {
		inferenceURL = "http://localhost:11434"
		slog.Warn("INFERENCE_SERVER_URL is not set, defaulting", "url", inferenceURL)
	}
	model := os.Getenv("INFERENCE_MODEL_NAME")
	if model == "" {
		slog.Warn("INFERENCE_MODEL_NAME is not set; requests must carry their own model")
	}
	llm := inference.NewClient(inferenceURL, model)

	router := gin.Default()
	router.Use(otelgin.Middleware(serviceName))

	routes.SetupRoutes(router, store, retriever, llm)

	slog.Info("Starting the proxy server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
