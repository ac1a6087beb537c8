// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/samawellness/voicebridge/services/ingest"
	"github.com/samawellness/voicebridge/services/proxy/retrieval"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	rootCmd := &cobra.Command{
		Use:   "ingest <directory>",
		Short: "Load knowledge-base documents into the vector index",
		Long: `Walks a directory of .txt and .md documents, chunks them, embeds each
chunk, and writes the results to the vector backend configured through
the same environment variables the proxy uses (VECTOR_BACKEND,
EMBEDDING_BACKEND, and their connection settings).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			retriever, err := retrieval.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("failed to configure retrieval: %w", err)
			}
			if retriever == nil {
				return fmt.Errorf("VECTOR_BACKEND must be set to ingest documents")
			}

			stats, err := ingest.Directory(ctx, args[0], retriever)
			if err != nil {
				return err
			}
			fmt.Printf("Ingested %d documents (%d chunks, %d files skipped)\n",
				stats.Documents, stats.Chunks, stats.Skipped)
			return nil
		},
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
