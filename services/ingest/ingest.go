// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ingest loads knowledge-base documents into the vector index.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/samawellness/voicebridge/services/proxy/datatypes"
	"github.com/samawellness/voicebridge/services/proxy/retrieval"
)

var (
	chunkSize    = 500
	chunkOverlap = 50

	markdownSeparators = []string{"\n## ", "\n### ", "\n\n", "\n", " ", ""}
	defaultSeparators  = []string{"\n\n", "\n", " ", ""}
)

// Stats summarizes one ingestion run.
type Stats struct {
	Documents int
	Chunks    int
	Skipped   int
}

// Sink receives chunked passages. Satisfied by *retrieval.Retriever.
type Sink interface {
	Ingest(ctx context.Context, passages []datatypes.Passage) error
}

var _ Sink = (*retrieval.Retriever)(nil)

// Directory walks root, chunks every .txt and .md file, and writes the
// chunks to the sink.
//
// # Description
//
// Each file is split with a recursive character splitter tuned for short
// knowledge-base passages, then embedded and stored per file so one bad
// document does not abort the run. Unsupported extensions are counted as
// skipped.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - root: Directory to walk.
//   - sink: Destination index.
//
// # Outputs
//
//   - Stats: What was processed.
//   - error: Non-nil when the walk itself failed or every document failed.
func Directory(ctx context.Context, root string, sink Sink) (Stats, error) {
	var stats Stats
	var failures int

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".txt" && ext != ".md" {
			stats.Skipped++
			return nil
		}

		chunks, err := File(ctx, path, sink)
		if err != nil {
			slog.Error("Failed to ingest document, continuing", "path", path, "error", err)
			failures++
			return nil
		}
		stats.Documents++
		stats.Chunks += chunks
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	if stats.Documents == 0 && failures > 0 {
		return stats, fmt.Errorf("all %d documents failed to ingest", failures)
	}
	return stats, nil
}

// File chunks and stores a single document, returning the chunk count.
func File(ctx context.Context, path string, sink Sink) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	chunks, err := splitterForFile(path).SplitText(string(content))
	if err != nil {
		return 0, fmt.Errorf("failed to split %s: %w", path, err)
	}
	if len(chunks) == 0 {
		slog.Warn("No chunks produced after splitting", "path", path)
		return 0, nil
	}

	passages := make([]datatypes.Passage, len(chunks))
	for i, chunk := range chunks {
		passages[i] = datatypes.Passage{
			Text:   chunk,
			Source: filepath.Base(path),
		}
	}

	if err := sink.Ingest(ctx, passages); err != nil {
		return 0, err
	}
	slog.Info("Ingested document", "path", path, "chunks", len(chunks))
	return len(chunks), nil
}

func splitterForFile(path string) textsplitter.TextSplitter {
	separators := defaultSeparators
	if strings.ToLower(filepath.Ext(path)) == ".md" {
		separators = markdownSeparators
	}
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithSeparators(separators),
	)
}
