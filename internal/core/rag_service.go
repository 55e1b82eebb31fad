package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/massy-ia/citydesk/internal/logging"
	"github.com/massy-ia/citydesk/internal/store"
	"github.com/massy-ia/citydesk/internal/utils"
)

const (
	NumRelevantChunks   = 3   // Number of chunks to retrieve for context
	SimilarityThreshold = 0.7 // Minimum similarity score to consider a chunk relevant
)

// ChunkSource loads the ingested documents.
type ChunkSource interface {
	GetAllDataChunks(ctx context.Context) ([]store.DataChunk, error)
}

// ContextRetriever finds document snippets relevant to a question.
type ContextRetriever interface {
	RelevantContext(ctx context.Context, query string) (string, error)
}

// RAGService keeps the ingested chunks in memory and ranks them by cosine
// similarity with the query embedding.
type RAGService struct {
	source   ChunkSource
	embedder Embedder

	mu     sync.RWMutex
	chunks []store.DataChunk
}

func NewRAGService(ctx context.Context, source ChunkSource, embedder Embedder) (*RAGService, error) {
	s := &RAGService{source: source, embedder: embedder}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces the in-memory chunks with the stored ones.
func (s *RAGService) Reload(ctx context.Context) error {
	chunks, err := s.source.GetAllDataChunks(ctx)
	if err != nil {
		return fmt.Errorf("failed to load data chunks for RAG service: %w", err)
	}
	if len(chunks) == 0 {
		logging.Warn().Msg("RAG service has no data chunks; run the server with -ingest to add documents")
	} else {
		logging.Info().Int("chunks", len(chunks)).Msg("RAG service loaded data chunks")
	}

	s.mu.Lock()
	s.chunks = chunks
	s.mu.Unlock()
	return nil
}

// RelevantContext returns up to NumRelevantChunks snippets whose similarity
// reaches SimilarityThreshold, best first. No match yields "".
func (s *RAGService) RelevantContext(ctx context.Context, query string) (string, error) {
	s.mu.RLock()
	chunks := s.chunks
	s.mu.RUnlock()
	if len(chunks) == 0 {
		return "", nil
	}

	queryEmbedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to get query embedding: %w", err)
	}

	embeddings := make([][]float32, len(chunks))
	for i, chunk := range chunks {
		embeddings[i] = chunk.Embedding
	}
	matches := utils.RankBySimilarity(queryEmbedding, embeddings, SimilarityThreshold, NumRelevantChunks)
	logging.Debug().Int("chunks", len(chunks)).Int("matches", len(matches)).Msg("Ranked context chunks")

	var b strings.Builder
	for _, m := range matches {
		b.WriteString(chunks[m.Index].Content)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String()), nil
}
