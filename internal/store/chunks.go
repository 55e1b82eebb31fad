package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/massy-ia/citydesk/internal/logging"
)

// Embedder turns a text into its embedding vector.
type Embedder func(ctx context.Context, text string) ([]float32, error)

func (s *SQLiteStore) createDataChunk(ctx context.Context, chunk *DataChunk) error {
	embedding, err := encodeJSON(chunk.Embedding)
	if err != nil {
		return err
	}
	return s.withTx(ctx, "failed to insert data chunk", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "INSERT INTO data_chunks (content, embedding_json) VALUES (?, ?)",
			chunk.Content, embedding)
		if err != nil {
			return err
		}
		chunk.ID, _ = res.LastInsertId()
		return nil
	})
}

// GetAllDataChunks loads every chunk. Chunks with an unreadable embedding are
// returned with a nil embedding.
func (s *SQLiteStore) GetAllDataChunks(ctx context.Context) ([]DataChunk, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, content, embedding_json FROM data_chunks ORDER BY id")
	if err != nil {
		return nil, mapError("failed to query data_chunks", err)
	}
	defer rows.Close()

	var chunks []DataChunk
	for rows.Next() {
		var (
			chunk     DataChunk
			embedding sql.NullString
		)
		if err := rows.Scan(&chunk.ID, &chunk.Content, &embedding); err != nil {
			return nil, mapError("failed to scan data_chunk row", err)
		}
		if !embedding.Valid || embedding.String == "" {
			logging.Warn().Int64("chunk_id", chunk.ID).Msg("Empty embedding for data chunk")
		} else if err := json.Unmarshal([]byte(embedding.String), &chunk.Embedding); err != nil {
			logging.Warn().Err(err).Int64("chunk_id", chunk.ID).Msg("Failed to decode embedding for data chunk")
			chunk.Embedding = nil
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("failed to iterate data_chunks", err)
	}
	return chunks, nil
}

func (s *SQLiteStore) ClearDataChunks(ctx context.Context) error {
	return s.withTx(ctx, "failed to delete data_chunks", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM data_chunks"); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name = 'data_chunks'")
		if err != nil && !strings.Contains(err.Error(), "no such table") {
			return err
		}
		return nil
	})
}

// parseDocumentTable extracts the cell of every row of a single-column markdown
// table, skipping the header and separator lines.
func parseDocumentTable(content string) []string {
	var cells []string
	for i, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if i == 0 && strings.Contains(line, "|") {
			lower := strings.ToLower(line)
			if strings.Contains(lower, "text") || strings.Contains(lower, "content") {
				continue
			}
		}
		if strings.HasPrefix(line, "|") && strings.Contains(line, "---") {
			continue
		}
		if !strings.HasPrefix(line, "|") || !strings.HasSuffix(line, "|") {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) < 3 {
			continue
		}
		if cell := strings.TrimSpace(parts[1]); cell != "" {
			cells = append(cells, cell)
		}
	}
	return cells
}

// IngestDataFromFile replaces the stored chunks with the rows of a markdown
// table file, embedding each row. Rows that fail to embed are skipped.
func (s *SQLiteStore) IngestDataFromFile(ctx context.Context, filePath string, embed Embedder) (int, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read data file %s: %w", filePath, err)
	}

	rawChunks := parseDocumentTable(string(content))
	if len(rawChunks) == 0 {
		logging.Warn().Str("file", filePath).Msg("No chunks found; expected a markdown table with a text column")
		return 0, nil
	}
	logging.Info().Int("chunks", len(rawChunks)).Msg("Embedding document chunks")

	if err := s.ClearDataChunks(ctx); err != nil {
		return 0, fmt.Errorf("failed to clear existing data chunks: %w", err)
	}

	// Embedding quota is 1500 requests per minute.
	ticker := time.NewTicker(40 * time.Millisecond)
	defer ticker.Stop()

	count := 0
	for i, raw := range rawChunks {
		select {
		case <-ctx.Done():
			return count, ctx.Err()
		case <-ticker.C:
		}

		embedding, err := embed(ctx, raw)
		if err != nil {
			logging.Warn().Err(err).Int("chunk", i+1).Msg("Failed to embed chunk, skipping")
			continue
		}
		chunk := DataChunk{Content: raw, Embedding: embedding}
		if err := s.createDataChunk(ctx, &chunk); err != nil {
			logging.Warn().Err(err).Int("chunk", i+1).Msg("Failed to store chunk, skipping")
			continue
		}
		count++
		if count%10 == 0 || count == len(rawChunks) {
			logging.Info().Int("done", count).Int("total", len(rawChunks)).Msg("Ingesting chunks")
		}
	}
	logging.Info().Int("chunks", count).Msg("Ingestion complete")
	return count, nil
}
