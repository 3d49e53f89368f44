package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teemow/inboxreply/internal/instrumentation"
	"github.com/teemow/inboxreply/internal/logging"
	"github.com/teemow/inboxreply/internal/workflow"
)

// QueryEmbedder embeds a search query.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is a pgvector-backed passage store.
type Store struct {
	pool     *pgxpool.Pool
	embedder QueryEmbedder
	metrics  *instrumentation.Metrics
	logger   *slog.Logger
}

// NewStore creates a Store. metrics and logger may be nil.
func NewStore(pool *pgxpool.Pool, embedder QueryEmbedder, metrics *instrumentation.Metrics, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		pool:     pool,
		embedder: embedder,
		metrics:  metrics,
		logger:   logging.WithOperation(logger, "knowledge"),
	}
}

// EnsureSchema creates the pgvector extension and the chunk table for
// embeddings of dim dimensions.
func (s *Store) EnsureSchema(ctx context.Context, dim int) error {
	if dim < 1 {
		return fmt.Errorf("invalid embedding dimension %d", dim)
	}
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS knowledge_chunks (
	id          BIGSERIAL PRIMARY KEY,
	source      TEXT NOT NULL,
	chunk_index INT NOT NULL,
	content     TEXT NOT NULL,
	embedding   vector(%d) NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source, chunk_index)
);`, dim)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create knowledge schema: %w", err)
	}
	return nil
}

// Retrieve embeds query and returns the k closest passages by cosine
// distance, best first. It implements workflow.Retriever.
func (s *Store) Retrieve(ctx context.Context, query string, k int) ([]workflow.Passage, error) {
	start := time.Now()
	passages, err := s.retrieve(ctx, query, k)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	s.metrics.RecordRetrieval(ctx, status, len(passages), time.Since(start))
	return passages, err
}

func (s *Store) retrieve(ctx context.Context, query string, k int) ([]workflow.Passage, error) {
	if k < 1 {
		return nil, nil
	}

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vec) == 0 {
		return nil, ErrEmptyVector
	}

	rows, err := s.pool.Query(ctx, `
SELECT source, content, 1 - (embedding <=> $1::vector) AS score
FROM knowledge_chunks
ORDER BY embedding <=> $1::vector
LIMIT $2`, vectorLiteral(vec), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query passages: %w", err)
	}

	passages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (workflow.Passage, error) {
		var p workflow.Passage
		err := row.Scan(&p.Source, &p.Text, &p.Score)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read passages: %w", err)
	}

	s.logger.DebugContext(ctx, "retrieved passages", slog.Int("count", len(passages)))
	return passages, nil
}

// ReplaceSource atomically replaces every stored chunk of source.
func (s *Store) ReplaceSource(ctx context.Context, source string, chunks []string, vecs [][]float32) error {
	if len(chunks) != len(vecs) {
		return fmt.Errorf("chunk/embedding count mismatch: %d != %d", len(chunks), len(vecs))
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("chunk %d: %w", i, ErrEmptyVector)
		}
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM knowledge_chunks WHERE source = $1`, source); err != nil {
			return fmt.Errorf("failed to delete old chunks: %w", err)
		}

		batch := &pgx.Batch{}
		for i, c := range chunks {
			batch.Queue(`INSERT INTO knowledge_chunks (source, chunk_index, content, embedding) VALUES ($1, $2, $3, $4::vector)`,
				source, i, c, vectorLiteral(vecs[i]))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
		return nil
	})
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM knowledge_chunks`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// Sources lists indexed sources with their chunk counts.
func (s *Store) Sources(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT source, count(*) FROM knowledge_chunks GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			src string
			n   int
		)
		if err := rows.Scan(&src, &n); err != nil {
			return nil, err
		}
		out[src] = n
	}
	return out, rows.Err()
}

// ErrEmptyVector is returned for a zero-length embedding.
var ErrEmptyVector = errors.New("empty embedding vector")

// vectorLiteral formats v in pgvector's text form: [1,2.5,-3].
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 8)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
