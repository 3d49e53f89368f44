package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/teemow/inboxreply/internal/logging"
)

// DocumentEmbedder embeds passages for storage.
type DocumentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// sourceWriter is the part of Store the Indexer writes through.
type sourceWriter interface {
	ReplaceSource(ctx context.Context, source string, chunks []string, vecs [][]float32) error
}

// Indexer chunks, embeds and stores knowledge files.
type Indexer struct {
	store    sourceWriter
	embedder DocumentEmbedder
	size     int
	overlap  int
	logger   *slog.Logger
}

// NewIndexer creates an Indexer writing to store.
func NewIndexer(store *Store, embedder DocumentEmbedder, size, overlap int, logger *slog.Logger) *Indexer {
	return newIndexer(store, embedder, size, overlap, logger)
}

func newIndexer(store sourceWriter, embedder DocumentEmbedder, size, overlap int, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		store:    store,
		embedder: embedder,
		size:     size,
		overlap:  overlap,
		logger:   logging.WithOperation(logger, "knowledge.index"),
	}
}

// IndexFile replaces the stored chunks of path and returns how many chunks
// were written. The source key is the file's base name.
func (ix *Indexer) IndexFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ix.IndexText(ctx, filepath.Base(path), string(data))
}

// IndexText replaces the stored chunks of source with the chunks of text.
func (ix *Indexer) IndexText(ctx context.Context, source, text string) (int, error) {
	chunks := Chunk(text, ix.size, ix.overlap)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%s: no content to index", source)
	}

	vecs, err := ix.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("failed to embed %s: %w", source, err)
	}

	if err := ix.store.ReplaceSource(ctx, source, chunks, vecs); err != nil {
		return 0, err
	}

	ix.logger.InfoContext(ctx, "indexed knowledge source",
		slog.String("source", source),
		slog.Int("chunks", len(chunks)))
	return len(chunks), nil
}
