package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxreply/internal/pgtest"
)

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[]", vectorLiteral(nil))
	assert.Equal(t, "[1,2.5,-3]", vectorLiteral([]float32{1, 2.5, -3}))
	assert.Equal(t, "[0.1,0]", vectorLiteral([]float32{0.1, 0}))
}

// keywordEmbedder maps text onto a 3-d vector by keyword so the nearest
// neighbour is predictable.
type keywordEmbedder struct {
	err error
}

func embedKeywords(text string) []float32 {
	v := []float32{0.01, 0.01, 0.01}
	for i, kw := range []string{"visa", "fee", "refund"} {
		if strings.Contains(strings.ToLower(text), kw) {
			v[i] = 1
		}
	}
	return v
}

func (k keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if k.err != nil {
		return nil, k.err
	}
	return embedKeywords(text), nil
}

func (k keywordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if k.err != nil {
		return nil, k.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embedKeywords(t)
	}
	return out, nil
}

func TestStore_RetrieveSkipsNonPositiveK(t *testing.T) {
	s := NewStore(nil, keywordEmbedder{}, nil, nil)
	passages, err := s.Retrieve(context.Background(), "visa", 0)
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestStore_RetrieveEmbedError(t *testing.T) {
	boom := errors.New("quota exhausted")
	s := NewStore(nil, keywordEmbedder{err: boom}, nil, nil)

	_, err := s.Retrieve(context.Background(), "visa", 3)
	require.ErrorIs(t, err, boom)
}

func TestStore_Postgres(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()

	store := NewStore(pool, keywordEmbedder{}, nil, nil)
	require.NoError(t, store.EnsureSchema(ctx, 3))
	require.NoError(t, store.EnsureSchema(ctx, 3), "schema creation is idempotent")

	ix := NewIndexer(store, keywordEmbedder{}, 40, 0, nil)
	n, err := ix.IndexText(ctx, "faq.md", "Visa processing takes 15 days.\n\nThe fee is AUD 1,900.\n\nRefunds take 4 weeks.")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	passages, err := store.Retrieve(ctx, "How much is the fee?", 2)
	require.NoError(t, err)
	require.Len(t, passages, 2)
	assert.Equal(t, "The fee is AUD 1,900.", passages[0].Text)
	assert.Equal(t, "faq.md", passages[0].Source)
	assert.Greater(t, passages[0].Score, passages[1].Score)

	t.Run("reindex replaces source", func(t *testing.T) {
		_, err := ix.IndexText(ctx, "faq.md", "Visa processing takes 20 days.")
		require.NoError(t, err)

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		sources, err := store.Sources(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"faq.md": 1}, sources)
	})

	t.Run("mismatched embeddings rejected", func(t *testing.T) {
		err := store.ReplaceSource(ctx, "x.md", []string{"a", "b"}, [][]float32{{1, 0, 0}})
		require.Error(t, err)
		err = store.ReplaceSource(ctx, "x.md", []string{"a"}, [][]float32{{}})
		require.ErrorIs(t, err, ErrEmptyVector)
	})
}
