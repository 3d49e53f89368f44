package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/teemow/inboxreply/internal/instrumentation"
)

// Embedding task types understood by the Gemini embedding models.
const (
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

// maxEmbedBatch is the largest number of inputs sent in one request.
const maxEmbedBatch = 100

// EmbedQuery embeds a search query.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Embed(ctx, []string{text}, TaskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocuments embeds passages for storage.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return c.Embed(ctx, texts, TaskRetrievalDocument)
}

// Embed returns one vector per input, in order, batching large inputs.
func (c *Client) Embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	cfg := &genai.EmbedContentConfig{TaskType: task}
	if c.opts.Dimensions > 0 {
		cfg.OutputDimensionality = genai.Ptr(int32(c.opts.Dimensions))
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := min(start+maxEmbedBatch, len(texts))
		batch := texts[start:end]

		contents := make([]*genai.Content, len(batch))
		for i, t := range batch {
			contents[i] = genai.NewContentFromText(t, genai.RoleUser)
		}

		vecs, err := call(ctx, c, c.opts.EmbedModel, instrumentation.OperationEmbed, func(ctx context.Context) ([][]float32, error) {
			resp, err := c.emb.EmbedContent(ctx, c.opts.EmbedModel, contents, cfg)
			if err != nil {
				return nil, err
			}
			if len(resp.Embeddings) != len(contents) {
				return nil, fmt.Errorf("expected %d embeddings, got %d", len(contents), len(resp.Embeddings))
			}
			vecs := make([][]float32, len(resp.Embeddings))
			for i, e := range resp.Embeddings {
				vecs[i] = e.Values
			}
			return vecs, nil
		})
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}
