package ai

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
)

// EmbeddingClient produces embedding vectors via the Google Generative AI
// API (text-embedding-004 by default).
type EmbeddingClient struct {
	client *genai.Client
	model  string
}

func NewEmbeddingClient(ctx context.Context, apiKey, model string) (*EmbeddingClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &EmbeddingClient{client: client, model: model}, nil
}

// EmbedBatch returns one vector per input text, in input order.
func (ec *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	tracer := otel.Tracer("embedding-client")
	ctx, span := tracer.Start(ctx, "embeddings.batch")
	defer span.End()
	span.SetAttributes(
		attribute.String("embeddings.model", ec.model),
		attribute.Int("embeddings.count", len(texts)),
	)

	em := ec.client.EmbeddingModel(ec.model)
	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		span.SetAttributes(attribute.Bool("embeddings.error", true))
		return nil, fmt.Errorf("batch embedding failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// Close releases the underlying API client.
func (ec *EmbeddingClient) Close() error {
	if ec.client != nil {
		return ec.client.Close()
	}
	return nil
}
