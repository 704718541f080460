package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"rag-chatbot-platform/internal/logger"
)

// ChunkMetadata travels with every stored chunk and comes back on retrieval.
type ChunkMetadata struct {
	DocumentID  string `bson:"document_id" json:"document_id"`
	Filename    string `bson:"filename" json:"filename"`
	ChunkIndex  int    `bson:"chunk_index" json:"chunk_index"`
	TotalChunks int    `bson:"total_chunks" json:"total_chunks"`
}

// ChunkRecord is one embedded chunk inside an owner's namespace.
type ChunkRecord struct {
	ID       string        `bson:"_id"`
	Text     string        `bson:"text"`
	Vector   []float32     `bson:"vector"`
	Metadata ChunkMetadata `bson:"metadata"`
}

// RetrievedContext is an ephemeral search hit. RelevanceScore is
// 1 - cosine distance; higher is more relevant.
type RetrievedContext struct {
	Content        string
	Metadata       ChunkMetadata
	RelevanceScore float64
}

// Embedder produces one vector per input text, in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkRepository is the storage behind a VectorStore. A namespace is the
// per-owner isolation boundary; no call ever crosses namespaces.
type ChunkRepository interface {
	Upsert(ctx context.Context, namespace string, records []ChunkRecord) error
	All(ctx context.Context, namespace string) ([]ChunkRecord, error)
	DeleteByDocument(ctx context.Context, namespace, documentID string) (int64, error)
	Count(ctx context.Context, namespace string) (int64, error)
	Drop(ctx context.Context, namespace string) error
}

// VectorStore chunks, embeds and indexes document text per owner, and ranks
// stored chunks against query embeddings by cosine distance.
type VectorStore struct {
	repo     ChunkRepository
	embedder Embedder
	chunker  Chunker
}

func NewVectorStore(repo ChunkRepository, embedder Embedder, chunker Chunker) *VectorStore {
	return &VectorStore{repo: repo, embedder: embedder, chunker: chunker}
}

func namespaceFor(userID string) string {
	return fmt.Sprintf("user_%s_chunks", userID)
}

// AddDocument chunks the text, embeds every chunk and upserts the records
// with deterministic ids "<documentID>_<chunkIndex>". Returns the number of
// chunks stored; zero chunks is a no-op, not an error.
func (vs *VectorStore) AddDocument(ctx context.Context, userID, documentID, text, filename string) (int, error) {
	chunks := vs.chunker.Split(text)
	if len(chunks) == 0 {
		logger.Warn("no chunks created for document", "document_id", documentID)
		return 0, nil
	}

	vectors, err := vs.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embedding document %s: %w", documentID, err)
	}

	records := make([]ChunkRecord, len(chunks))
	for i, chunk := range chunks {
		records[i] = ChunkRecord{
			ID:     fmt.Sprintf("%s_%d", documentID, i),
			Text:   chunk,
			Vector: vectors[i],
			Metadata: ChunkMetadata{
				DocumentID:  documentID,
				Filename:    filename,
				ChunkIndex:  i,
				TotalChunks: len(chunks),
			},
		}
	}

	if err := vs.repo.Upsert(ctx, namespaceFor(userID), records); err != nil {
		return 0, fmt.Errorf("indexing document %s: %w", documentID, err)
	}

	logger.Info("indexed document", "document_id", documentID, "chunks", len(chunks))
	return len(chunks), nil
}

// Search returns up to k chunks ordered by descending relevance. Retrieval is
// advisory relative to answer generation, so every internal failure degrades
// to an empty result instead of propagating.
func (vs *VectorStore) Search(ctx context.Context, userID, query string, k int) []RetrievedContext {
	if k <= 0 {
		return nil
	}
	ns := namespaceFor(userID)

	total, err := vs.repo.Count(ctx, ns)
	if err != nil {
		logger.Error("vector search failed counting namespace", "user_id", userID, "error", err)
		return nil
	}
	if total == 0 {
		return nil
	}

	queryVectors, err := vs.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		logger.Error("vector search failed embedding query", "user_id", userID, "error", err)
		return nil
	}
	queryVector := queryVectors[0]

	records, err := vs.repo.All(ctx, ns)
	if err != nil {
		logger.Error("vector search failed loading namespace", "user_id", userID, "error", err)
		return nil
	}

	type scored struct {
		record   ChunkRecord
		distance float64
	}
	ranked := make([]scored, len(records))
	for i, rec := range records {
		ranked[i] = scored{record: rec, distance: cosineDistance(queryVector, rec.Vector)}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].distance != ranked[j].distance {
			return ranked[i].distance < ranked[j].distance
		}
		return ranked[i].record.ID < ranked[j].record.ID
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	results := make([]RetrievedContext, k)
	for i := 0; i < k; i++ {
		results[i] = RetrievedContext{
			Content:        ranked[i].record.Text,
			Metadata:       ranked[i].record.Metadata,
			RelevanceScore: 1 - ranked[i].distance,
		}
	}
	return results
}

// DeleteDocument removes every chunk of the document from the owner's
// namespace. Returns false when nothing was stored; safe to retry.
func (vs *VectorStore) DeleteDocument(ctx context.Context, userID, documentID string) (bool, error) {
	deleted, err := vs.repo.DeleteByDocument(ctx, namespaceFor(userID), documentID)
	if err != nil {
		return false, fmt.Errorf("deleting document %s from index: %w", documentID, err)
	}
	if deleted == 0 {
		return false, nil
	}
	logger.Info("deleted document chunks", "document_id", documentID, "count", deleted)
	return true, nil
}

// Count reports the number of chunks in the owner's namespace.
func (vs *VectorStore) Count(ctx context.Context, userID string) (int, error) {
	n, err := vs.repo.Count(ctx, namespaceFor(userID))
	return int(n), err
}

// Clear removes the owner's entire namespace. A namespace that never existed
// is not an error.
func (vs *VectorStore) Clear(ctx context.Context, userID string) error {
	return vs.repo.Drop(ctx, namespaceFor(userID))
}

// cosineDistance returns 1 - cosine similarity. Degenerate vectors rank last.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
