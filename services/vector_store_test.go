package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder returns a fixed vector per text, defaulting to the zero-ish
// unit vector so untracked texts still embed.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := s.vectors[text]; ok {
			out[i] = v
		} else {
			out[i] = []float32{1, 0, 0}
		}
	}
	return out, nil
}

// memoryChunkRepository is an in-process ChunkRepository for tests.
type memoryChunkRepository struct {
	namespaces map[string]map[string]ChunkRecord
}

func newMemoryChunkRepository() *memoryChunkRepository {
	return &memoryChunkRepository{namespaces: make(map[string]map[string]ChunkRecord)}
}

func (r *memoryChunkRepository) Upsert(_ context.Context, namespace string, records []ChunkRecord) error {
	ns, ok := r.namespaces[namespace]
	if !ok {
		ns = make(map[string]ChunkRecord)
		r.namespaces[namespace] = ns
	}
	for _, rec := range records {
		ns[rec.ID] = rec
	}
	return nil
}

func (r *memoryChunkRepository) All(_ context.Context, namespace string) ([]ChunkRecord, error) {
	var out []ChunkRecord
	for _, rec := range r.namespaces[namespace] {
		out = append(out, rec)
	}
	return out, nil
}

func (r *memoryChunkRepository) DeleteByDocument(_ context.Context, namespace, documentID string) (int64, error) {
	var deleted int64
	for id, rec := range r.namespaces[namespace] {
		if rec.Metadata.DocumentID == documentID {
			delete(r.namespaces[namespace], id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *memoryChunkRepository) Count(_ context.Context, namespace string) (int64, error) {
	return int64(len(r.namespaces[namespace])), nil
}

func (r *memoryChunkRepository) Drop(_ context.Context, namespace string) error {
	delete(r.namespaces, namespace)
	return nil
}

func TestVectorStoreAddDocument(t *testing.T) {
	repo := newMemoryChunkRepository()
	vs := NewVectorStore(repo, &stubEmbedder{}, NewChunker(1000, 200))

	count, err := vs.AddDocument(context.Background(), "u1", "doc1", "some document text", "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	records, _ := repo.All(context.Background(), "user_u1_chunks")
	require.Len(t, records, 1)
	assert.Equal(t, "doc1_0", records[0].ID)
	assert.Equal(t, "report.pdf", records[0].Metadata.Filename)
	assert.Equal(t, 1, records[0].Metadata.TotalChunks)
}

func TestVectorStoreAddDocumentEmptyText(t *testing.T) {
	repo := newMemoryChunkRepository()
	vs := NewVectorStore(repo, &stubEmbedder{}, NewChunker(1000, 200))

	count, err := vs.AddDocument(context.Background(), "u1", "doc1", "   ", "empty.txt")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	total, _ := vs.Count(context.Background(), "u1")
	assert.Equal(t, 0, total)
}

func TestVectorStoreAddDocumentEmbedderError(t *testing.T) {
	repo := newMemoryChunkRepository()
	vs := NewVectorStore(repo, &stubEmbedder{err: errors.New("quota exceeded")}, NewChunker(1000, 200))

	_, err := vs.AddDocument(context.Background(), "u1", "doc1", "text", "a.txt")
	assert.Error(t, err)
}

func TestVectorStoreSearchRanking(t *testing.T) {
	repo := newMemoryChunkRepository()
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"query": {1, 0, 0},
	}}
	vs := NewVectorStore(repo, embedder, NewChunker(1000, 200))

	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, "user_u1_chunks", []ChunkRecord{
		{ID: "d1_0", Text: "orthogonal", Vector: []float32{0, 1, 0}, Metadata: ChunkMetadata{DocumentID: "d1", Filename: "a.txt"}},
		{ID: "d2_0", Text: "exact", Vector: []float32{1, 0, 0}, Metadata: ChunkMetadata{DocumentID: "d2", Filename: "b.txt"}},
		{ID: "d3_0", Text: "diagonal", Vector: []float32{1, 1, 0}, Metadata: ChunkMetadata{DocumentID: "d3", Filename: "c.txt"}},
	}))

	results := vs.Search(ctx, "u1", "query", 2)
	require.Len(t, results, 2)
	assert.Equal(t, "exact", results[0].Content)
	assert.Equal(t, "diagonal", results[1].Content)
	assert.InDelta(t, 1.0, results[0].RelevanceScore, 1e-9)
	assert.Greater(t, results[0].RelevanceScore, results[1].RelevanceScore)
}

func TestVectorStoreSearchCapsK(t *testing.T) {
	repo := newMemoryChunkRepository()
	vs := NewVectorStore(repo, &stubEmbedder{}, NewChunker(1000, 200))

	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, "user_u1_chunks", []ChunkRecord{
		{ID: "d1_0", Text: "only", Vector: []float32{1, 0, 0}},
	}))

	assert.Len(t, vs.Search(ctx, "u1", "q", 5), 1)
	assert.Nil(t, vs.Search(ctx, "u1", "q", 0))
}

func TestVectorStoreSearchEmptyNamespace(t *testing.T) {
	vs := NewVectorStore(newMemoryChunkRepository(), &stubEmbedder{}, NewChunker(1000, 200))
	assert.Nil(t, vs.Search(context.Background(), "nobody", "q", 5))
}

func TestVectorStoreNamespaceIsolation(t *testing.T) {
	repo := newMemoryChunkRepository()
	vs := NewVectorStore(repo, &stubEmbedder{}, NewChunker(1000, 200))

	ctx := context.Background()
	_, err := vs.AddDocument(ctx, "alice", "doc1", "alice's private notes", "notes.txt")
	require.NoError(t, err)

	assert.Nil(t, vs.Search(ctx, "bob", "notes", 5))
	count, _ := vs.Count(ctx, "bob")
	assert.Equal(t, 0, count)
}

func TestVectorStoreDeleteDocumentIdempotent(t *testing.T) {
	repo := newMemoryChunkRepository()
	vs := NewVectorStore(repo, &stubEmbedder{}, NewChunker(1000, 200))

	ctx := context.Background()
	_, err := vs.AddDocument(ctx, "u1", "doc1", "content to delete", "x.txt")
	require.NoError(t, err)

	deleted, err := vs.DeleteDocument(ctx, "u1", "doc1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = vs.DeleteDocument(ctx, "u1", "doc1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestVectorStoreClear(t *testing.T) {
	repo := newMemoryChunkRepository()
	vs := NewVectorStore(repo, &stubEmbedder{}, NewChunker(1000, 200))

	ctx := context.Background()
	_, err := vs.AddDocument(ctx, "u1", "doc1", "stored text", "x.txt")
	require.NoError(t, err)

	require.NoError(t, vs.Clear(ctx, "u1"))
	count, err := vs.Count(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// clearing an absent namespace is fine
	assert.NoError(t, vs.Clear(ctx, "ghost"))
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, cosineDistance([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 1, cosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2, cosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 1.0, cosineDistance([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 1.0, cosineDistance([]float32{1}, []float32{1, 0}))
}
