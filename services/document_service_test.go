package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"rag-chatbot-platform/models"
)

// fakeDocumentStore tracks documents in memory and records the status
// transitions each test drives.
type fakeDocumentStore struct {
	docs        map[string]*models.Document
	transitions []string
}

func newFakeDocumentStore(docs ...*models.Document) *fakeDocumentStore {
	s := &fakeDocumentStore{docs: make(map[string]*models.Document)}
	for _, d := range docs {
		if d.ID.IsZero() {
			d.ID = primitive.NewObjectID()
		}
		if d.Status == "" {
			d.Status = models.StatusPending
		}
		s.docs[d.ID.Hex()] = d
	}
	return s
}

func (s *fakeDocumentStore) Create(_ context.Context, doc *models.Document) error {
	doc.ID = primitive.NewObjectID()
	doc.Status = models.StatusPending
	s.docs[doc.ID.Hex()] = doc
	return nil
}

func (s *fakeDocumentStore) Get(_ context.Context, userID, documentID string) (*models.Document, error) {
	doc, ok := s.docs[documentID]
	if !ok || doc.UserID != userID {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

func (s *fakeDocumentStore) List(_ context.Context, userID string, _, _ int, _ string) ([]models.Document, int64, error) {
	var out []models.Document
	for _, d := range s.docs {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, int64(len(out)), nil
}

func (s *fakeDocumentStore) SetProcessing(_ context.Context, documentID string) error {
	return s.transition(documentID, models.StatusProcessing)
}

func (s *fakeDocumentStore) MarkCompleted(_ context.Context, documentID string, chunkCount int) error {
	if err := s.transition(documentID, models.StatusCompleted); err != nil {
		return err
	}
	s.docs[documentID].ChunkCount = chunkCount
	s.docs[documentID].ErrorMessage = ""
	return nil
}

func (s *fakeDocumentStore) MarkFailed(_ context.Context, documentID, message string) error {
	if err := s.transition(documentID, models.StatusFailed); err != nil {
		return err
	}
	s.docs[documentID].ErrorMessage = message
	return nil
}

func (s *fakeDocumentStore) ResetForReprocess(_ context.Context, documentID string) error {
	if err := s.transition(documentID, models.StatusPending); err != nil {
		return err
	}
	s.docs[documentID].ChunkCount = 0
	s.docs[documentID].ErrorMessage = ""
	return nil
}

func (s *fakeDocumentStore) Delete(_ context.Context, userID, documentID string) error {
	if _, err := s.Get(context.Background(), userID, documentID); err != nil {
		return err
	}
	delete(s.docs, documentID)
	return nil
}

func (s *fakeDocumentStore) transition(documentID, status string) error {
	doc, ok := s.docs[documentID]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.Status = status
	s.transitions = append(s.transitions, status)
	return nil
}

type fakeExtractor struct {
	text string
	err  error
}

func (e *fakeExtractor) Extract(_ context.Context, _ string, _ models.DocumentType) (string, error) {
	return e.text, e.err
}

type fakeIndex struct {
	chunkCount int
	addErr     error
	deleted    []string
	cleared    []string
}

func (i *fakeIndex) AddDocument(_ context.Context, _, _, _, _ string) (int, error) {
	if i.addErr != nil {
		return 0, i.addErr
	}
	return i.chunkCount, nil
}

func (i *fakeIndex) DeleteDocument(_ context.Context, _, documentID string) (bool, error) {
	i.deleted = append(i.deleted, documentID)
	return true, nil
}

func (i *fakeIndex) Clear(_ context.Context, userID string) error {
	i.cleared = append(i.cleared, userID)
	return nil
}

type fakeEnqueuer struct {
	enqueued []string
	err      error
}

func (e *fakeEnqueuer) EnqueueProcess(_ context.Context, _, documentID, _ string, _ models.DocumentType) error {
	if e.err != nil {
		return e.err
	}
	e.enqueued = append(e.enqueued, documentID)
	return nil
}

func pendingDoc(userID, filePath string) *models.Document {
	return &models.Document{
		ID:               primitive.NewObjectID(),
		UserID:           userID,
		OriginalFilename: "report.pdf",
		FilePath:         filePath,
		FileType:         models.TypePDF,
		Status:           models.StatusPending,
	}
}

func TestProcessHappyPath(t *testing.T) {
	doc := pendingDoc("u1", "/tmp/report.pdf")
	store := newFakeDocumentStore(doc)
	svc := NewDocumentService(store, &fakeExtractor{text: "extracted content"}, &fakeIndex{chunkCount: 3}, nil, t.TempDir())

	svc.Process(context.Background(), "u1", doc.ID.Hex(), doc.FilePath, doc.FileType)

	assert.Equal(t, []string{models.StatusProcessing, models.StatusCompleted}, store.transitions)
	assert.Equal(t, models.StatusCompleted, doc.Status)
	assert.Equal(t, 3, doc.ChunkCount)
	assert.Empty(t, doc.ErrorMessage)
}

func TestProcessExtractionFailure(t *testing.T) {
	doc := pendingDoc("u1", "/tmp/report.pdf")
	store := newFakeDocumentStore(doc)
	svc := NewDocumentService(store, &fakeExtractor{err: errors.New("corrupt file")}, &fakeIndex{}, nil, t.TempDir())

	svc.Process(context.Background(), "u1", doc.ID.Hex(), doc.FilePath, doc.FileType)

	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.Equal(t, "corrupt file", doc.ErrorMessage)
}

func TestProcessEmptyExtraction(t *testing.T) {
	doc := pendingDoc("u1", "/tmp/report.pdf")
	store := newFakeDocumentStore(doc)
	svc := NewDocumentService(store, &fakeExtractor{text: "   \n "}, &fakeIndex{}, nil, t.TempDir())

	svc.Process(context.Background(), "u1", doc.ID.Hex(), doc.FilePath, doc.FileType)

	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.Equal(t, emptyExtractionMessage, doc.ErrorMessage)
}

func TestProcessIndexingFailure(t *testing.T) {
	doc := pendingDoc("u1", "/tmp/report.pdf")
	store := newFakeDocumentStore(doc)
	svc := NewDocumentService(store, &fakeExtractor{text: "content"}, &fakeIndex{addErr: errors.New("embedding backend down")}, nil, t.TempDir())

	svc.Process(context.Background(), "u1", doc.ID.Hex(), doc.FilePath, doc.FileType)

	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.Contains(t, doc.ErrorMessage, "embedding backend down")
}

func TestProcessErrorMessageTruncated(t *testing.T) {
	doc := pendingDoc("u1", "/tmp/report.pdf")
	store := newFakeDocumentStore(doc)
	long := errors.New(strings.Repeat("e", 900))
	svc := NewDocumentService(store, &fakeExtractor{err: long}, &fakeIndex{}, nil, t.TempDir())

	svc.Process(context.Background(), "u1", doc.ID.Hex(), doc.FilePath, doc.FileType)

	assert.Len(t, doc.ErrorMessage, maxErrorMessageLength)
}

func TestCreateAndEnqueue(t *testing.T) {
	store := newFakeDocumentStore()
	enq := &fakeEnqueuer{}
	svc := NewDocumentService(store, nil, &fakeIndex{}, enq, t.TempDir())

	doc := &models.Document{UserID: "u1", OriginalFilename: "a.txt", FileType: models.TypeText}
	require.NoError(t, svc.CreateAndEnqueue(context.Background(), doc))

	assert.False(t, doc.ID.IsZero())
	assert.Equal(t, models.StatusPending, doc.Status)
	assert.Equal(t, []string{doc.ID.Hex()}, enq.enqueued)
}

func TestReprocess(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(filePath, []byte("%PDF"), 0o600))

	doc := pendingDoc("u1", filePath)
	doc.Status = models.StatusFailed
	doc.ErrorMessage = "previous failure"
	store := newFakeDocumentStore(doc)
	index := &fakeIndex{}
	enq := &fakeEnqueuer{}
	svc := NewDocumentService(store, nil, index, enq, dir)

	require.NoError(t, svc.Reprocess(context.Background(), "u1", doc.ID.Hex()))

	assert.Equal(t, models.StatusPending, doc.Status)
	assert.Empty(t, doc.ErrorMessage)
	assert.Equal(t, []string{doc.ID.Hex()}, index.deleted)
	assert.Equal(t, []string{doc.ID.Hex()}, enq.enqueued)
}

func TestReprocessMissingFile(t *testing.T) {
	doc := pendingDoc("u1", filepath.Join(t.TempDir(), "gone.pdf"))
	store := newFakeDocumentStore(doc)
	svc := NewDocumentService(store, nil, &fakeIndex{}, &fakeEnqueuer{}, t.TempDir())

	err := svc.Reprocess(context.Background(), "u1", doc.ID.Hex())
	assert.ErrorIs(t, err, ErrFileMissing)
}

func TestReprocessWrongOwner(t *testing.T) {
	doc := pendingDoc("u1", "/tmp/x.pdf")
	store := newFakeDocumentStore(doc)
	svc := NewDocumentService(store, nil, &fakeIndex{}, &fakeEnqueuer{}, t.TempDir())

	err := svc.Reprocess(context.Background(), "intruder", doc.ID.Hex())
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestDeleteRemovesFileAndVectors(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "doomed.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("bye"), 0o600))

	doc := pendingDoc("u1", filePath)
	store := newFakeDocumentStore(doc)
	index := &fakeIndex{}
	svc := NewDocumentService(store, nil, index, nil, dir)

	require.NoError(t, svc.Delete(context.Background(), "u1", doc.ID.Hex()))

	assert.NoFileExists(t, filePath)
	assert.Equal(t, []string{doc.ID.Hex()}, index.deleted)
	_, err := store.Get(context.Background(), "u1", doc.ID.Hex())
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestDeleteToleratesMissingFile(t *testing.T) {
	doc := pendingDoc("u1", filepath.Join(t.TempDir(), "already-gone.txt"))
	store := newFakeDocumentStore(doc)
	svc := NewDocumentService(store, nil, &fakeIndex{}, nil, t.TempDir())

	assert.NoError(t, svc.Delete(context.Background(), "u1", doc.ID.Hex()))
}

func TestSaveUpload(t *testing.T) {
	dir := t.TempDir()
	svc := NewDocumentService(newFakeDocumentStore(), nil, &fakeIndex{}, nil, dir)

	path, uniqueName, size, err := svc.SaveUpload("u1", "My Report (final).PDF", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
	assert.True(t, strings.HasSuffix(uniqueName, ".pdf"))
	assert.True(t, strings.HasPrefix(path, filepath.Join(dir, "u1")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestUniqueFilename(t *testing.T) {
	a := uniqueFilename("notes.txt")
	b := uniqueFilename("notes.txt")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasSuffix(a, ".txt"))

	weird := uniqueFilename("../../etc/passwd")
	assert.NotContains(t, weird, "/")

	noStem := uniqueFilename("???.png")
	assert.True(t, strings.HasPrefix(noStem, "upload_"))
}

func TestEraseUserData(t *testing.T) {
	index := &fakeIndex{}
	svc := NewDocumentService(newFakeDocumentStore(), nil, index, nil, t.TempDir())

	require.NoError(t, svc.EraseUserData(context.Background(), "u1"))
	assert.Equal(t, []string{"u1"}, index.cleared)
}
