package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"rag-chatbot-platform/internal/logger"
	"rag-chatbot-platform/models"
	"rag-chatbot-platform/utils"
)

// ErrFileMissing is returned when a reprocess targets a document whose
// backing file no longer exists on disk.
var ErrFileMissing = errors.New("document file not found on server")

const (
	emptyExtractionMessage = "no text could be extracted from the document"
	maxErrorMessageLength  = 500
)

// TextExtractor is the extraction boundary the lifecycle depends on.
type TextExtractor interface {
	Extract(ctx context.Context, filePath string, fileType models.DocumentType) (string, error)
}

// DocumentIndex is the vector-index boundary the lifecycle depends on.
type DocumentIndex interface {
	AddDocument(ctx context.Context, userID, documentID, text, filename string) (int, error)
	DeleteDocument(ctx context.Context, userID, documentID string) (bool, error)
	Clear(ctx context.Context, userID string) error
}

// Enqueuer schedules an asynchronous processing job for a document.
type Enqueuer interface {
	EnqueueProcess(ctx context.Context, userID, documentID, filePath string, fileType models.DocumentType) error
}

// DocumentService drives a document through
// pending -> processing -> {completed, failed} and owns the files behind it.
type DocumentService struct {
	store      DocumentStore
	extractor  TextExtractor
	index      DocumentIndex
	enqueuer   Enqueuer
	storageDir string
}

func NewDocumentService(store DocumentStore, extractor TextExtractor, index DocumentIndex, enqueuer Enqueuer, storageDir string) *DocumentService {
	return &DocumentService{
		store:      store,
		extractor:  extractor,
		index:      index,
		enqueuer:   enqueuer,
		storageDir: storageDir,
	}
}

// SaveUpload streams an uploaded file into the owner's storage directory
// under a collision-free name. Returns the stored path, the unique filename
// and the number of bytes written.
func (ds *DocumentService) SaveUpload(userID, originalFilename string, src io.Reader) (string, string, int64, error) {
	userDir := filepath.Join(ds.storageDir, userID)
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return "", "", 0, fmt.Errorf("failed to create upload directory: %w", err)
	}

	uniqueName := uniqueFilename(originalFilename)
	dstPath := filepath.Join(userDir, uniqueName)

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to open destination: %w", err)
	}

	written, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dstPath)
		return "", "", 0, fmt.Errorf("failed to save upload: %w", err)
	}

	return dstPath, uniqueName, written, nil
}

// uniqueFilename keeps a sanitized stem, appends a short random suffix and
// preserves the extension so type detection still works on the stored name.
func uniqueFilename(original string) string {
	base := filepath.Base(original)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	var b strings.Builder
	for _, r := range stem {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-', r == ' ':
			b.WriteRune(r)
		}
	}
	safe := b.String()
	if len(safe) > 50 {
		safe = safe[:50]
	}
	if safe == "" {
		safe = "upload"
	}

	return fmt.Sprintf("%s_%s%s", safe, uuid.NewString()[:8], strings.ToLower(ext))
}

// CreateAndEnqueue persists a pending Document record and schedules its
// processing job. The caller gets the record back immediately; extraction and
// indexing happen on the worker.
func (ds *DocumentService) CreateAndEnqueue(ctx context.Context, doc *models.Document) error {
	if err := ds.store.Create(ctx, doc); err != nil {
		return fmt.Errorf("failed to create document record: %w", err)
	}

	if err := ds.enqueuer.EnqueueProcess(ctx, doc.UserID, doc.ID.Hex(), doc.FilePath, doc.FileType); err != nil {
		// The record stays pending; reprocess can pick it up later.
		return fmt.Errorf("failed to enqueue processing job: %w", err)
	}
	return nil
}

// Process is the asynchronous job body. Every pipeline failure is converted
// into a terminal FAILED state here; nothing escapes to crash the worker and
// nothing triggers an automatic retry.
func (ds *DocumentService) Process(ctx context.Context, userID, documentID, filePath string, fileType models.DocumentType) {
	if err := ds.store.SetProcessing(ctx, documentID); err != nil {
		logger.Error("failed to mark document processing", "document_id", documentID, "error", err)
		return
	}

	text, err := ds.extractor.Extract(ctx, filePath, fileType)
	if err != nil {
		logger.Error("extraction failed", "document_id", documentID, "error", err)
		ds.fail(documentID, truncateError(err))
		return
	}

	if strings.TrimSpace(text) == "" {
		// Extraction succeeded but produced nothing usable; distinct from a
		// crash so the user sees an actionable message.
		ds.fail(documentID, emptyExtractionMessage)
		return
	}

	doc, err := ds.store.Get(ctx, userID, documentID)
	if err != nil {
		logger.Error("document disappeared during processing", "document_id", documentID, "error", err)
		return
	}

	chunkCount, err := ds.index.AddDocument(ctx, userID, documentID, text, doc.OriginalFilename)
	if err != nil {
		logger.Error("indexing failed", "document_id", documentID, "error", err)
		ds.fail(documentID, truncateError(err))
		return
	}

	if err := ds.store.MarkCompleted(ctx, documentID, chunkCount); err != nil {
		logger.Error("failed to mark document completed", "document_id", documentID, "error", err)
		return
	}
	logger.Info("document processed", "document_id", documentID, "chunks", chunkCount)
}

func (ds *DocumentService) fail(documentID, message string) {
	// Status writes use a fresh context so a cancelled job can still record
	// its outcome.
	ctx, cancel := utils.WithTimeout(context.Background())
	defer cancel()
	if err := ds.store.MarkFailed(ctx, documentID, message); err != nil {
		logger.Error("failed to mark document failed", "document_id", documentID, "error", err)
	}
}

func truncateError(err error) string {
	return truncateChars(err.Error(), maxErrorMessageLength)
}

// Reprocess resets a document to pending and schedules a fresh job. Only
// valid while the backing file still exists; existing vectors are removed
// best-effort first.
func (ds *DocumentService) Reprocess(ctx context.Context, userID, documentID string) error {
	doc, err := ds.store.Get(ctx, userID, documentID)
	if err != nil {
		return err
	}

	if _, err := os.Stat(doc.FilePath); err != nil {
		return ErrFileMissing
	}

	if _, err := ds.index.DeleteDocument(ctx, userID, documentID); err != nil {
		logger.Warn("failed to delete existing vectors before reprocess", "document_id", documentID, "error", err)
	}

	if err := ds.store.ResetForReprocess(ctx, documentID); err != nil {
		return fmt.Errorf("failed to reset document: %w", err)
	}

	return ds.enqueuer.EnqueueProcess(ctx, userID, documentID, doc.FilePath, doc.FileType)
}

// Delete removes the document's vectors, its file and finally the metadata
// record. Vector and file removal are best-effort and idempotent.
func (ds *DocumentService) Delete(ctx context.Context, userID, documentID string) error {
	doc, err := ds.store.Get(ctx, userID, documentID)
	if err != nil {
		return err
	}

	if _, err := ds.index.DeleteDocument(ctx, userID, documentID); err != nil {
		logger.Warn("failed to delete document vectors", "document_id", documentID, "error", err)
	}

	if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to delete document file", "path", doc.FilePath, "error", err)
	}

	return ds.store.Delete(ctx, userID, documentID)
}

// EraseUserData drops the owner's entire vector namespace. Used for
// account-level data erasure; document records are deleted by their own flow.
func (ds *DocumentService) EraseUserData(ctx context.Context, userID string) error {
	return ds.index.Clear(ctx, userID)
}
