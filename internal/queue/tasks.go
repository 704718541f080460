package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"rag-chatbot-platform/internal/logger"
	"rag-chatbot-platform/models"
	"rag-chatbot-platform/services"
)

const TaskDocumentProcess = "document:process"

type DocumentProcessPayload struct {
	UserID     string              `json:"user_id"`
	DocumentID string              `json:"document_id"`
	FilePath   string              `json:"file_path"`
	FileType   models.DocumentType `json:"file_type"`
}

// NewDocumentProcessTask builds the asynq task for one document job. Retries
// are disabled: a failed pipeline run ends in a terminal FAILED document and
// only the explicit reprocess action runs it again.
func NewDocumentProcessTask(payload DocumentProcessPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskDocumentProcess,
		data,
		asynq.MaxRetry(0),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("documents"),
	), nil
}

// Client wraps the asynq producer behind the services.Enqueuer boundary.
type Client struct {
	inner *asynq.Client
}

func NewClient(redisOpt asynq.RedisClientOpt) *Client {
	return &Client{inner: asynq.NewClient(redisOpt)}
}

func (c *Client) EnqueueProcess(ctx context.Context, userID, documentID, filePath string, fileType models.DocumentType) error {
	task, err := NewDocumentProcessTask(DocumentProcessPayload{
		UserID:     userID,
		DocumentID: documentID,
		FilePath:   filePath,
		FileType:   fileType,
	})
	if err != nil {
		return fmt.Errorf("failed to build task: %w", err)
	}

	info, err := c.inner.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	logger.Info("enqueued document job", "task_id", info.ID, "document_id", documentID)
	return nil
}

func (c *Client) Close() error {
	return c.inner.Close()
}

// TaskProcessor dispatches consumed tasks into the document lifecycle.
type TaskProcessor struct {
	documents *services.DocumentService
}

func NewTaskProcessor(documents *services.DocumentService) *TaskProcessor {
	return &TaskProcessor{documents: documents}
}

// HandleDocumentProcess runs one document job. It always returns nil for
// pipeline outcomes: the lifecycle records success or failure on the document
// itself, and a worker error here would only trigger retries the design
// forbids. Only an undecodable payload is surfaced, marked unretryable.
func (p *TaskProcessor) HandleDocumentProcess(ctx context.Context, t *asynq.Task) error {
	var payload DocumentProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	logger.Info("processing document", "document_id", payload.DocumentID, "type", string(payload.FileType))
	p.documents.Process(ctx, payload.UserID, payload.DocumentID, payload.FilePath, payload.FileType)
	return nil
}
