package main

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"rag-chatbot-platform/internal/ai"
	"rag-chatbot-platform/internal/config"
	"rag-chatbot-platform/internal/logger"
	"rag-chatbot-platform/internal/queue"
	"rag-chatbot-platform/internal/telemetry"
	"rag-chatbot-platform/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("rag-chatbot-worker", cfg.OTLPEndpoint)
		if err != nil {
			logger.Warn("tracing disabled", "error", err)
		} else {
			defer shutdown()
		}
	}

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	ctx := context.Background()

	var embedder services.Embedder
	if cfg.GeminiAPIKey != "" {
		embeddingClient, err := ai.NewEmbeddingClient(ctx, cfg.GeminiAPIKey, cfg.EmbeddingsModel)
		if err != nil {
			log.Fatal("Failed to initialize embedding client:", err)
		}
		defer embeddingClient.Close()
		embedder = embeddingClient
	} else {
		log.Fatal("GEMINI_API_KEY is required for the worker")
	}

	ocr := services.NewOCREngine(cfg)
	if !ocr.Available() {
		logger.Warn("tesseract not found, image uploads will be indexed as placeholders")
	}

	chunker := services.NewChunker(cfg.MaxChunkSize, cfg.ChunkOverlap)
	vectorStore := services.NewVectorStore(services.NewMongoChunkRepository(db), embedder, chunker)
	docStore := services.NewMongoDocumentStore(db)
	extractor := services.NewExtractor(ocr)

	// The worker never enqueues, it only consumes.
	docService := services.NewDocumentService(docStore, extractor, vectorStore, nil, cfg.FileStorageDir)
	processor := queue.NewTaskProcessor(docService)

	redisOpt, err := config.AsynqRedisOpt(cfg)
	if err != nil {
		log.Fatal("Failed to resolve Redis settings:", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				"documents": 8,
				"default":   2,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskDocumentProcess, processor.HandleDocumentProcess)

	logger.Info("worker starting",
		"concurrency", cfg.WorkerConcurrency,
		"redis", cfg.RedisURL,
	)

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
