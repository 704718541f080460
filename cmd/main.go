package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"rag-chatbot-platform/internal/ai"
	"rag-chatbot-platform/internal/config"
	"rag-chatbot-platform/internal/logger"
	"rag-chatbot-platform/internal/queue"
	"rag-chatbot-platform/internal/telemetry"
	"rag-chatbot-platform/middleware"
	"rag-chatbot-platform/routes"
	"rag-chatbot-platform/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("rag-chatbot-api", cfg.OTLPEndpoint)
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

	redisClient, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer redisClient.Close()

	redisOpt, err := config.AsynqRedisOpt(cfg)
	if err != nil {
		log.Fatal("Failed to resolve Redis settings:", err)
	}
	queueClient := queue.NewClient(redisOpt)
	defer queueClient.Close()

	ctx := context.Background()

	// AI backends are optional at startup; a missing key degrades chat to
	// the fixed apology instead of refusing to boot.
	var generator services.Generator
	var embedder services.Embedder
	if cfg.GeminiAPIKey != "" {
		geminiClient, err := ai.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiTier)
		if err != nil {
			logger.Error("failed to initialize Gemini client", "error", err)
		} else {
			defer geminiClient.Close()
			generator = geminiClient
		}
		embeddingClient, err := ai.NewEmbeddingClient(ctx, cfg.GeminiAPIKey, cfg.EmbeddingsModel)
		if err != nil {
			logger.Error("failed to initialize embedding client", "error", err)
		} else {
			defer embeddingClient.Close()
			embedder = embeddingClient
		}
	} else {
		logger.Warn("GEMINI_API_KEY not set, chat will return fallback responses")
	}

	chunker := services.NewChunker(cfg.MaxChunkSize, cfg.ChunkOverlap)
	vectorStore := services.NewVectorStore(services.NewMongoChunkRepository(db), embedder, chunker)
	docStore := services.NewMongoDocumentStore(db)
	chatStore := services.NewMongoChatStore(db)

	// The API process never extracts text itself; uploads only persist the
	// file and enqueue, extraction happens in the worker.
	docService := services.NewDocumentService(docStore, nil, vectorStore, queueClient, cfg.FileStorageDir)
	ragService := services.NewRAGService(generator, vectorStore, cfg.RelevanceThreshold, cfg.SearchResults)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	if cfg.TracingEnabled {
		router.Use(otelgin.Middleware("rag-chatbot-api"))
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Requested-With", "X-User-ID", "X-Request-ID"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	router.Use(middleware.RequestSizeLimit(cfg.MaxFileSize))
	router.Use(middleware.RateLimitMiddleware(redisClient, cfg))

	router.MaxMultipartMemory = cfg.MaxFileSize

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	routes.SetupDocumentRoutes(router, cfg, docService, docStore)
	routes.SetupChatRoutes(router, ragService, chatStore)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("server exited")
}
