package routes

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rag-chatbot-platform/internal/config"
	"rag-chatbot-platform/internal/logger"
	"rag-chatbot-platform/middleware"
	"rag-chatbot-platform/models"
	"rag-chatbot-platform/services"
	"rag-chatbot-platform/utils"
)

// SetupDocumentRoutes registers the document upload/management endpoints.
func SetupDocumentRoutes(router *gin.Engine, cfg *config.Config, docs *services.DocumentService, store services.DocumentStore) {
	group := router.Group("/documents")
	group.Use(middleware.RequireUser())

	group.POST("/upload", handleUpload(cfg, docs))
	group.GET("", handleList(store))
	group.GET("/:id", handleGet(store))
	group.DELETE("/:id", handleDelete(docs))
	group.POST("/:id/reprocess", handleReprocess(docs))
	group.DELETE("", handleEraseAll(docs))
}

func handleUpload(cfg *config.Config, docs *services.DocumentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)

		form, err := c.MultipartForm()
		if err != nil {
			utils.RespondWithBadRequest(c, "invalid multipart form", nil)
			return
		}
		files := form.File["files"]
		if len(files) == 0 {
			utils.RespondWithBadRequest(c, "no files provided", nil)
			return
		}

		uploaded := []models.Document{}
		failed := 0

		for _, header := range files {
			if !models.IsSupportedFilename(header.Filename) {
				logger.Warn("unsupported upload skipped", "filename", header.Filename)
				failed++
				continue
			}
			if header.Size > cfg.MaxFileSize {
				logger.Warn("oversized upload skipped", "filename", header.Filename, "size", header.Size)
				failed++
				continue
			}

			src, err := header.Open()
			if err != nil {
				failed++
				continue
			}

			filePath, uniqueName, size, err := docs.SaveUpload(userID, header.Filename, src)
			src.Close()
			if err != nil {
				logger.Error("failed to save upload", "filename", header.Filename, "error", err)
				failed++
				continue
			}

			doc := &models.Document{
				UserID:           userID,
				Filename:         uniqueName,
				OriginalFilename: header.Filename,
				FilePath:         filePath,
				FileType:         models.TypeForFilename(header.Filename),
				FileSize:         size,
				MimeType:         header.Header.Get("Content-Type"),
			}
			if err := docs.CreateAndEnqueue(c.Request.Context(), doc); err != nil {
				logger.Error("failed to schedule document", "filename", header.Filename, "error", err)
				failed++
				continue
			}
			uploaded = append(uploaded, *doc)
		}

		c.JSON(http.StatusOK, models.DocumentUploadResponse{
			Message:      fmt.Sprintf("Uploaded %d file(s) for processing", len(uploaded)),
			Documents:    uploaded,
			SuccessCount: len(uploaded),
			FailedCount:  failed,
		})
	}
}

func handleList(store services.DocumentStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
		status := c.Query("status")

		docs, total, err := store.List(c.Request.Context(), userID, page, perPage, status)
		if err != nil {
			utils.RespondWithInternalError(c, "failed to list documents", nil)
			return
		}
		if docs == nil {
			docs = []models.Document{}
		}

		c.JSON(http.StatusOK, models.DocumentListResponse{
			Documents: docs,
			Total:     total,
			Page:      page,
			PerPage:   perPage,
		})
	}
}

func handleGet(store services.DocumentStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := store.Get(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
		if errors.Is(err, services.ErrDocumentNotFound) {
			utils.RespondWithNotFound(c, "document not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "failed to load document", nil)
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

func handleDelete(docs *services.DocumentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := docs.Delete(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
		if errors.Is(err, services.ErrDocumentNotFound) {
			utils.RespondWithNotFound(c, "document not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "failed to delete document", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":    "Document deleted successfully",
			"deleted_id": c.Param("id"),
		})
	}
}

func handleReprocess(docs *services.DocumentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := docs.Reprocess(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
		switch {
		case errors.Is(err, services.ErrDocumentNotFound):
			utils.RespondWithNotFound(c, "document not found")
		case errors.Is(err, services.ErrFileMissing):
			utils.RespondWithBadRequest(c, "document file not found on server", nil)
		case err != nil:
			utils.RespondWithInternalError(c, "failed to reprocess document", nil)
		default:
			c.JSON(http.StatusOK, gin.H{"message": "Document queued for reprocessing"})
		}
	}
}

func handleEraseAll(docs *services.DocumentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if err := docs.EraseUserData(c.Request.Context(), userID); err != nil {
			utils.RespondWithInternalError(c, "failed to erase indexed data", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Indexed data erased"})
	}
}
