package routes

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rag-chatbot-platform/internal/logger"
	"rag-chatbot-platform/middleware"
	"rag-chatbot-platform/models"
	"rag-chatbot-platform/services"
	"rag-chatbot-platform/utils"
)

// SetupChatRoutes registers the chat and conversation endpoints.
func SetupChatRoutes(router *gin.Engine, rag *services.RAGService, chats *services.MongoChatStore) {
	group := router.Group("/chat")
	group.Use(middleware.RequireUser())

	group.POST("", handleChat(rag, chats))
	group.GET("/conversations", handleListConversations(chats))
	group.GET("/conversations/:id", handleConversationHistory(chats))
	group.DELETE("/conversations/:id", handleDeleteConversation(chats))
}

func handleChat(rag *services.RAGService, chats *services.MongoChatStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		ctx := c.Request.Context()

		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "message is required (1-4000 characters)", nil)
			return
		}

		var (
			conv    *models.Conversation
			history []models.ChatTurn
		)
		if req.ConversationID != "" {
			existing, err := chats.GetConversation(ctx, userID, req.ConversationID)
			if errors.Is(err, services.ErrConversationNotFound) {
				utils.RespondWithNotFound(c, "conversation not found")
				return
			}
			if err != nil {
				utils.RespondWithInternalError(c, "failed to load conversation", nil)
				return
			}
			conv = existing

			history, err = chats.RecentTurns(ctx, req.ConversationID, services.HistoryWindow)
			if err != nil {
				logger.Warn("failed to load conversation history", "error", err)
				history = nil
			}
		} else {
			created, err := chats.CreateConversation(ctx, userID, rag.GenerateTitle(ctx, req.Message))
			if err != nil {
				utils.RespondWithInternalError(c, "failed to create conversation", nil)
				return
			}
			conv = created
		}
		conversationID := conv.ID.Hex()

		answer := rag.Answer(ctx, userID, req.Message, history)

		// Persist both turns; the reply already exists, so storage failures
		// are logged rather than surfaced.
		userMsg := &models.Message{
			UserID:         userID,
			ConversationID: conversationID,
			Role:           models.RoleUser,
			Content:        req.Message,
		}
		if err := chats.AppendMessage(ctx, userMsg); err != nil {
			logger.Error("failed to persist user message", "error", err)
		}
		assistantMsg := &models.Message{
			UserID:         userID,
			ConversationID: conversationID,
			Role:           models.RoleAssistant,
			Content:        answer.Response,
			Sources:        answer.Sources,
			UsedContext:    answer.UsedContext,
		}
		if err := chats.AppendMessage(ctx, assistantMsg); err != nil {
			logger.Error("failed to persist assistant message", "error", err)
		}
		if err := chats.TouchConversation(ctx, conversationID); err != nil {
			logger.Warn("failed to touch conversation", "error", err)
		}

		c.JSON(http.StatusOK, models.ChatResponse{
			Reply:          answer.Response,
			Sources:        answer.Sources,
			UsedContext:    answer.UsedContext,
			ConversationID: conversationID,
			Timestamp:      time.Now().UTC(),
		})
	}
}

func handleListConversations(chats *services.MongoChatStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		convs, err := chats.ListConversations(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			utils.RespondWithInternalError(c, "failed to list conversations", nil)
			return
		}
		if convs == nil {
			convs = []models.Conversation{}
		}
		c.JSON(http.StatusOK, gin.H{"conversations": convs, "total": len(convs)})
	}
}

func handleConversationHistory(chats *services.MongoChatStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		msgs, err := chats.ListMessages(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
		if errors.Is(err, services.ErrConversationNotFound) {
			utils.RespondWithNotFound(c, "conversation not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "failed to load conversation history", nil)
			return
		}
		if msgs == nil {
			msgs = []models.Message{}
		}
		c.JSON(http.StatusOK, gin.H{"messages": msgs, "total": len(msgs)})
	}
}

func handleDeleteConversation(chats *services.MongoChatStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := chats.DeleteConversation(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
		if errors.Is(err, services.ErrConversationNotFound) {
			utils.RespondWithNotFound(c, "conversation not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "failed to delete conversation", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted"})
	}
}
