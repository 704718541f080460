package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Chat turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatTurn is one entry in the recent-history window fed to the RAG prompt.
// It is ephemeral; persistence happens on Message.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Source describes one cited document behind a grounded answer.
type Source struct {
	Filename  string  `json:"filename"`
	Relevance float64 `json:"relevance"`
	Preview   string  `json:"chunk_preview"`
}

// ChatAnswer is the orchestrator result: generated text plus the deduplicated
// sources that informed it. UsedContext is true only when at least one
// retrieved chunk survived the relevance filter.
type ChatAnswer struct {
	Response    string   `json:"response"`
	Sources     []Source `json:"sources"`
	UsedContext bool     `json:"used_context"`
}

// Message is a persisted chat message.
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID         string             `bson:"user_id" json:"user_id"`
	ConversationID string             `bson:"conversation_id" json:"conversation_id"`
	Role           string             `bson:"role" json:"role"`
	Content        string             `bson:"content" json:"content"`
	Sources        []Source           `bson:"sources,omitempty" json:"sources,omitempty"`
	UsedContext    bool               `bson:"used_context" json:"used_context"`
	Timestamp      time.Time          `bson:"timestamp" json:"timestamp"`
}

// Conversation groups messages under an auto-generated title.
type Conversation struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"user_id" json:"user_id"`
	Title     string             `bson:"title" json:"title"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// ChatRequest is the chat-send request body.
type ChatRequest struct {
	Message        string `json:"message" binding:"required,min=1,max=4000"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatResponse is the chat-send response body.
type ChatResponse struct {
	Reply          string    `json:"reply"`
	Sources        []Source  `json:"sources"`
	UsedContext    bool      `json:"used_context"`
	ConversationID string    `json:"conversation_id"`
	Timestamp      time.Time `json:"timestamp"`
}
