package services

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rag-chatbot-platform/models"
)

// ErrConversationNotFound is returned for lookups that match no owned
// conversation.
var ErrConversationNotFound = errors.New("conversation not found")

// MongoChatStore persists conversations and messages. The RAG core only ever
// reads a bounded window of recent turns from here.
type MongoChatStore struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
}

func NewMongoChatStore(db *mongo.Database) *MongoChatStore {
	return &MongoChatStore{
		conversations: db.Collection("conversations"),
		messages:      db.Collection("messages"),
	}
}

func (s *MongoChatStore) CreateConversation(ctx context.Context, userID, title string) (*models.Conversation, error) {
	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.conversations.InsertOne(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *MongoChatStore) GetConversation(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	oid, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, ErrConversationNotFound
	}

	var conv models.Conversation
	err = s.conversations.FindOne(ctx, bson.M{"_id": oid, "user_id": userID}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *MongoChatStore) TouchConversation(ctx context.Context, conversationID string) error {
	oid, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return ErrConversationNotFound
	}
	_, err = s.conversations.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"updated_at": time.Now().UTC()}},
	)
	return err
}

func (s *MongoChatStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	msg.ID = primitive.NewObjectID()
	msg.Timestamp = time.Now().UTC()
	_, err := s.messages.InsertOne(ctx, msg)
	return err
}

func (s *MongoChatStore) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := s.conversations.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var convs []models.Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// ListMessages returns the full message history of an owned conversation in
// chronological order.
func (s *MongoChatStore) ListMessages(ctx context.Context, userID, conversationID string) ([]models.Message, error) {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cursor, err := s.messages.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var msgs []models.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// DeleteConversation removes a conversation and all of its messages.
func (s *MongoChatStore) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	conv, err := s.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return err
	}

	if _, err := s.messages.DeleteMany(ctx, bson.M{"conversation_id": conversationID}); err != nil {
		return err
	}
	_, err = s.conversations.DeleteOne(ctx, bson.M{"_id": conv.ID})
	return err
}

// RecentTurns returns the last n turns of a conversation in chronological
// order, shaped for the RAG prompt history window.
func (s *MongoChatStore) RecentTurns(ctx context.Context, conversationID string, n int) ([]models.ChatTurn, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(n))

	cursor, err := s.messages.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var msgs []models.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, err
	}

	turns := make([]models.ChatTurn, len(msgs))
	for i, msg := range msgs {
		// reverse back into chronological order
		turns[len(msgs)-1-i] = models.ChatTurn{Role: msg.Role, Content: msg.Content}
	}
	return turns, nil
}
