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

// ErrDocumentNotFound is returned for lookups that match no owned document.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentStore is the metadata-store boundary for Document records.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, userID, documentID string) (*models.Document, error)
	List(ctx context.Context, userID string, page, perPage int, statusFilter string) ([]models.Document, int64, error)
	SetProcessing(ctx context.Context, documentID string) error
	MarkCompleted(ctx context.Context, documentID string, chunkCount int) error
	MarkFailed(ctx context.Context, documentID, message string) error
	ResetForReprocess(ctx context.Context, documentID string) error
	Delete(ctx context.Context, userID, documentID string) error
}

// MongoDocumentStore keeps Document records in the "documents" collection.
type MongoDocumentStore struct {
	collection *mongo.Collection
}

func NewMongoDocumentStore(db *mongo.Database) *MongoDocumentStore {
	return &MongoDocumentStore{collection: db.Collection("documents")}
}

func (s *MongoDocumentStore) Create(ctx context.Context, doc *models.Document) error {
	now := time.Now().UTC()
	doc.ID = primitive.NewObjectID()
	doc.Status = models.StatusPending
	doc.CreatedAt = now
	doc.UpdatedAt = now

	_, err := s.collection.InsertOne(ctx, doc)
	return err
}

func (s *MongoDocumentStore) Get(ctx context.Context, userID, documentID string) (*models.Document, error) {
	oid, err := primitive.ObjectIDFromHex(documentID)
	if err != nil {
		return nil, ErrDocumentNotFound
	}

	var doc models.Document
	err = s.collection.FindOne(ctx, bson.M{"_id": oid, "user_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *MongoDocumentStore) List(ctx context.Context, userID string, page, perPage int, statusFilter string) ([]models.Document, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	filter := bson.M{"user_id": userID}
	if statusFilter != "" {
		filter["status"] = statusFilter
	}

	total, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page - 1) * perPage)).
		SetLimit(int64(perPage))

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

func (s *MongoDocumentStore) SetProcessing(ctx context.Context, documentID string) error {
	return s.updateByID(ctx, documentID, bson.M{
		"status":     models.StatusProcessing,
		"updated_at": time.Now().UTC(),
	})
}

func (s *MongoDocumentStore) MarkCompleted(ctx context.Context, documentID string, chunkCount int) error {
	now := time.Now().UTC()
	return s.updateByID(ctx, documentID, bson.M{
		"status":        models.StatusCompleted,
		"chunk_count":   chunkCount,
		"error_message": "",
		"processed_at":  now,
		"updated_at":    now,
	})
}

func (s *MongoDocumentStore) MarkFailed(ctx context.Context, documentID, message string) error {
	return s.updateByID(ctx, documentID, bson.M{
		"status":        models.StatusFailed,
		"error_message": message,
		"updated_at":    time.Now().UTC(),
	})
}

func (s *MongoDocumentStore) ResetForReprocess(ctx context.Context, documentID string) error {
	oid, err := primitive.ObjectIDFromHex(documentID)
	if err != nil {
		return ErrDocumentNotFound
	}

	_, err = s.collection.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{
			"$set": bson.M{
				"status":        models.StatusPending,
				"chunk_count":   0,
				"error_message": "",
				"updated_at":    time.Now().UTC(),
			},
			"$unset": bson.M{"processed_at": ""},
		},
	)
	return err
}

func (s *MongoDocumentStore) Delete(ctx context.Context, userID, documentID string) error {
	oid, err := primitive.ObjectIDFromHex(documentID)
	if err != nil {
		return ErrDocumentNotFound
	}

	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": oid, "user_id": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (s *MongoDocumentStore) updateByID(ctx context.Context, documentID string, fields bson.M) error {
	oid, err := primitive.ObjectIDFromHex(documentID)
	if err != nil {
		return ErrDocumentNotFound
	}
	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": fields})
	return err
}
