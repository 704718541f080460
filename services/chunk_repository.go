package services

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoChunkRepository stores chunk records one Mongo collection per
// namespace. Collections are created implicitly on first write.
type MongoChunkRepository struct {
	db *mongo.Database
}

func NewMongoChunkRepository(db *mongo.Database) *MongoChunkRepository {
	return &MongoChunkRepository{db: db}
}

func (r *MongoChunkRepository) Upsert(ctx context.Context, namespace string, records []ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := make([]mongo.WriteModel, 0, len(records))
	for _, rec := range records {
		batch = append(batch, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": rec.ID}).
			SetReplacement(rec).
			SetUpsert(true))
	}

	_, err := r.db.Collection(namespace).BulkWrite(ctx, batch, options.BulkWrite().SetOrdered(false))
	return err
}

func (r *MongoChunkRepository) All(ctx context.Context, namespace string) ([]ChunkRecord, error) {
	cursor, err := r.db.Collection(namespace).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []ChunkRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *MongoChunkRepository) DeleteByDocument(ctx context.Context, namespace, documentID string) (int64, error) {
	res, err := r.db.Collection(namespace).DeleteMany(ctx, bson.M{"metadata.document_id": documentID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (r *MongoChunkRepository) Count(ctx context.Context, namespace string) (int64, error) {
	return r.db.Collection(namespace).CountDocuments(ctx, bson.M{})
}

func (r *MongoChunkRepository) Drop(ctx context.Context, namespace string) error {
	// Dropping a collection that does not exist is a no-op in MongoDB.
	return r.db.Collection(namespace).Drop(ctx)
}
