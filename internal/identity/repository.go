package identity

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/webident/loginza/internal/models"
)

// Repository defines persistence operations for broker identities
type Repository interface {
	// Upsert creates the identity on first sighting or replaces its stored
	// payload on repeated sightings (last writer wins).
	Upsert(ctx context.Context, identityKey, provider string, data string) (*models.Identity, error)
	GetByIdentity(ctx context.Context, identityKey string) (*models.Identity, error)
	Delete(ctx context.Context, identityKey string) error
}

// MongoRepository implements Repository using MongoDB
type MongoRepository struct {
	col *mongo.Collection
}

// NewMongoRepository creates a new repository for the given collection.
// The collection is expected to carry a unique index on "identity".
func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Upsert(ctx context.Context, identityKey, provider string, data string) (*models.Identity, error) {
	now := time.Now().UTC()

	filter := bson.M{"identity": identityKey}
	update := bson.M{
		"$set": bson.M{
			"provider":  provider,
			"data":      data,
			"updatedAt": now,
		},
		"$setOnInsert": bson.M{
			"identity":  identityKey,
			"createdAt": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var updated models.Identity
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *MongoRepository) GetByIdentity(ctx context.Context, identityKey string) (*models.Identity, error) {
	var id models.Identity
	if err := r.col.FindOne(ctx, bson.M{"identity": identityKey}).Decode(&id); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &id, nil
}

func (r *MongoRepository) Delete(ctx context.Context, identityKey string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"identity": identityKey})
	return err
}
