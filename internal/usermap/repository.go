package usermap

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/webident/loginza/internal/database"
	"github.com/webident/loginza/internal/models"
)

// Repository defines persistence operations for identity-to-user maps
type Repository interface {
	// GetByIdentity returns nil when no map exists for the identity key.
	GetByIdentity(ctx context.Context, identityKey string) (*models.UserMap, error)
	GetByID(ctx context.Context, id int64) (*models.UserMap, error)
	// Create persists a new map, assigning the next numeric id. The backing
	// collection carries a unique index on "identity" so at most one map can
	// ever exist per identity.
	Create(ctx context.Context, m *models.UserMap) (*models.UserMap, error)
	Delete(ctx context.Context, id int64) error
	SetVerified(ctx context.Context, id int64, verified bool) error
	HasForIdentity(ctx context.Context, identityKey string) (bool, error)
}

// MongoRepository implements Repository using MongoDB
type MongoRepository struct {
	col      *mongo.Collection
	counters *mongo.Collection
}

func NewMongoRepository(col, counters *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col, counters: counters}
}

func (r *MongoRepository) GetByIdentity(ctx context.Context, identityKey string) (*models.UserMap, error) {
	var m models.UserMap
	if err := r.col.FindOne(ctx, bson.M{"identity": identityKey}).Decode(&m); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *MongoRepository) GetByID(ctx context.Context, id int64) (*models.UserMap, error) {
	var m models.UserMap
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *MongoRepository) Create(ctx context.Context, m *models.UserMap) (*models.UserMap, error) {
	id, err := database.NextID(ctx, r.counters, "usermaps")
	if err != nil {
		return nil, err
	}
	m.ID = id
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if _, err := r.col.InsertOne(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MongoRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (r *MongoRepository) SetVerified(ctx context.Context, id int64, verified bool) error {
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"verified": verified}})
	return err
}

func (r *MongoRepository) HasForIdentity(ctx context.Context, identityKey string) (bool, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"identity": identityKey})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
