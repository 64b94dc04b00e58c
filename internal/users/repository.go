package users

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/webident/loginza/internal/database"
	"github.com/webident/loginza/internal/models"
)

// Repository defines persistence operations for local accounts
type Repository interface {
	// Create persists a new account, assigning the next numeric id.
	Create(ctx context.Context, u *models.User) (*models.User, error)
	// GetByEmail returns nil when no account has the email.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	UpdateName(ctx context.Context, id int64, firstName, lastName string) error
	SetAvatarURL(ctx context.Context, id int64, url string) error
}

// MongoRepository implements Repository using MongoDB
type MongoRepository struct {
	col      *mongo.Collection
	counters *mongo.Collection
}

// NewMongoRepository creates a repository over the users collection; counters
// backs the numeric id sequence.
func NewMongoRepository(col, counters *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col, counters: counters}
}

func (r *MongoRepository) Create(ctx context.Context, u *models.User) (*models.User, error) {
	id, err := database.NextID(ctx, r.counters, "users")
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	u.ID = id
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if _, err := r.col.InsertOne(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *MongoRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, bson.M{"email": email}).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *MongoRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *MongoRepository) UpdateName(ctx context.Context, id int64, firstName, lastName string) error {
	update := bson.M{"$set": bson.M{
		"firstName": firstName,
		"lastName":  lastName,
		"updatedAt": time.Now().UTC(),
	}}
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, update)
	return err
}

func (r *MongoRepository) SetAvatarURL(ctx context.Context, id int64, url string) error {
	update := bson.M{"$set": bson.M{
		"avatarUrl": url,
		"updatedAt": time.Now().UTC(),
	}}
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, update)
	return err
}
