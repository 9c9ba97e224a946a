// Package mongo implements the repository interfaces on a MongoDB collection.
//
// Optional fields are omitted from the stored document rather than written
// as empty values, so the sparse unique index on federated_id only covers
// accounts that are actually linked to a provider.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/auth-service/internal/apperror"
	"github.com/sakif/auth-service/internal/model"
	"github.com/sakif/auth-service/internal/repository"
)

const usersCollection = "users"

var _ repository.UserRepository = (*Store)(nil)

// Store keeps accounts in the "users" collection of one database.
type Store struct {
	client *mongo.Client
	users  *mongo.Collection
	logger *slog.Logger
}

// New connects to uri, pings the primary and ensures the unique indexes.
func New(ctx context.Context, uri, database string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connecting: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: pinging: %w", err)
	}

	s := &Store{
		client: client,
		users:  client.Database(database).Collection(usersCollection),
		logger: logger,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info("mongo store ready", slog.String("database", database))
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("users_email_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "federated_id", Value: 1}},
			Options: options.Index().SetName("users_federated_id_unique").SetUnique(true).SetSparse(true),
		},
	})
	if err != nil {
		return fmt.Errorf("mongo: creating indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := s.users.InsertOne(ctx, toDocument(user)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("mongo: inserting user %s: %w", user.ID, err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.findOne(ctx, bson.D{{Key: "_id", Value: id}}, id)
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findOne(ctx, bson.D{{Key: "email", Value: email}}, email)
}

func (s *Store) GetByFederatedID(ctx context.Context, federatedID string) (*model.User, error) {
	if federatedID == "" {
		return nil, apperror.NotFound("user", federatedID)
	}
	return s.findOne(ctx, bson.D{{Key: "federated_id", Value: federatedID}}, federatedID)
}

func (s *Store) findOne(ctx context.Context, filter bson.D, key string) (*model.User, error) {
	var doc userDocument
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("user", key)
		}
		return nil, fmt.Errorf("mongo: finding user: %w", err)
	}
	return doc.toModel(), nil
}

// Update replaces the whole document so cleared optional fields disappear.
func (s *Store) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()

	result, err := s.users.ReplaceOne(ctx, bson.D{{Key: "_id", Value: user.ID}}, toDocument(user))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("user", user.ID)
		}
		return fmt.Errorf("mongo: updating user %s: %w", user.ID, err)
	}
	if result.MatchedCount == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.users.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("mongo: deleting user %s: %w", id, err)
	}
	if result.DeletedCount == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}
