package services

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"relove/market/internal/models"
)

// IUserService defines the interface for user identity operations.
type IUserService interface {
	Upsert(ctx context.Context, email string, profile bson.M) (*mongo.UpdateResult, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	ListByRole(ctx context.Context, role models.Role) ([]models.User, error)
	Verify(ctx context.Context, userID primitive.ObjectID) error
	Delete(ctx context.Context, userID primitive.ObjectID) error
}

const usersCollection = "users"

// userService implements IUserService.
type userService struct {
	db *mongo.Database
}

// NewUserService creates a new UserService.
func NewUserService(db *mongo.Database) IUserService {
	return &userService{db: db}
}

// Upsert writes a user profile keyed by email with $set semantics: only the
// keys present in the submitted profile are overwritten, unspecified keys
// from earlier writes survive. The email in the filter wins over anything in
// the payload, and a client-supplied _id is ignored.
func (s *userService) Upsert(ctx context.Context, email string, profile bson.M) (*mongo.UpdateResult, error) {
	if email == "" {
		return nil, fmt.Errorf("email must not be empty")
	}
	if profile == nil {
		profile = bson.M{}
	}
	delete(profile, "_id")
	profile["email"] = email

	collection := s.db.Collection(usersCollection)
	filter := bson.M{"email": email}
	update := bson.M{"$set": profile}
	opts := options.Update().SetUpsert(true)

	result, err := collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user %s: %w", email, err)
	}
	return result, nil
}

// FindByEmail returns the user record for an email address.
func (s *userService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding user by email %s: %w", email, err)
	}
	return &user, nil
}

// List returns all user records.
func (s *userService) List(ctx context.Context) ([]models.User, error) {
	cursor, err := s.db.Collection(usersCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err = cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}

// ListByRole returns all users holding the given role.
func (s *userService) ListByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	cursor, err := s.db.Collection(usersCollection).Find(ctx, bson.M{"role": role})
	if err != nil {
		return nil, fmt.Errorf("failed to list users with role %s: %w", role, err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err = cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users with role %s: %w", role, err)
	}
	return users, nil
}

// Verify marks a seller account as verified.
func (s *userService) Verify(ctx context.Context, userID primitive.ObjectID) error {
	result, err := s.db.Collection(usersCollection).UpdateByID(ctx, userID, bson.M{"$set": bson.M{"verified": true}})
	if err != nil {
		return fmt.Errorf("db error verifying user %s: %w", userID.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// Delete removes a user record. Tokens already minted for the account remain
// valid until expiry; there is no revocation, but authorization re-reads the
// users collection on every request so protected routes close immediately.
func (s *userService) Delete(ctx context.Context, userID primitive.ObjectID) error {
	result, err := s.db.Collection(usersCollection).DeleteOne(ctx, bson.M{"_id": userID})
	if err != nil {
		return fmt.Errorf("db error deleting user %s: %w", userID.Hex(), err)
	}
	if result.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
