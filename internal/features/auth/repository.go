package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/xyz-asif/rewardz/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository handles database interactions for the auth feature
type Repository struct {
	collection *mongo.Collection
}

// NewRepository initializes the repository and creates necessary indexes
func NewRepository(db *mongo.Database) *Repository {
	collection := db.Collection("users")

	// Create indexes
	_, _ = collection.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "firebaseUid", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "email", Value: 1}},
		},
	})

	return &Repository{collection: collection}
}

// UpsertFirebaseUser creates the user on first login and refreshes the
// profile fields on later ones. Role and preferences are only set on insert.
func (r *Repository) UpsertFirebaseUser(ctx context.Context, uid, email, displayName, photoURL string) (*User, error) {
	now := time.Now()
	filter := bson.M{"firebaseUid": uid}
	update := bson.M{
		"$set": bson.M{
			"email":       email,
			"displayName": displayName,
			"photoUrl":    photoURL,
			"updatedAt":   now,
		},
		"$setOnInsert": bson.M{
			"role":              RoleUser,
			"fcmTokens":         []string{},
			"notificationPrefs": DefaultNotificationPrefs(),
			"language":          "en",
			"createdAt":         now,
		},
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var user User
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&user); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &user, nil
}

// GetUserByID finds a user by their MongoDB ID
func (r *Repository) GetUserByID(ctx context.Context, userID string) (*User, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id format: %w", apperrors.ErrBadRequest)
	}

	var user User
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user %s: %w", userID, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

// GetUsersByIDs fetches several users in one round trip
func (r *Repository) GetUsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}

	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	users := []User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// UpdatePreferences applies the non-nil fields of req
func (r *Repository) UpdatePreferences(ctx context.Context, userID primitive.ObjectID, req *UpdatePreferencesRequest) (*User, error) {
	set := bson.M{"updatedAt": time.Now()}
	if req.InApp != nil {
		set["notificationPrefs.inApp"] = *req.InApp
	}
	if req.Push != nil {
		set["notificationPrefs.push"] = *req.Push
	}
	if req.Email != nil {
		set["notificationPrefs.email"] = *req.Email
	}
	if req.Kinds != nil {
		set["notificationPrefs.kinds"] = req.Kinds
	}
	if req.Language != nil {
		set["language"] = *req.Language
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var user User
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": userID}, bson.M{"$set": set}, opts).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// AddFCMToken registers a device for push delivery
func (r *Repository) AddFCMToken(ctx context.Context, userID primitive.ObjectID, token string) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$addToSet": bson.M{"fcmTokens": token},
			"$set":      bson.M{"updatedAt": time.Now()},
		},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// RemoveFCMTokens drops device tokens FCM reported as no longer registered
func (r *Repository) RemoveFCMTokens(ctx context.Context, userID primitive.ObjectID, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$pull": bson.M{"fcmTokens": bson.M{"$in": tokens}}},
	)
	return err
}
