package safety

import (
	"context"
	"fmt"
	"time"

	"github.com/xyz-asif/rewardz/internal/pkg/pagination"
	apperrors "github.com/xyz-asif/rewardz/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository struct {
	collection *mongo.Collection
}

func NewRepository(db *mongo.Database) *Repository {
	collection := db.Collection("flags")

	_, _ = collection.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "reporterId", Value: 1},
				{Key: "reportId", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "createdAt", Value: -1},
			},
		},
	})

	return &Repository{collection: collection}
}

func (r *Repository) Create(ctx context.Context, flag *Flag) error {
	now := time.Now()
	flag.CreatedAt = now
	flag.UpdatedAt = now
	flag.Status = StatusPending

	result, err := r.collection.InsertOne(ctx, flag)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: report already flagged", apperrors.ErrConflict)
		}
		return err
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		flag.ID = oid
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id primitive.ObjectID) (*Flag, error) {
	var flag Flag
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&flag)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &flag, nil
}

// List returns flags newest first, optionally narrowed to one status
func (r *Repository) List(ctx context.Context, status string, page, limit int) ([]Flag, int64, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(pagination.Skip(page, limit)).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	flags := []Flag{}
	if err := cursor.All(ctx, &flags); err != nil {
		return nil, 0, err
	}
	return flags, total, nil
}

// Resolve moves a pending flag to status. A flag that is no longer pending
// yields ErrConflict.
func (r *Repository) Resolve(ctx context.Context, id primitive.ObjectID, status string, moderatorID primitive.ObjectID) (*Flag, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.M{"$set": bson.M{
		"status":     status,
		"reviewedBy": moderatorID,
		"updatedAt":  time.Now(),
	}}

	var flag Flag
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id, "status": StatusPending}, update, opts).Decode(&flag)
	if err == mongo.ErrNoDocuments {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: flag already resolved", apperrors.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	return &flag, nil
}

// ResolveForReport closes every other pending flag on reportID
func (r *Repository) ResolveForReport(ctx context.Context, reportID primitive.ObjectID, status string, moderatorID primitive.ObjectID) (int64, error) {
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"reportId": reportID, "status": StatusPending},
		bson.M{"$set": bson.M{
			"status":     status,
			"reviewedBy": moderatorID,
			"updatedAt":  time.Now(),
		}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
