package matching

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

type Repository struct {
	collection *mongo.Collection
	alerts     *mongo.Collection
}

func NewRepository(db *mongo.Database) *Repository {
	collection := db.Collection("matches")

	// Create indexes
	_, _ = collection.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "sourceReportId", Value: 1},
				{Key: "candidateReportId", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "lostReportId", Value: 1},
				{Key: "status", Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: "foundReportId", Value: 1},
				{Key: "status", Value: 1},
			},
		},
	})

	return &Repository{collection: collection, alerts: db.Collection("match_alerts")}
}

// Upsert stores m keyed on (source, candidate). The score fields are always
// refreshed; status and createdAt are only written on insert, so a reviewed
// match keeps its review. m is filled from the stored document.
func (r *Repository) Upsert(ctx context.Context, m *MatchCandidate) (bool, error) {
	now := time.Now()
	filter := bson.M{
		"sourceReportId":    m.SourceReportID,
		"candidateReportId": m.CandidateReportID,
	}
	update := bson.M{
		"$set": bson.M{
			"lostReportId":  m.LostReportID,
			"foundReportId": m.FoundReportID,
			"score":         m.Score,
			"confidence":    m.Confidence,
			"reasons":       m.Reasons,
			"updatedAt":     now,
		},
		"$setOnInsert": bson.M{
			"status":    StatusPending,
			"createdAt": now,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		// two passes racing on the same pair; the other insert won
		if mongo.IsDuplicateKeyError(err) {
			return false, r.collection.FindOne(ctx, filter).Decode(m)
		}
		return false, err
	}

	if err := r.collection.FindOne(ctx, filter).Decode(m); err != nil {
		return false, err
	}
	return result.UpsertedCount > 0, nil
}

// GetByID retrieves a match by ID
func (r *Repository) GetByID(ctx context.Context, id primitive.ObjectID) (*MatchCandidate, error) {
	var m MatchCandidate
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// ListForReport returns every match on either side of reportID, best first
func (r *Repository) ListForReport(ctx context.Context, reportID primitive.ObjectID) ([]MatchCandidate, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "score", Value: -1},
		{Key: "createdAt", Value: 1},
	})

	cursor, err := r.collection.Find(ctx, bson.M{"$or": []bson.M{
		{"lostReportId": reportID},
		{"foundReportId": reportID},
	}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	list := []MatchCandidate{}
	if err := cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Review moves a pending match to status, along with the mirror record stored
// by the other report's pass
func (r *Repository) Review(ctx context.Context, id primitive.ObjectID, status string) (*MatchCandidate, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var m MatchCandidate
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": StatusPending},
		bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now()}},
		opts,
	).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, fmt.Errorf("%w: match was already reviewed", apperrors.ErrConflict)
		}
		return nil, err
	}

	_, err = r.collection.UpdateMany(ctx,
		bson.M{
			"lostReportId":  m.LostReportID,
			"foundReportId": m.FoundReportID,
			"status":        StatusPending,
		},
		bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now()}},
	)
	if err != nil {
		return &m, err
	}
	return &m, nil
}

// RejectOthers rejects every pending match that shares a report with the
// accepted one
func (r *Repository) RejectOthers(ctx context.Context, accepted *MatchCandidate) (int64, error) {
	result, err := r.collection.UpdateMany(ctx,
		bson.M{
			"status": StatusPending,
			"$or": []bson.M{
				{"lostReportId": accepted.LostReportID},
				{"foundReportId": accepted.FoundReportID},
			},
			"$nor": []bson.M{
				{"lostReportId": accepted.LostReportID, "foundReportId": accepted.FoundReportID},
			},
		},
		bson.M{"$set": bson.M{"status": StatusRejected, "updatedAt": time.Now()}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// UndoAccept puts an accepted pair back to pending
func (r *Repository) UndoAccept(ctx context.Context, accepted *MatchCandidate) error {
	_, err := r.collection.UpdateMany(ctx,
		bson.M{
			"lostReportId":  accepted.LostReportID,
			"foundReportId": accepted.FoundReportID,
			"status":        StatusAccepted,
		},
		bson.M{"$set": bson.M{"status": StatusPending, "updatedAt": time.Now()}},
	)
	return err
}

// ClaimAlert records that the lost/found pair has been alerted. It returns
// false when an earlier pass already claimed the pair.
func (r *Repository) ClaimAlert(ctx context.Context, lostID, foundID primitive.ObjectID) (bool, error) {
	_, err := r.alerts.InsertOne(ctx, bson.M{
		"_id":           lostID.Hex() + ":" + foundID.Hex(),
		"lostReportId":  lostID,
		"foundReportId": foundID,
		"createdAt":     time.Now(),
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
