package reports

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xyz-asif/rewardz/internal/pkg/logger"
	"github.com/xyz-asif/rewardz/internal/pkg/pagination"
	"github.com/xyz-asif/rewardz/internal/pkg/tokens"
	apperrors "github.com/xyz-asif/rewardz/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository struct {
	collection *mongo.Collection
	sightings  *mongo.Collection
	log        logrus.FieldLogger
}

func NewRepository(db *mongo.Database, log logrus.FieldLogger) *Repository {
	collection := db.Collection("reports")
	sightings := db.Collection("sightings")

	// Create indexes
	_, _ = collection.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "type", Value: 1},
				{Key: "status", Value: 1},
				{Key: "createdAt", Value: -1},
			},
		},
		{
			Keys: bson.D{{Key: "tokens", Value: 1}},
		},
		{
			Keys: bson.D{
				{Key: "creatorId", Value: 1},
				{Key: "createdAt", Value: -1},
			},
		},
	})

	_, _ = sightings.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{
			{Key: "reportId", Value: 1},
			{Key: "createdAt", Value: -1},
		},
	})

	if log == nil {
		log = logger.Discard()
	}

	return &Repository{collection: collection, sightings: sightings, log: log}
}

// Create inserts a new report
func (r *Repository) Create(ctx context.Context, report *Report) error {
	now := time.Now()
	report.ID = primitive.NewObjectID()
	report.CreatedAt = now
	report.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, report)
	return err
}

// GetByID fetches a report
func (r *Repository) GetByID(ctx context.Context, id primitive.ObjectID) (*Report, error) {
	var report Report
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&report)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("report %s: %w", id.Hex(), apperrors.ErrNotFound)
		}
		return nil, err
	}
	return &report, nil
}

// Replace writes back an edited report. Type and status are never touched
// here so a concurrent transition cannot be undone by an edit.
func (r *Repository) Replace(ctx context.Context, report *Report) error {
	report.UpdatedAt = time.Now()

	set := bson.M{
		"name":           report.Name,
		"species":        report.Species,
		"breed":          report.Breed,
		"color":          report.Color,
		"markings":       report.Markings,
		"microchipId":    report.MicrochipID,
		"location":       report.Location,
		"displayAddress": report.DisplayAddress,
		"tokens":         report.Tokens,
		"updatedAt":      report.UpdatedAt,
	}
	unset := bson.M{}

	optional := map[string]interface{}{
		"lat":       report.Lat,
		"lon":       report.Lon,
		"pubLat":    report.PubLat,
		"pubLon":    report.PubLon,
		"eventDate": report.EventDate,
	}
	for key, v := range optional {
		switch p := v.(type) {
		case *float64:
			if p == nil {
				unset[key] = ""
				continue
			}
		case *time.Time:
			if p == nil {
				unset[key] = ""
				continue
			}
		}
		set[key] = v
	}
	if report.RewardAmount == nil {
		unset["rewardAmount"] = ""
	} else {
		set["rewardAmount"] = report.RewardAmount
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": report.ID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// TransitionStatus moves an open report to status. It fails with
// ErrConflict when the report is no longer open.
func (r *Repository) TransitionStatus(ctx context.Context, id primitive.ObjectID, status string) (*Report, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var report Report
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": StatusOpen},
		bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now()}},
		opts,
	).Decode(&report)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, fmt.Errorf("%w: report is not open", apperrors.ErrConflict)
		}
		return nil, err
	}
	return &report, nil
}

// MarkReunited moves every still-open report in ids to reunited
func (r *Repository) MarkReunited(ctx context.Context, ids ...primitive.ObjectID) (int64, error) {
	result, err := r.collection.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "status": StatusOpen},
		bson.M{"$set": bson.M{"status": StatusReunited, "updatedAt": time.Now()}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// UndoReunited puts reunited reports in ids back to open
func (r *Repository) UndoReunited(ctx context.Context, ids ...primitive.ObjectID) (int64, error) {
	result, err := r.collection.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "status": StatusReunited},
		bson.M{"$set": bson.M{"status": StatusOpen, "updatedAt": time.Now()}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// SetPhoto stores the uploaded photo and its detected labels
func (r *Repository) SetPhoto(ctx context.Context, id primitive.ObjectID, url, publicID string, labels []string) (*Report, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var report Report
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"photoUrl":      url,
			"photoPublicId": publicID,
			"photoLabels":   labels,
			"updatedAt":     time.Now(),
		}},
		opts,
	).Decode(&report)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &report, nil
}

// Delete removes a report and its sightings
func (r *Repository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return apperrors.ErrNotFound
	}

	if _, err := r.sightings.DeleteMany(ctx, bson.M{"reportId": id}); err != nil {
		logger.Module(r.log, "reports", "Delete").Warn("delete sightings: " + err.Error())
	}
	return nil
}

// List returns one page of reports matching q, newest first
func (r *Repository) List(ctx context.Context, q ListQuery) ([]Report, int64, error) {
	filter := listFilter(q)

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(pagination.Skip(q.Page, q.Limit)).
		SetLimit(int64(q.Limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	list := []Report{}
	if err := cursor.All(ctx, &list); err != nil {
		return nil, 0, err
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListOpenByType loads the open reports of type t created since the given
// time, newest first, capped at limit
func (r *Repository) ListOpenByType(ctx context.Context, t string, since time.Time, limit int) ([]Report, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{
		"type":      t,
		"status":    StatusOpen,
		"createdAt": bson.M{"$gte": since},
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	list := []Report{}
	if err := cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// CreateSighting inserts a sighting
func (r *Repository) CreateSighting(ctx context.Context, s *Sighting) error {
	s.ID = primitive.NewObjectID()
	s.CreatedAt = time.Now()
	if s.SeenAt.IsZero() {
		s.SeenAt = s.CreatedAt
	}
	_, err := r.sightings.InsertOne(ctx, s)
	return err
}

// ListSightings returns one page of sightings for a report, newest first
func (r *Repository) ListSightings(ctx context.Context, reportID primitive.ObjectID, page, limit int) ([]Sighting, int64, error) {
	filter := bson.M{"reportId": reportID}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(pagination.Skip(page, limit)).
		SetLimit(int64(limit))

	cursor, err := r.sightings.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	list := []Sighting{}
	if err := cursor.All(ctx, &list); err != nil {
		return nil, 0, err
	}

	total, err := r.sightings.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

type changeEvent struct {
	OperationType string  `bson:"operationType"`
	FullDocument  *Report `bson:"fullDocument"`
	DocumentKey   struct {
		ID primitive.ObjectID `bson:"_id"`
	} `bson:"documentKey"`
}

// Subscribe watches the reports collection and calls onChange for every
// insert, update or delete passing filter. The returned function stops the
// watch and waits for the callback goroutine to exit. Change streams need a
// replica set.
func (r *Repository) Subscribe(ctx context.Context, filter ReportFilter, onChange func(ReportEvent)) (func(), error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"operationType": bson.M{"$in": []string{"insert", "update", "replace", "delete"}},
		}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	ctx, cancel := context.WithCancel(ctx)
	stream, err := r.collection.Watch(ctx, pipeline, opts)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: watch reports: %v", apperrors.ErrUnavailable, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			var ev changeEvent
			if err := stream.Decode(&ev); err != nil {
				logger.Module(r.log, "reports", "Subscribe").Warn("decode change: " + err.Error())
				continue
			}
			if ev.OperationType != "delete" && !filter.Matches(ev.FullDocument) {
				continue
			}
			onChange(ReportEvent{
				Operation: ev.OperationType,
				ReportID:  ev.DocumentKey.ID,
				Report:    ev.FullDocument,
			})
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			logger.Module(r.log, "reports", "Subscribe").Warn("change stream ended: " + err.Error())
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}, nil
}

func listFilter(q ListQuery) bson.M {
	filter := bson.M{}
	if q.Type != "" {
		filter["type"] = q.Type
	}
	if q.Status != "" {
		filter["status"] = q.Status
	}
	if q.Species != "" {
		filter["species"] = bson.M{"$regex": "^" + regexp.QuoteMeta(q.Species) + "$", "$options": "i"}
	}
	if q.Q != "" {
		if terms := tokens.Tokenize(q.Q); len(terms) > 0 {
			filter["tokens"] = bson.M{"$all": terms}
		}
	}
	return filter
}
