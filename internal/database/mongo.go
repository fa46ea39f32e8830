// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/models"
)

// ActivitiesCollection is the collection holding the activity log.
const ActivitiesCollection = "activities"

// MongoStore stores activities in MongoDB.
type MongoStore struct {
	client     *mongo.Client
	activities *mongo.Collection
}

// OpenMongo connects to uri, pings the primary and ensures indexes.
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	s := &MongoStore{
		client:     client,
		activities: client.Database(database).Collection(ActivitiesCollection),
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logging.Info().Str("database", database).Msg("Connected to MongoDB")
	return s, nil
}

// EnsureIndexes creates the feed query indexes. It is idempotent.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.activities.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "actor_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "type", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create activity indexes: %w", err)
	}
	return nil
}

// CreateActivity inserts a. BSON dates carry millisecond precision, so the
// stored CreatedAt is truncated; the id still orders equal timestamps.
func (s *MongoStore) CreateActivity(ctx context.Context, a *models.Activity) error {
	doc := *a
	doc.CreatedAt = doc.CreatedAt.UTC().Truncate(time.Millisecond)
	if _, err := s.activities.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("activity %s: %w", a.ID, models.ErrConflict)
		}
		return fmt.Errorf("insert activity %s: %w", a.ID, err)
	}
	return nil
}

// ListActivities returns the activities matching q, newest first.
func (s *MongoStore) ListActivities(ctx context.Context, q models.ActivityQuery) ([]models.Activity, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(q.Offset))
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.activities.Find(ctx, activityFilter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("find activities: %w", err)
	}
	out := []models.Activity{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode activities: %w", err)
	}
	return out, nil
}

// activityFilter translates q into a MongoDB filter document.
func activityFilter(q models.ActivityQuery) bson.M {
	filter := bson.M{}

	actor := bson.M{}
	if len(q.ActorIDs) > 0 {
		actor["$in"] = q.ActorIDs
	}
	if len(q.ExcludeActorIDs) > 0 {
		actor["$nin"] = q.ExcludeActorIDs
	}
	if len(actor) > 0 {
		filter["actor_id"] = actor
	}

	if len(q.Types) > 0 {
		types := make([]string, len(q.Types))
		for i, t := range q.Types {
			types[i] = string(t)
		}
		filter["type"] = bson.M{"$in": types}
	}
	return filter
}

// Ping checks the primary.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
