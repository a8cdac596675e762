package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EventsChannel is the Redis Pub/Sub channel carrying live device events
// for the dashboard feed.
const EventsChannel = "device_events"

// MongoSink persists events to the device_events collection and publishes
// them on Redis for live subscribers. All writes are fire-and-forget.
type MongoSink struct {
	db      *mongo.Database
	redis   *redis.Client
	timeout time.Duration
}

// NewMongoSink builds a sink over an established Mongo database. redisClient
// may be nil; live publishing is then skipped.
func NewMongoSink(db *mongo.Database, redisClient *redis.Client) *MongoSink {
	return &MongoSink{db: db, redis: redisClient, timeout: 5 * time.Second}
}

// EnsureEventIndexes configures indexes for the device_events collection.
// Called on startup from main after Mongo has connected.
func EnsureEventIndexes(ctx context.Context, db *mongo.Database) error {
	col := db.Collection("device_events")

	// Compound index on (device_id, created_at) to support the per-device
	// event timeline in the dashboard.
	model := mongo.IndexModel{
		Keys: bson.D{
			{Key: "device_id", Value: 1},
			{Key: "created_at", Value: -1},
		},
		Options: options.Index().SetName("idx_device_created"),
	}
	_, err := col.Indexes().CreateOne(ctx, model)
	return err
}

// Emit records the event asynchronously. The caller never blocks on it and
// never sees a failure; errors are logged and dropped.
func (s *MongoSink) Emit(event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.ActorType == "" {
		event.ActorType = "system"
	}

	go func(e Event) {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if _, err := s.db.Collection("device_events").InsertOne(ctx, e); err != nil {
			log.Printf("[audit] failed to store device event %s/%s: %v", e.DeviceID, e.Action, err)
		}

		if s.redis != nil {
			payload, err := json.Marshal(e)
			if err == nil {
				if err := s.redis.Publish(ctx, EventsChannel, payload).Err(); err != nil {
					log.Printf("[audit] failed to publish device event: %v", err)
				}
			}
		}
	}(event)
}
