package config

import (
	"context"
	"time"

	mongorepo "github.com/yoockh/dinedesk/internal/repositories/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tools := db.Collection(mongorepo.ToolExecutionsCollection)
	_, err := tools.Indexes().CreateMany(ctx, []mongo.IndexModel{
		// expires_at must be a Date
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().
				SetName("ttl_expires_at").
				SetExpireAfterSeconds(0),
		},
		{
			Keys:    bson.D{{Key: "request_id", Value: 1}, {Key: "turn", Value: 1}},
			Options: options.Index().SetName("by_request_turn"),
		},
		{
			Keys: bson.D{
				{Key: "restaurant_id", Value: 1},
				{Key: "thread_id", Value: 1},
				{Key: "timestamp", Value: -1},
			},
			Options: options.Index().SetName("by_thread_ts"),
		},
	})
	return err
}
