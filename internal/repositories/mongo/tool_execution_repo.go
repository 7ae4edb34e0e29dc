package mongo

import (
	"context"
	"time"

	"github.com/yoockh/dinedesk/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const ToolExecutionsCollection = "tool_executions"

type ToolExecutionRepository interface {
	InsertMany(ctx context.Context, rows []models.ToolExecution) error
	ListByRequest(ctx context.Context, requestID string) ([]models.ToolExecution, error)
	ListByThread(ctx context.Context, restaurantID, threadID string, limit int64) ([]models.ToolExecution, error)
}

type toolExecutionRepo struct {
	col *mongo.Collection
}

func NewToolExecutionRepo(db *mongo.Database) ToolExecutionRepository {
	return &toolExecutionRepo{col: db.Collection(ToolExecutionsCollection)}
}

func (r *toolExecutionRepo) InsertMany(ctx context.Context, rows []models.ToolExecution) error {
	if len(rows) == 0 {
		return nil
	}
	docs := make([]any, len(rows))
	now := time.Now().UTC()
	for i := range rows {
		if rows[i].Timestamp.IsZero() {
			rows[i].Timestamp = now
		}
		docs[i] = rows[i]
	}
	_, err := r.col.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	return err
}

func (r *toolExecutionRepo) ListByRequest(ctx context.Context, requestID string) ([]models.ToolExecution, error) {
	cur, err := r.col.Find(ctx,
		bson.M{"request_id": requestID},
		options.Find().SetSort(bson.D{{Key: "turn", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.ToolExecution
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *toolExecutionRepo) ListByThread(ctx context.Context, restaurantID, threadID string, limit int64) ([]models.ToolExecution, error) {
	if limit <= 0 {
		limit = 100
	}

	cur, err := r.col.Find(ctx,
		bson.M{"restaurant_id": restaurantID, "thread_id": threadID},
		options.Find().
			SetSort(bson.D{{Key: "timestamp", Value: -1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.ToolExecution
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
