package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ToolExecution is the audit record of one tool call made by the agent.
// Stored in Mongo with a TTL index on expires_at.
type ToolExecution struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RequestID    string             `bson:"request_id" json:"request_id"`
	RestaurantID string             `bson:"restaurant_id" json:"restaurant_id"`
	ThreadID     string             `bson:"thread_id" json:"thread_id"`
	Turn         int                `bson:"turn" json:"turn"`
	ToolName     string             `bson:"tool_name" json:"tool_name"`
	Arguments    map[string]any     `bson:"arguments,omitempty" json:"arguments,omitempty"`
	Result       map[string]any     `bson:"result,omitempty" json:"result,omitempty"`
	OK           bool               `bson:"ok" json:"ok"`
	ErrorCode    string             `bson:"error_code,omitempty" json:"error_code,omitempty"`
	DurationMS   int64              `bson:"duration_ms" json:"duration_ms"`
	Timestamp    time.Time          `bson:"timestamp" json:"timestamp"`

	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}
