package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultStream = "events:messages"
	// approximate cap on stream length; the worker acks long before this
	defaultMaxLen = 100_000

	TypeMessageProcessed = "message_processed"
)

// ToolCallRecord is one audited tool invocation inside a processed message.
type ToolCallRecord struct {
	Turn       int            `json:"turn"`
	Name       string         `json:"name"`
	Args       map[string]any `json:"args,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	OK         bool           `json:"ok"`
	ErrorCode  string         `json:"error_code,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

// MessageProcessed is emitted once per handled customer message.
type MessageProcessed struct {
	RequestID    string           `json:"request_id"`
	RestaurantID string           `json:"restaurant_id"`
	Channel      string           `json:"channel"`
	ThreadID     string           `json:"thread_id"`
	Intent       string           `json:"intent"`
	Cached       bool             `json:"cached"`
	Degraded     bool             `json:"degraded"`
	Handoff      bool             `json:"handoff,omitempty"`
	Turns        int              `json:"turns"`
	ToolCalls    []ToolCallRecord `json:"tool_calls,omitempty"`
	At           time.Time        `json:"at"`
}

type Publisher interface {
	PublishMessageProcessed(ctx context.Context, ev MessageProcessed) error
}

type RedisPublisher struct {
	rdb    redis.Cmdable
	stream string
	maxLen int64
}

func NewRedisPublisher(rdb redis.Cmdable, stream string) *RedisPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisPublisher{rdb: rdb, stream: stream, maxLen: defaultMaxLen}
}

func (p *RedisPublisher) Stream() string { return p.stream }

func (p *RedisPublisher) PublishMessageProcessed(ctx context.Context, ev MessageProcessed) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"type":          TypeMessageProcessed,
			"restaurant_id": ev.RestaurantID,
			"payload":       string(payload),
		},
	}).Err()
}

// Decode reads a stream entry written by RedisPublisher.
func Decode(values map[string]any) (string, MessageProcessed, error) {
	var ev MessageProcessed
	typ, _ := values["type"].(string)
	raw, _ := values["payload"].(string)
	if typ == "" || raw == "" {
		return typ, ev, fmt.Errorf("event missing type or payload")
	}
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return typ, ev, fmt.Errorf("decode %s: %w", typ, err)
	}
	return typ, ev, nil
}

// ThreadChannel is the pub/sub channel carrying live replies for one chat thread.
func ThreadChannel(restaurantID, threadID string) string {
	return "chat:" + restaurantID + ":" + threadID
}

// ThreadMessage is pushed to live chat subscribers of a thread.
type ThreadMessage struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	SenderID  string    `json:"sender_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ThreadNotifier interface {
	NotifyThread(ctx context.Context, restaurantID, threadID string, msg ThreadMessage) error
}

func (p *RedisPublisher) NotifyThread(ctx context.Context, restaurantID, threadID string, msg ThreadMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal thread message: %w", err)
	}
	return p.rdb.Publish(ctx, ThreadChannel(restaurantID, threadID), raw).Err()
}
