package models

import (
	"time"

	"gorm.io/datatypes"
)

type Channel string

const (
	ChannelWeb      Channel = "web"
	ChannelChat     Channel = "chat"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
	ChannelPhone    Channel = "phone"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelWeb, ChannelChat, ChannelSMS, ChannelWhatsApp, ChannelEmail, ChannelPhone:
		return true
	}
	return false
}

const (
	ConversationActive = "active"
	ConversationClosed = "closed"
)

// Message is one immutable entry of a conversation log.
type Message struct {
	Role      string            `json:"role"` // "user" | "assistant" | "staff"
	Channel   Channel           `json:"channel"`
	ThreadID  string            `json:"thread_id"`
	SenderID  string            `json:"sender_id,omitempty"`
	Text      string            `json:"text"`
	Timestamp time.Time         `json:"timestamp"`
	Meta      map[string]string `json:"meta,omitempty"`
}

type Conversation struct {
	ID           string  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	RestaurantID string  `gorm:"column:restaurant_id;type:uuid;uniqueIndex:ux_conversation_thread,priority:1" json:"restaurant_id"`
	CustomerID   *string `gorm:"column:customer_id;type:uuid;index" json:"customer_id,omitempty"`
	Channel      Channel `gorm:"column:channel;type:text;uniqueIndex:ux_conversation_thread,priority:2" json:"channel"`
	ThreadID     string  `gorm:"column:thread_id;type:text;uniqueIndex:ux_conversation_thread,priority:3" json:"thread_id"`
	Status       string  `gorm:"column:status;type:text;default:active" json:"status"`

	Messages datatypes.JSONSlice[Message] `gorm:"column:messages;type:jsonb" json:"messages"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Conversation) TableName() string { return "conversations" }

// Recent returns at most n trailing messages.
func (c *Conversation) Recent(n int) []Message {
	if c == nil {
		return nil
	}
	if n <= 0 || len(c.Messages) <= n {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-n:]
}
