package models

import "time"

type Review struct {
	ID            string     `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	RestaurantID  string     `gorm:"column:restaurant_id;type:uuid;index" json:"restaurant_id"`
	Author        string     `gorm:"column:author;type:text" json:"author"`
	Rating        int        `gorm:"column:rating" json:"rating"` // 1..5
	Text          string     `gorm:"column:text;type:text" json:"text"`
	Source        string     `gorm:"column:source;type:text" json:"source,omitempty"` // google|yelp|...
	ResponseDraft string     `gorm:"column:response_draft;type:text" json:"response_draft,omitempty"`
	RespondedAt   *time.Time `gorm:"column:responded_at;type:timestamptz" json:"responded_at,omitempty"`
	CreatedAt     time.Time  `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (Review) TableName() string { return "reviews" }
