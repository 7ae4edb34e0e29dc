package models

import (
	"time"

	"gorm.io/datatypes"
)

// Analytics holds per-day counters for a restaurant (metrics is JSONB: {"messages": 12, "intent.reservation": 4}).
type Analytics struct {
	RestaurantID string         `gorm:"column:restaurant_id;type:uuid;primaryKey" json:"restaurant_id"`
	Day          time.Time      `gorm:"column:day;type:date;primaryKey" json:"day"`
	Metrics      datatypes.JSON `gorm:"column:metrics;type:jsonb" json:"metrics"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Analytics) TableName() string { return "analytics" }
