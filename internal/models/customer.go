package models

import (
	"time"

	"gorm.io/datatypes"
)

type Customer struct {
	ID           string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	RestaurantID string `gorm:"column:restaurant_id;type:uuid;index" json:"restaurant_id"`
	Name         string `gorm:"column:name;type:text" json:"name"`
	Phone        string `gorm:"column:phone;type:text;index" json:"phone"`
	Email        string `gorm:"column:email;type:text" json:"email"`

	// JSONB: dietary notes, seating preference, etc.
	Preferences datatypes.JSON `gorm:"column:preferences;type:jsonb" json:"preferences"`
	VisitCount  int            `gorm:"column:visit_count;default:0" json:"visit_count"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }
