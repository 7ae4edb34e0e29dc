package models

import (
	"time"

	"github.com/lib/pq"
)

type MenuItem struct {
	ID           string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	RestaurantID string         `gorm:"column:restaurant_id;type:uuid;index" json:"restaurant_id"`
	Name         string         `gorm:"column:name;type:text" json:"name"`
	Description  string         `gorm:"column:description;type:text" json:"description"`
	Category     string         `gorm:"column:category;type:text" json:"category"`
	Price        float64        `gorm:"column:price;type:numeric(10,2)" json:"price"`
	Available    bool           `gorm:"column:available;default:true" json:"available"`
	Tags         pq.StringArray `gorm:"column:tags;type:text[]" json:"tags"` // vegan, gluten-free, spicy...
	UpdatedAt    time.Time      `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (MenuItem) TableName() string { return "menu_items" }
