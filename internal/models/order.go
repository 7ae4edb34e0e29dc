package models

import (
	"time"

	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

// CanTransition: pending -> in_progress -> completed; cancel before completion.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	switch s {
	case OrderPending:
		return to == OrderInProgress || to == OrderCancelled
	case OrderInProgress:
		return to == OrderCompleted || to == OrderCancelled
	}
	return false
}

type OrderItem struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type Order struct {
	ID             string                         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	RestaurantID   string                         `gorm:"column:restaurant_id;type:uuid;index" json:"restaurant_id"`
	CustomerID     *string                        `gorm:"column:customer_id;type:uuid;index" json:"customer_id,omitempty"`
	OrderCode      string                         `gorm:"column:order_code;type:text;uniqueIndex" json:"order_code"`
	OrderType      string                         `gorm:"column:order_type;type:text" json:"order_type"` // takeout|delivery
	CustomerName   string                         `gorm:"column:customer_name;type:text" json:"customer_name"`
	Phone          string                         `gorm:"column:phone;type:text" json:"phone"`
	Address        string                         `gorm:"column:address;type:text" json:"address,omitempty"`
	Items          datatypes.JSONSlice[OrderItem] `gorm:"column:items;type:jsonb" json:"items"`
	Total          float64                        `gorm:"column:total;type:numeric(10,2)" json:"total"`
	PrepMinutes    int                            `gorm:"column:prep_minutes" json:"prep_minutes"`
	Status         OrderStatus                    `gorm:"column:status;type:text;default:pending" json:"status"`
	IdempotencyKey string                         `gorm:"column:idempotency_key;type:text;uniqueIndex" json:"-"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }
