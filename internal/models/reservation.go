package models

import "time"

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
)

// CanTransition: pending -> confirmed|cancelled, confirmed -> cancelled.
func (s ReservationStatus) CanTransition(to ReservationStatus) bool {
	switch s {
	case ReservationPending:
		return to == ReservationConfirmed || to == ReservationCancelled
	case ReservationConfirmed:
		return to == ReservationCancelled
	}
	return false
}

type Reservation struct {
	ID               string            `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	RestaurantID     string            `gorm:"column:restaurant_id;type:uuid;index:ix_reservation_slot,priority:1" json:"restaurant_id"`
	CustomerID       *string           `gorm:"column:customer_id;type:uuid;index" json:"customer_id,omitempty"`
	ConfirmationCode string            `gorm:"column:confirmation_code;type:text;uniqueIndex" json:"confirmation_code"`
	CustomerName     string            `gorm:"column:customer_name;type:text" json:"customer_name"`
	Phone            string            `gorm:"column:phone;type:text" json:"phone"`
	ReservedAt       time.Time         `gorm:"column:reserved_at;type:timestamptz;index:ix_reservation_slot,priority:2" json:"reserved_at"`
	PartySize        int               `gorm:"column:party_size" json:"party_size"`
	SpecialRequests  string            `gorm:"column:special_requests;type:text" json:"special_requests,omitempty"`
	Status           ReservationStatus `gorm:"column:status;type:text;default:pending" json:"status"`
	IdempotencyKey   string            `gorm:"column:idempotency_key;type:text;uniqueIndex" json:"-"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Reservation) TableName() string { return "reservations" }
