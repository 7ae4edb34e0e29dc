package models

import "time"

type StaffRole string

const (
	RoleStaff   StaffRole = "staff"
	RoleManager StaffRole = "manager"
	RoleAdmin   StaffRole = "admin"
)

func (r StaffRole) Valid() bool {
	switch r {
	case RoleStaff, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// StaffUser is a dashboard account. Admins have no restaurant_id.
type StaffUser struct {
	ID           string    `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	RestaurantID *string   `gorm:"column:restaurant_id;type:uuid;index" json:"restaurant_id,omitempty"`
	Email        string    `gorm:"column:email;type:text;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;type:text" json:"-"`
	Role         StaffRole `gorm:"column:role;type:text" json:"role"`

	LastSignInAt *time.Time `gorm:"column:last_sign_in_at;type:timestamptz" json:"last_sign_in_at,omitempty"`
	CreatedAt    time.Time  `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (StaffUser) TableName() string { return "staff_users" }
