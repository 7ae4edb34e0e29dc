package postgres

import (
	"context"
	"errors"

	"github.com/yoockh/dinedesk/internal/models"
	"github.com/yoockh/dinedesk/internal/utils"
	"gorm.io/gorm"
)

type CustomerRepository interface {
	GetByID(ctx context.Context, restaurantID, id string) (*models.Customer, error)
	IncrementVisits(ctx context.Context, id string) error
}

type customerRepo struct {
	db *gorm.DB
}

func NewCustomerRepo(db *gorm.DB) CustomerRepository {
	return &customerRepo{db: db}
}

func (r *customerRepo) GetByID(ctx context.Context, restaurantID, id string) (*models.Customer, error) {
	var c models.Customer
	err := r.db.WithContext(ctx).
		Where("restaurant_id = ? AND id = ?", restaurantID, id).
		Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *customerRepo) IncrementVisits(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ?", id).
		UpdateColumn("visit_count", gorm.Expr("visit_count + 1")).Error
}
