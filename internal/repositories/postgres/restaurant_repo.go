package postgres

import (
	"context"
	"errors"

	"github.com/yoockh/dinedesk/internal/models"
	"github.com/yoockh/dinedesk/internal/utils"
	"gorm.io/gorm"
)

type RestaurantRepository interface {
	GetByID(ctx context.Context, id string) (*models.Restaurant, error)
}

type restaurantRepo struct {
	db *gorm.DB
}

func NewRestaurantRepo(db *gorm.DB) RestaurantRepository {
	return &restaurantRepo{db: db}
}

func (r *restaurantRepo) GetByID(ctx context.Context, id string) (*models.Restaurant, error) {
	var row models.Restaurant
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
