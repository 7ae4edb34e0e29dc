package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/dinedesk/internal/models"
	"github.com/yoockh/dinedesk/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderRepository interface {
	CreateIdempotent(ctx context.Context, o *models.Order) (out *models.Order, created bool, err error)
	GetByCode(ctx context.Context, restaurantID, code string) (*models.Order, error)
	GetByID(ctx context.Context, restaurantID, id string) (*models.Order, error)
	ListByStatus(ctx context.Context, restaurantID string, status models.OrderStatus, limit int) ([]models.Order, error)
	UpdateStatus(ctx context.Context, restaurantID, id string, from, to models.OrderStatus) error
}

type orderRepo struct {
	db *gorm.DB
}

func NewOrderRepo(db *gorm.DB) OrderRepository {
	return &orderRepo{db: db}
}

func (r *orderRepo) CreateIdempotent(ctx context.Context, o *models.Order) (*models.Order, bool, error) {
	tx := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(o)
	if tx.Error != nil {
		return nil, false, tx.Error
	}
	if tx.RowsAffected > 0 {
		return o, true, nil
	}

	var existing models.Order
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", o.IdempotencyKey).Take(&existing).Error; err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (r *orderRepo) GetByCode(ctx context.Context, restaurantID, code string) (*models.Order, error) {
	return r.take(ctx, "restaurant_id = ? AND order_code = ?", restaurantID, code)
}

func (r *orderRepo) GetByID(ctx context.Context, restaurantID, id string) (*models.Order, error) {
	return r.take(ctx, "restaurant_id = ? AND id = ?", restaurantID, id)
}

func (r *orderRepo) take(ctx context.Context, where string, args ...any) (*models.Order, error) {
	var row models.Order
	err := r.db.WithContext(ctx).Where(where, args...).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *orderRepo) ListByStatus(ctx context.Context, restaurantID string, status models.OrderStatus, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	q := r.db.WithContext(ctx).Where("restaurant_id = ?", restaurantID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var rows []models.Order
	err := q.Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *orderRepo) UpdateStatus(ctx context.Context, restaurantID, id string, from, to models.OrderStatus) error {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("restaurant_id = ? AND id = ? AND status = ?", restaurantID, id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrConflict
	}
	return nil
}
