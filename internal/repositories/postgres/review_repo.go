package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/dinedesk/internal/models"
	"github.com/yoockh/dinedesk/internal/utils"
	"gorm.io/gorm"
)

type ReviewRepository interface {
	GetByID(ctx context.Context, restaurantID, id string) (*models.Review, error)
	ListUnanswered(ctx context.Context, restaurantID string, limit int) ([]models.Review, error)
	SaveDraft(ctx context.Context, restaurantID, id, draft string, at time.Time) error
}

type reviewRepo struct {
	db *gorm.DB
}

func NewReviewRepo(db *gorm.DB) ReviewRepository {
	return &reviewRepo{db: db}
}

func (r *reviewRepo) GetByID(ctx context.Context, restaurantID, id string) (*models.Review, error) {
	var row models.Review
	err := r.db.WithContext(ctx).
		Where("restaurant_id = ? AND id = ?", restaurantID, id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *reviewRepo) ListUnanswered(ctx context.Context, restaurantID string, limit int) ([]models.Review, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.Review
	err := r.db.WithContext(ctx).
		Where("restaurant_id = ? AND responded_at IS NULL", restaurantID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *reviewRepo) SaveDraft(ctx context.Context, restaurantID, id, draft string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Review{}).
		Where("restaurant_id = ? AND id = ?", restaurantID, id).
		Updates(map[string]any{"response_draft": draft, "responded_at": at.UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}
