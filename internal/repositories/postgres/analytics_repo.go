package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yoockh/dinedesk/internal/models"
	"gorm.io/gorm"
)

type AnalyticsRepository interface {
	// Increment adds deltas to the day's JSONB counters, creating the row if needed.
	Increment(ctx context.Context, restaurantID string, day time.Time, deltas map[string]int64) error
	Range(ctx context.Context, restaurantID string, from, to time.Time) ([]models.Analytics, error)
}

type analyticsRepo struct {
	db *gorm.DB
}

func NewAnalyticsRepo(db *gorm.DB) AnalyticsRepository {
	return &analyticsRepo{db: db}
}

const incrementAnalyticsSQL = `
INSERT INTO analytics (restaurant_id, day, metrics, updated_at)
VALUES (?, ?, ?::jsonb, ?)
ON CONFLICT (restaurant_id, day) DO UPDATE SET
	metrics = analytics.metrics || (
		SELECT jsonb_object_agg(e.key, COALESCE((analytics.metrics->>e.key)::bigint, 0) + e.value::bigint)
		FROM jsonb_each_text(EXCLUDED.metrics) AS e
	),
	updated_at = EXCLUDED.updated_at`

func (r *analyticsRepo) Increment(ctx context.Context, restaurantID string, day time.Time, deltas map[string]int64) error {
	if len(deltas) == 0 {
		return nil
	}
	b, err := json.Marshal(deltas)
	if err != nil {
		return err
	}
	y, m, d := day.Date()
	return r.db.WithContext(ctx).
		Exec(incrementAnalyticsSQL, restaurantID, time.Date(y, m, d, 0, 0, 0, 0, time.UTC), string(b), time.Now().UTC()).
		Error
}

func (r *analyticsRepo) Range(ctx context.Context, restaurantID string, from, to time.Time) ([]models.Analytics, error) {
	var rows []models.Analytics
	err := r.db.WithContext(ctx).
		Where("restaurant_id = ? AND day >= ? AND day <= ?", restaurantID, from, to).
		Order("day ASC").
		Find(&rows).Error
	return rows, err
}
