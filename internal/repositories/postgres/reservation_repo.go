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

type ReservationRepository interface {
	// CreateIdempotent inserts res unless a row with the same idempotency key
	// exists, in which case that row is returned with created=false.
	CreateIdempotent(ctx context.Context, res *models.Reservation) (out *models.Reservation, created bool, err error)
	// BookedCovers sums party sizes of non-cancelled reservations starting in (from, to).
	BookedCovers(ctx context.Context, restaurantID string, from, to time.Time) (int, error)
	GetByCode(ctx context.Context, restaurantID, code string) (*models.Reservation, error)
	GetByID(ctx context.Context, restaurantID, id string) (*models.Reservation, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Reservation, error)
	ListBetween(ctx context.Context, restaurantID string, from, to time.Time, limit int) ([]models.Reservation, error)
	UpdateStatus(ctx context.Context, restaurantID, id string, from, to models.ReservationStatus) error
}

type reservationRepo struct {
	db *gorm.DB
}

func NewReservationRepo(db *gorm.DB) ReservationRepository {
	return &reservationRepo{db: db}
}

func (r *reservationRepo) CreateIdempotent(ctx context.Context, res *models.Reservation) (*models.Reservation, bool, error) {
	tx := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(res)
	if tx.Error != nil {
		return nil, false, tx.Error
	}
	if tx.RowsAffected > 0 {
		return res, true, nil
	}

	var existing models.Reservation
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", res.IdempotencyKey).
		Take(&existing).Error
	if err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (r *reservationRepo) BookedCovers(ctx context.Context, restaurantID string, from, to time.Time) (int, error) {
	var n int
	err := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Select("COALESCE(SUM(party_size), 0)").
		Where("restaurant_id = ? AND status <> ? AND reserved_at > ? AND reserved_at < ?",
			restaurantID, models.ReservationCancelled, from.UTC(), to.UTC()).
		Scan(&n).Error
	return n, err
}

func (r *reservationRepo) GetByCode(ctx context.Context, restaurantID, code string) (*models.Reservation, error) {
	return r.take(ctx, "restaurant_id = ? AND confirmation_code = ?", restaurantID, code)
}

func (r *reservationRepo) GetByID(ctx context.Context, restaurantID, id string) (*models.Reservation, error) {
	return r.take(ctx, "restaurant_id = ? AND id = ?", restaurantID, id)
}

func (r *reservationRepo) GetByIdempotencyKey(ctx context.Context, key string) (*models.Reservation, error) {
	return r.take(ctx, "idempotency_key = ?", key)
}

func (r *reservationRepo) take(ctx context.Context, where string, args ...any) (*models.Reservation, error) {
	var row models.Reservation
	err := r.db.WithContext(ctx).Where(where, args...).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *reservationRepo) ListBetween(ctx context.Context, restaurantID string, from, to time.Time, limit int) ([]models.Reservation, error) {
	if limit <= 0 {
		limit = 200
	}
	var rows []models.Reservation
	err := r.db.WithContext(ctx).
		Where("restaurant_id = ? AND reserved_at >= ? AND reserved_at < ?", restaurantID, from.UTC(), to.UTC()).
		Order("reserved_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// UpdateStatus is a compare-and-set on the current status.
func (r *reservationRepo) UpdateStatus(ctx context.Context, restaurantID, id string, from, to models.ReservationStatus) error {
	res := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
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
