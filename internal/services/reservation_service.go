package services

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/dinedesk/internal/models"
	pgrepo "github.com/yoockh/dinedesk/internal/repositories/postgres"
	"github.com/yoockh/dinedesk/internal/utils"
)

const defaultListLimit = 100

type ReservationService interface {
	List(ctx context.Context, restaurantID string, from, to time.Time, limit int) ([]models.Reservation, error)
	GetByCode(ctx context.Context, restaurantID, code string) (*models.Reservation, error)
	UpdateStatus(ctx context.Context, restaurantID, id string, to models.ReservationStatus) (*models.Reservation, error)
}

type reservationService struct {
	reservations pgrepo.ReservationRepository
}

func NewReservationService(reservations pgrepo.ReservationRepository) ReservationService {
	return &reservationService{reservations: reservations}
}

func (s *reservationService) List(ctx context.Context, restaurantID string, from, to time.Time, limit int) ([]models.Reservation, error) {
	const op = "ReservationService.List"

	if restaurantID == "" {
		return nil, utils.ER(utils.CodeInvalidArgument, op, "missing_restaurant_id", "restaurant_id is required", nil)
	}
	if !to.After(from) {
		return nil, utils.ER(utils.CodeInvalidArgument, op, "invalid_range", "to must be after from", nil)
	}
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	rows, err := s.reservations.ListBetween(ctx, restaurantID, from, to, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list reservations", err)
	}
	return rows, nil
}

func (s *reservationService) GetByCode(ctx context.Context, restaurantID, code string) (*models.Reservation, error) {
	const op = "ReservationService.GetByCode"

	if restaurantID == "" || code == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "restaurant_id and code are required", nil)
	}
	row, err := s.reservations.GetByCode(ctx, restaurantID, code)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "reservation not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get reservation", err)
	}
	return row, nil
}

func (s *reservationService) UpdateStatus(ctx context.Context, restaurantID, id string, to models.ReservationStatus) (*models.Reservation, error) {
	const op = "ReservationService.UpdateStatus"

	switch to {
	case models.ReservationConfirmed, models.ReservationCancelled:
	default:
		return nil, utils.ER(utils.CodeInvalidArgument, op, "invalid_status", "status must be confirmed or cancelled", nil)
	}

	row, err := s.reservations.GetByID(ctx, restaurantID, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "reservation not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get reservation", err)
	}
	if row.Status == to {
		return row, nil
	}
	if !row.Status.CanTransition(to) {
		return nil, utils.ER(utils.CodeConflict, op, "invalid_transition",
			"cannot move reservation from "+string(row.Status)+" to "+string(to), nil)
	}

	if err := s.reservations.UpdateStatus(ctx, restaurantID, id, row.Status, to); err != nil {
		if errors.Is(err, utils.ErrConflict) {
			return nil, utils.ER(utils.CodeConflict, op, "concurrent_update", "reservation was changed by someone else", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to update reservation", err)
	}
	row.Status = to
	return row, nil
}
