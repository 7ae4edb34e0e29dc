package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/dinedesk/internal/models"
	pgrepo "github.com/yoockh/dinedesk/internal/repositories/postgres"
	"github.com/yoockh/dinedesk/internal/utils"
)

type OrderService interface {
	List(ctx context.Context, restaurantID string, status models.OrderStatus, limit int) ([]models.Order, error)
	GetByCode(ctx context.Context, restaurantID, code string) (*models.Order, error)
	UpdateStatus(ctx context.Context, restaurantID, id string, to models.OrderStatus) (*models.Order, error)
}

type orderService struct {
	orders    pgrepo.OrderRepository
	customers pgrepo.CustomerRepository
	log       *logrus.Logger
}

func NewOrderService(orders pgrepo.OrderRepository, customers pgrepo.CustomerRepository, log *logrus.Logger) OrderService {
	if log == nil {
		log = logrus.New()
	}
	return &orderService{orders: orders, customers: customers, log: log}
}

func (s *orderService) List(ctx context.Context, restaurantID string, status models.OrderStatus, limit int) ([]models.Order, error) {
	const op = "OrderService.List"

	if restaurantID == "" {
		return nil, utils.ER(utils.CodeInvalidArgument, op, "missing_restaurant_id", "restaurant_id is required", nil)
	}
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	rows, err := s.orders.ListByStatus(ctx, restaurantID, status, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list orders", err)
	}
	return rows, nil
}

func (s *orderService) GetByCode(ctx context.Context, restaurantID, code string) (*models.Order, error) {
	const op = "OrderService.GetByCode"

	if restaurantID == "" || code == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "restaurant_id and code are required", nil)
	}
	row, err := s.orders.GetByCode(ctx, restaurantID, code)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "order not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get order", err)
	}
	return row, nil
}

// UpdateStatus moves an order along its lifecycle. Completing an order linked
// to a known customer counts as a visit.
func (s *orderService) UpdateStatus(ctx context.Context, restaurantID, id string, to models.OrderStatus) (*models.Order, error) {
	const op = "OrderService.UpdateStatus"

	row, err := s.orders.GetByID(ctx, restaurantID, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "order not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get order", err)
	}
	if row.Status == to {
		return row, nil
	}
	if !row.Status.CanTransition(to) {
		return nil, utils.ER(utils.CodeConflict, op, "invalid_transition",
			"cannot move order from "+string(row.Status)+" to "+string(to), nil)
	}

	if err := s.orders.UpdateStatus(ctx, restaurantID, id, row.Status, to); err != nil {
		if errors.Is(err, utils.ErrConflict) {
			return nil, utils.ER(utils.CodeConflict, op, "concurrent_update", "order was changed by someone else", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to update order", err)
	}
	row.Status = to

	if to == models.OrderCompleted && row.CustomerID != nil && s.customers != nil {
		if err := s.customers.IncrementVisits(ctx, *row.CustomerID); err != nil {
			s.log.WithError(err).WithField("order_id", id).Warn("failed to count customer visit")
		}
	}
	return row, nil
}
