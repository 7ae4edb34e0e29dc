package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/dinedesk/internal/models"
	pgrepo "github.com/yoockh/dinedesk/internal/repositories/postgres"
	"github.com/yoockh/dinedesk/internal/utils"
)

type CreateStaffInput struct {
	Email        string           `json:"email"`
	Password     string           `json:"password"`
	Role         models.StaffRole `json:"role"`
	RestaurantID string           `json:"restaurant_id"`
}

// UserService manages staff dashboard accounts.
type UserService interface {
	Authenticate(ctx context.Context, email, password string) (*models.StaffUser, error)
	Create(ctx context.Context, in CreateStaffInput) (*models.StaffUser, error)
}

type userService struct {
	users pgrepo.UserRepository
	log   *logrus.Logger
	now   func() time.Time
}

func NewUserService(users pgrepo.UserRepository, log *logrus.Logger) UserService {
	if log == nil {
		log = logrus.New()
	}
	return &userService{users: users, log: log, now: time.Now}
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (s *userService) Authenticate(ctx context.Context, email, password string) (*models.StaffUser, error) {
	const op = "UserService.Authenticate"

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, utils.ER(utils.CodeInvalidArgument, op, "missing_credentials", "email and password are required", nil)
	}

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, utils.ErrNotFound) {
		utils.BurnPasswordCheck(password)
		return nil, utils.ER(utils.CodeUnauthorized, op, "invalid_credentials", "invalid email or password", nil)
	}
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load user", err)
	}
	if err := utils.CheckPassword(u.PasswordHash, password); err != nil {
		return nil, utils.ER(utils.CodeUnauthorized, op, "invalid_credentials", "invalid email or password", nil)
	}

	at := s.now().UTC()
	if err := s.users.TouchSignIn(ctx, u.ID, at); err != nil {
		s.log.WithError(err).WithField("staff_id", u.ID).Warn("failed to record sign in")
	} else {
		u.LastSignInAt = &at
	}
	return u, nil
}

func (s *userService) Create(ctx context.Context, in CreateStaffInput) (*models.StaffUser, error) {
	const op = "UserService.Create"

	email := normalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, utils.ER(utils.CodeInvalidArgument, op, "invalid_email", "a valid email is required", nil)
	}
	if len(in.Password) < utils.MinPasswordLen {
		return nil, utils.ER(utils.CodeInvalidArgument, op, "weak_password", "password is too short", nil)
	}
	if in.Role == "" {
		in.Role = models.RoleStaff
	}
	if !in.Role.Valid() {
		return nil, utils.ER(utils.CodeInvalidArgument, op, "invalid_role", "role must be staff, manager or admin", nil)
	}

	u := &models.StaffUser{
		ID:        uuid.NewString(),
		Email:     email,
		Role:      in.Role,
		CreatedAt: s.now().UTC(),
	}
	if in.Role != models.RoleAdmin {
		if strings.TrimSpace(in.RestaurantID) == "" {
			return nil, utils.ER(utils.CodeInvalidArgument, op, "missing_restaurant", "restaurant_id is required for staff and managers", nil)
		}
		rid := in.RestaurantID
		u.RestaurantID = &rid
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to hash password", err)
	}
	u.PasswordHash = hash

	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, utils.ErrConflict) {
			return nil, utils.ER(utils.CodeConflict, op, "email_taken", "email already registered", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to create user", err)
	}
	return u, nil
}
