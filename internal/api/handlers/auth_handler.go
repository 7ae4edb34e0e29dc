package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/dinedesk/internal/api/middleware"
	"github.com/yoockh/dinedesk/internal/services"
	"github.com/yoockh/dinedesk/internal/utils"
)

type AuthHandler struct {
	users services.UserService
	jwt   middleware.JWTOptions
	now   func() time.Time
}

func NewAuthHandler(users services.UserService, jwt middleware.JWTOptions) *AuthHandler {
	return &AuthHandler{users: users, jwt: jwt, now: time.Now}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges staff credentials for a bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	const op = "AuthHandler.Login"

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, op, "invalid_body", "invalid request body")
		return
	}
	u, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	rid := ""
	if u.RestaurantID != nil {
		rid = *u.RestaurantID
	}
	tok, exp, err := middleware.IssueStaffToken(h.jwt, u.ID, string(u.Role), rid, h.now())
	if err != nil {
		writeError(c, utils.ER(utils.CodeUnavailable, op, "auth_not_configured", "token signing is not configured", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      tok,
		"expires_at": exp.UTC(),
		"user":       u,
	})
}

// CreateUser is admin only.
func (h *AuthHandler) CreateUser(c *gin.Context) {
	const op = "AuthHandler.CreateUser"

	var in services.CreateStaffInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, op, "invalid_body", "invalid request body")
		return
	}
	u, err := h.users.Create(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}
