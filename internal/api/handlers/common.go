package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/dinedesk/internal/utils"
)

type APIError struct {
	Code    utils.Code `json:"code"`
	Reason  string     `json:"reason,omitempty"`
	Message string     `json:"message"`
}

func writeError(c *gin.Context, err error) {
	status := utils.HTTPStatus(err)

	var ae *utils.AppError
	if errors.As(err, &ae) {
		msg := ae.Message
		if msg == "" {
			msg = http.StatusText(status)
		}
		c.JSON(status, APIError{
			Code:    ae.Code,
			Reason:  ae.Reason,
			Message: msg,
		})
		return
	}

	c.JSON(status, APIError{
		Code:    utils.CodeInternal,
		Message: http.StatusText(status),
	})
}

func badRequest(c *gin.Context, op, reason, msg string) {
	writeError(c, utils.ER(utils.CodeInvalidArgument, op, reason, msg, nil))
}

// staffScope returns the restaurant a staff caller may act on. Admin tokens
// carry no restaurant and must name one with ?restaurant_id=.
func staffScope(c *gin.Context) (restaurantID, staffID string, ok bool) {
	staffID = c.GetString("staff_id")
	restaurantID = c.GetString("restaurant_id")
	if restaurantID == "" && c.GetString("role") == "admin" {
		restaurantID = c.Query("restaurant_id")
	}
	if staffID == "" || restaurantID == "" {
		writeError(c, utils.ER(utils.CodeUnauthorized, "Auth", "missing_restaurant", "unauthorized", nil))
		return "", "", false
	}
	return restaurantID, staffID, true
}

func queryLimit(c *gin.Context, def int) int {
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// queryTime accepts RFC3339 or a bare YYYY-MM-DD date (UTC midnight).
func queryTime(c *gin.Context, key string, def time.Time) (time.Time, bool) {
	v := c.Query(key)
	if v == "" {
		return def, true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, true
	}
	return time.Time{}, false
}
