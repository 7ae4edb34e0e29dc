package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/dinedesk/internal/models"
	"github.com/yoockh/dinedesk/internal/services"
)

type StaffHandler struct {
	reservations services.ReservationService
	orders       services.OrderService
	reviews      services.ReviewService
	analytics    services.AnalyticsService
	now          func() time.Time
}

func NewStaffHandler(reservations services.ReservationService, orders services.OrderService, reviews services.ReviewService, analytics services.AnalyticsService) *StaffHandler {
	return &StaffHandler{reservations: reservations, orders: orders, reviews: reviews, analytics: analytics, now: time.Now}
}

type statusRequest struct {
	Status string `json:"status"`
}

// ListReservations defaults to the next 24 hours.
func (h *StaffHandler) ListReservations(c *gin.Context) {
	const op = "StaffHandler.ListReservations"
	rid, _, ok := staffScope(c)
	if !ok {
		return
	}
	now := h.now().UTC()
	from, ok1 := queryTime(c, "from", now)
	to, ok2 := queryTime(c, "to", from.Add(24*time.Hour))
	if !ok1 || !ok2 {
		badRequest(c, op, "invalid_time", "from/to must be RFC3339 or YYYY-MM-DD")
		return
	}
	rows, err := h.reservations.List(c.Request.Context(), rid, from, to, queryLimit(c, 100))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservations": rows})
}

func (h *StaffHandler) GetReservationByCode(c *gin.Context) {
	rid, _, ok := staffScope(c)
	if !ok {
		return
	}
	row, err := h.reservations.GetByCode(c.Request.Context(), rid, c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *StaffHandler) UpdateReservation(c *gin.Context) {
	rid, _, ok := staffScope(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "StaffHandler.UpdateReservation", "invalid_json", "invalid json body")
		return
	}
	row, err := h.reservations.UpdateStatus(c.Request.Context(), rid, c.Param("id"), models.ReservationStatus(req.Status))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *StaffHandler) ListOrders(c *gin.Context) {
	rid, _, ok := staffScope(c)
	if !ok {
		return
	}
	rows, err := h.orders.List(c.Request.Context(), rid, models.OrderStatus(c.Query("status")), queryLimit(c, 100))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": rows})
}

func (h *StaffHandler) UpdateOrder(c *gin.Context) {
	rid, _, ok := staffScope(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "StaffHandler.UpdateOrder", "invalid_json", "invalid json body")
		return
	}
	row, err := h.orders.UpdateStatus(c.Request.Context(), rid, c.Param("id"), models.OrderStatus(req.Status))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *StaffHandler) ListReviews(c *gin.Context) {
	rid, _, ok := staffScope(c)
	if !ok {
		return
	}
	rows, err := h.reviews.ListUnanswered(c.Request.Context(), rid, queryLimit(c, 50))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": rows})
}

func (h *StaffHandler) DraftReview(c *gin.Context) {
	rid, _, ok := staffScope(c)
	if !ok {
		return
	}
	d, err := h.reviews.Draft(c.Request.Context(), rid, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// Analytics defaults to the last 7 days.
func (h *StaffHandler) Analytics(c *gin.Context) {
	const op = "StaffHandler.Analytics"
	rid, _, ok := staffScope(c)
	if !ok {
		return
	}
	now := h.now().UTC()
	to, ok1 := queryTime(c, "to", now)
	from, ok2 := queryTime(c, "from", to.AddDate(0, 0, -6))
	if !ok1 || !ok2 {
		badRequest(c, op, "invalid_time", "from/to must be RFC3339 or YYYY-MM-DD")
		return
	}
	sum, err := h.analytics.Summary(c.Request.Context(), rid, from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}
