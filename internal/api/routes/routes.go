package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yoockh/dinedesk/internal/api/handlers"
	"github.com/yoockh/dinedesk/internal/api/middleware"
	"github.com/yoockh/dinedesk/internal/metrics"
)

type Deps struct {
	Assistant     *handlers.AssistantHandler
	Staff         *handlers.StaffHandler
	Conversations *handlers.ConversationHandler
	WS            *handlers.WSHandler
	Health        *handlers.HealthHandler
	Auth          *handlers.AuthHandler

	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer // nil hides /metrics
	Limiter        *middleware.Limiter
	JWT            middleware.JWTOptions
	RequestTimeout time.Duration
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/health", d.Health.Health)
	r.GET("/ready", d.Health.Ready)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	// Channel adapters
	api := r.Group("/")
	api.Use(middleware.Timeout(d.RequestTimeout), middleware.RateLimit(d.Limiter, d.Metrics))
	api.POST("/process", d.Assistant.Process)
	api.POST("/analyze-sentiment", d.Assistant.AnalyzeSentiment)
	api.POST("/generate-response", d.Assistant.GenerateResponse)

	// WebSocket; long lived, so no request timeout
	r.GET("/ws/chat/:restaurant_id", middleware.RateLimit(d.Limiter, d.Metrics), d.WS.Chat)

	r.POST("/auth/login", middleware.Timeout(d.RequestTimeout), middleware.RateLimit(d.Limiter, d.Metrics), d.Auth.Login)

	// Staff (JWT)
	staff := r.Group("/staff")
	staff.Use(middleware.StaffAuth(d.JWT), middleware.RequireRole("staff", "manager", "admin"), middleware.Timeout(d.RequestTimeout))

	staff.GET("/reservations", d.Staff.ListReservations)
	staff.GET("/reservations/code/:code", d.Staff.GetReservationByCode)
	staff.PATCH("/reservations/:id", d.Staff.UpdateReservation)

	staff.GET("/orders", d.Staff.ListOrders)
	staff.PATCH("/orders/:id", d.Staff.UpdateOrder)

	staff.GET("/conversations", d.Conversations.List)
	staff.GET("/conversations/:id", d.Conversations.Get)
	staff.POST("/conversations/:id/close", d.Conversations.Close)
	staff.POST("/conversations/:id/reply", d.Conversations.Reply)
	staff.GET("/conversations/:id/tools", d.Conversations.ToolHistory)
	staff.GET("/conversations/:id/voice", d.Conversations.VoiceURL)

	staff.GET("/reviews", d.Staff.ListReviews)
	staff.POST("/reviews/:id/draft", d.Staff.DraftReview)

	manager := staff.Group("/")
	manager.Use(middleware.RequireManager())
	manager.GET("/analytics", d.Staff.Analytics)

	admin := staff.Group("/")
	admin.Use(middleware.RequireRole("admin"))
	admin.POST("/users", d.Auth.CreateUser)
}
