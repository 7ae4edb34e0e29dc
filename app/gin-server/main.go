package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/dinedesk/config"
	"github.com/yoockh/dinedesk/internal/agent"
	"github.com/yoockh/dinedesk/internal/api/handlers"
	"github.com/yoockh/dinedesk/internal/api/middleware"
	"github.com/yoockh/dinedesk/internal/api/routes"
	"github.com/yoockh/dinedesk/internal/cache"
	"github.com/yoockh/dinedesk/internal/events"
	"github.com/yoockh/dinedesk/internal/logger"
	"github.com/yoockh/dinedesk/internal/metrics"
	"github.com/yoockh/dinedesk/internal/providers/llm"
	"github.com/yoockh/dinedesk/internal/providers/stt"
	mongorepo "github.com/yoockh/dinedesk/internal/repositories/mongo"
	pgrepo "github.com/yoockh/dinedesk/internal/repositories/postgres"
	"github.com/yoockh/dinedesk/internal/responses"
	"github.com/yoockh/dinedesk/internal/services"
	"github.com/yoockh/dinedesk/internal/storage"
	"github.com/yoockh/dinedesk/internal/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log := logger.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clients, err := config.Connect(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("connect backends")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := clients.Close(closeCtx); err != nil {
			log.WithError(err).Warn("close backends")
		}
	}()
	log.Info("postgres and redis connected")

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Repositories
	restaurantRepo := pgrepo.NewRestaurantRepo(clients.DB)
	customerRepo := pgrepo.NewCustomerRepo(clients.DB)
	menuRepo := pgrepo.NewMenuRepo(clients.DB)
	reservationRepo := pgrepo.NewReservationRepo(clients.DB)
	orderRepo := pgrepo.NewOrderRepo(clients.DB)
	conversationRepo := pgrepo.NewConversationRepo(clients.DB)
	reviewRepo := pgrepo.NewReviewRepo(clients.DB)
	analyticsRepo := pgrepo.NewAnalyticsRepo(clients.DB)
	userRepo := pgrepo.NewUserRepo(clients.DB)

	var toolRepo mongorepo.ToolExecutionRepository
	if clients.MongoDB != nil {
		toolRepo = mongorepo.NewToolExecutionRepo(clients.MongoDB)
		log.Info("mongo connected; tool audit enabled")
	} else {
		log.Warn("MONGO_URI not set; tool audit disabled")
	}

	// Providers
	gemini, err := llm.NewVertexGemini(ctx, cfg.GCPProjectID, cfg.GCPLocation, cfg.GeminiModel, cfg.CredentialsFile)
	if err != nil {
		log.WithError(err).Fatal("vertex gemini")
	}
	defer gemini.Close()

	var transcriber stt.Provider
	if speech, err := stt.NewGoogleSpeech(ctx, cfg.CredentialsFile); err != nil {
		log.WithError(err).Warn("speech client unavailable; voice input disabled")
	} else {
		defer speech.Close()
		transcriber = speech
	}

	var (
		archive storage.Uploader
		signer  storage.Signer
	)
	if cfg.GCSBucket != "" {
		gcs, err := storage.NewGCSUploader(ctx, cfg.GCSBucket, cfg.CredentialsFile)
		if err != nil {
			log.WithError(err).Warn("gcs unavailable; voice archive disabled")
		} else {
			defer gcs.Close()
			archive, signer = gcs, gcs
		}
	}

	responseCache := cache.NewRedisCache(clients.Redis, "dinedesk:")
	publisher := events.NewRedisPublisher(clients.Redis, events.DefaultStream)
	gen := responses.MustNewGenerator()

	// Agent
	classifier := agent.NewClassifier(gemini, agent.DefaultConfidenceFloor, log)
	assistantAgent := agent.New(gemini, agent.NewRegistry(reservationRepo, menuRepo, orderRepo), gen, log, agent.Options{})

	// Services
	assistantSvc := services.NewAssistantService(services.AssistantDeps{
		Restaurants:   restaurantRepo,
		Customers:     customerRepo,
		Conversations: conversationRepo,
		Cache:         responseCache,
		Classifier:    classifier,
		Agent:         assistantAgent,
		Responses:     gen,
		Transcriber:   transcriber,
		Archive:       archive,
		Events:        publisher,
		Metrics:       m,
		Logger:        log,
		ResponseTTL:   cfg.CacheTTL,
		RunTimeout:    cfg.RequestTimeout,
	})
	sentimentSvc := services.NewSentimentService(gemini, responseCache, log)
	responseSvc := services.NewResponseService(gen, customerRepo)
	reservationSvc := services.NewReservationService(reservationRepo)
	orderSvc := services.NewOrderService(orderRepo, customerRepo, log)
	conversationSvc := services.NewConversationService(conversationRepo, toolRepo, publisher, signer, log)
	reviewSvc := services.NewReviewService(reviewRepo, restaurantRepo, sentimentSvc, gen)
	analyticsSvc := services.NewAnalyticsService(analyticsRepo)
	userSvc := services.NewUserService(userRepo, log)

	// Workers
	pool := &workers.EventWorkerPool{
		Redis:      clients.Redis,
		Analytics:  analyticsSvc,
		ToolLog:    toolRepo,
		Metrics:    m,
		NumWorkers: cfg.EventWorkers,
		Logger:     log,
	}
	if err := pool.Start(ctx); err != nil {
		log.WithError(err).Fatal("start event workers")
	}

	// HTTP
	jwtOpts := middleware.JWTOptions{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TokenTTL: cfg.JWTTokenTTL,
	}
	if jwtOpts.Secret == "" {
		log.Warn("STAFF_JWT_SECRET not set; staff API will answer 503")
	}

	checks := map[string]handlers.Check{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := clients.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error { return clients.Redis.Ping(ctx).Err() },
	}
	if clients.Mongo != nil {
		checks["mongo"] = func(ctx context.Context) error { return clients.Mongo.Ping(ctx, nil) }
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log, m))
	routes.RegisterRoutes(r, routes.Deps{
		Assistant:      handlers.NewAssistantHandler(assistantSvc, sentimentSvc, responseSvc),
		Staff:          handlers.NewStaffHandler(reservationSvc, orderSvc, reviewSvc, analyticsSvc),
		Conversations:  handlers.NewConversationHandler(conversationSvc),
		WS:             handlers.NewWSHandler(assistantSvc, clients.Redis, m, log, cfg.WSOrigins),
		Health:         handlers.NewHealthHandler(checks),
		Auth:           handlers.NewAuthHandler(userSvc, jwtOpts),
		Metrics:        m,
		Gatherer:       reg,
		Limiter:        middleware.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		JWT:            jwtOpts,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", cfg.Port).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
}
