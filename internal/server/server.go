package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/database"
	"marketplace/internal/messaging"
	"marketplace/internal/metrics"
	custommiddleware "marketplace/internal/middleware"
	"marketplace/internal/repository"
	"marketplace/internal/service"
	"marketplace/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies are the external resources the API is wired to
type Dependencies struct {
	Database  database.Service
	Redis     *redis.Client
	Publisher messaging.Publisher
	Metrics   *metrics.Metrics
}

type Server struct {
	*http.Server
	config  *config.Config
	logger  *zap.Logger
	deps    Dependencies
	catalog service.CatalogService
}

func NewServer(cfg *config.Config, logger *zap.Logger, deps Dependencies) *Server {
	db := deps.Database.DB()

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	productRepo := repository.NewProductRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	cartRepo := repository.NewCartRepository(deps.Redis, cfg.Cart.TTL())
	idempotencyRepo := repository.NewIdempotencyRepository(deps.Redis, cfg.Idempotency.TTL())

	// Initialize services
	userService := service.NewUserService(userRepo, refreshTokenRepo, cfg.JWT)
	catalogService := service.NewCatalogService(productRepo, logger)
	orderService := service.NewOrderService(productRepo, orderRepo, idempotencyRepo, deps.Publisher, deps.Metrics, logger)
	cartService := service.NewCartService(cartRepo, productRepo, orderService, logger)

	router := chi.NewRouter()
	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.Server.IsDevelopment()))
	router.Use(deps.Metrics.Middleware)

	s := &Server{
		config:  cfg,
		logger:  logger,
		deps:    deps,
		catalog: catalogService,
	}

	router.Get("/health", s.health)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)

	router.Group(func(r chi.Router) {
		// callers are identified before rate limiting so tokens get their own budget
		r.Use(custommiddleware.IdentifyMiddleware(cfg.JWT.Secret))
		r.Use(custommiddleware.RateLimitMiddleware(deps.Redis, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.Requests,
			Window:            cfg.RateLimit.Window(),
			KeyPrefix:         "ratelimit",
		}, logger))

		transport.NewUserHandler(userService, logger).RegisterRoutes(r, authMiddleware)
		transport.NewProductHandler(catalogService, logger).RegisterRoutes(r, authMiddleware)
		transport.NewOrderHandler(orderService, logger).RegisterRoutes(r, authMiddleware)
		transport.NewCartHandler(cartService, logger).RegisterRoutes(r, authMiddleware)
		transport.NewDashboardHandler(orderService, logger).RegisterRoutes(r, authMiddleware)
	})

	s.Server = &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// SeedCatalog fills an empty catalog with the demo products
func (s *Server) SeedCatalog(ctx context.Context) error {
	_, err := s.catalog.SeedIfEmpty(ctx)
	return err
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	dbHealth := s.deps.Database.Health(r.Context())

	redisStatus := "up"
	if err := s.deps.Redis.Ping(r.Context()).Err(); err != nil {
		redisStatus = "down"
	}

	status := "ok"
	code := http.StatusOK
	if dbHealth["status"] != "up" || redisStatus != "up" {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	custommiddleware.RespondWithJSON(w, code, map[string]interface{}{
		"status":   status,
		"database": dbHealth,
		"redis":    redisStatus,
	})
}

// Close releases the publisher, redis and database connections
func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.Close(); err != nil {
			s.logger.Error("Failed to close event publisher", zap.Error(err))
		}
	}

	if s.deps.Redis != nil {
		if err := s.deps.Redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	if s.deps.Database != nil {
		if err := s.deps.Database.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	_ = s.logger.Sync()
	return nil
}
