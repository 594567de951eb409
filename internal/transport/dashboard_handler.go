package transport

import (
	"net/http"

	"marketplace/internal/middleware"
	"marketplace/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// DashboardHandler serves seller sales figures
type DashboardHandler struct {
	orders service.OrderService
	logger *zap.Logger
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(orders service.OrderService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{
		orders: orders,
		logger: logger,
	}
}

func (h *DashboardHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/dashboard", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(middleware.RequireSeller(h.logger))
		r.Get("/stats", h.Stats)
		r.Get("/orders", h.Orders)
	})
}

// Stats returns revenue, pending orders and active products of the caller
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}

	stats, err := h.orders.SellerStats(r.Context(), caller.ID)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to load seller stats")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, stats)
}

// Orders lists orders containing at least one of the caller's products
func (h *DashboardHandler) Orders(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListSellerOrders(r.Context(), caller.ID)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to list seller orders")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, orders)
}
