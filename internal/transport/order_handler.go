package transport

import (
	"net/http"

	"marketplace/internal/domain"
	"marketplace/internal/middleware"
	"marketplace/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	// IdempotencyKeyHeader lets clients retry order placement safely
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader is set on responses that return an earlier order
	ReplayedHeader = "Idempotent-Replayed"
)

// OrderLineRequest is one requested product. There is no price field:
// prices always come from the catalog.
type OrderLineRequest struct {
	ProductID int64 `json:"product_id" validate:"gt=0"`
	Quantity  int   `json:"quantity" validate:"gte=1,lte=10000"`
}

// PlaceOrderRequest represents the order placement payload
type PlaceOrderRequest struct {
	Items           []OrderLineRequest `json:"items" validate:"required,min=1,dive"`
	DeliveryAddress string             `json:"delivery_address" validate:"required"`
}

// UpdateStatusRequest represents a lifecycle transition request
type UpdateStatusRequest struct {
	Status     string  `json:"status" validate:"required"`
	PaymentRef *string `json:"payment_ref" validate:"omitempty,max=255"`
}

func (req PlaceOrderRequest) lines() []domain.OrderLine {
	lines := make([]domain.OrderLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, domain.OrderLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

// OrderHandler handles HTTP requests for the order workflow
type OrderHandler struct {
	orders service.OrderService
	logger *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orders service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

// RegisterRoutes registers the order routes; every route needs a token
func (h *OrderHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/", h.PlaceOrder)
		r.Get("/", h.ListOrders)
		r.Get("/{id}", h.GetOrder)
		r.Patch("/{id}", h.UpdateStatus)
	})
}

// PlaceOrder creates a pending order for the caller
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}

	var req PlaceOrderRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Order validation failed", zap.Error(err))
		respondDecodeError(w, err)
		return
	}

	order, replayed, err := h.orders.PlaceOrderIdempotent(r.Context(),
		r.Header.Get(IdempotencyKeyHeader), caller.ID, req.DeliveryAddress, req.lines())
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to place order")
		return
	}

	if replayed {
		w.Header().Set(ReplayedHeader, "true")
	}
	middleware.RespondWithJSON(w, http.StatusCreated, order)
}

// ListOrders returns the caller's orders. Admins may pass ?scope=all.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}

	buyerID := &caller.ID
	if caller.IsAdmin() && r.URL.Query().Get("scope") == "all" {
		buyerID = nil
	}

	orders, err := h.orders.ListOrders(r.Context(), buyerID)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to list orders")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		middleware.RespondWithError(w, http.StatusNotFound, "order not found")
		return
	}

	order, err := h.orders.GetOrder(r.Context(), caller, id)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to get order")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// UpdateStatus moves an order along its lifecycle
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		middleware.RespondWithError(w, http.StatusNotFound, "order not found")
		return
	}

	var req UpdateStatusRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), caller, id, req.Status, req.PaymentRef)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to update order status")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, order)
}
