package transport

import (
	"net/http"

	"marketplace/internal/domain"
	"marketplace/internal/middleware"
	"marketplace/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AddCartItemRequest adds one unit of a product to the cart
type AddCartItemRequest struct {
	ProductID int64 `json:"product_id" validate:"gt=0"`
}

// UpdateCartItemRequest replaces a line quantity. Values below one are ignored.
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"lte=10000"`
}

// CheckoutRequest represents the checkout payload
type CheckoutRequest struct {
	DeliveryAddress string `json:"delivery_address" validate:"required"`
}

// CartResponse is a cart with its informational total
type CartResponse struct {
	*domain.Cart
	Total int64 `json:"total"`
}

func newCartResponse(cart *domain.Cart) CartResponse {
	return CartResponse{Cart: cart, Total: cart.Total()}
}

// CartHandler exposes the caller's cart
type CartHandler struct {
	carts  service.CartService
	logger *zap.Logger
}

// NewCartHandler creates a new CartHandler
func NewCartHandler(carts service.CartService, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		carts:  carts,
		logger: logger,
	}
}

func (h *CartHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/cart", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.Get)
		r.Delete("/", h.Clear)
		r.Post("/items", h.AddItem)
		r.Patch("/items/{productId}", h.UpdateItem)
		r.Delete("/items/{productId}", h.RemoveItem)
		r.Post("/checkout", h.Checkout)
	})
}

func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.Get(r.Context(), caller.ID)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to load cart")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, newCartResponse(cart))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}

	var req AddCartItemRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	cart, err := h.carts.AddItem(r.Context(), caller.ID, req.ProductID)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to add cart item")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, newCartResponse(cart))
}

func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	productID, ok := idParam(r, "productId")
	if !ok {
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
		return
	}

	var req UpdateCartItemRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	cart, err := h.carts.UpdateQuantity(r.Context(), caller.ID, productID, req.Quantity)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to update cart item")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, newCartResponse(cart))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	productID, ok := idParam(r, "productId")
	if !ok {
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
		return
	}

	cart, err := h.carts.RemoveItem(r.Context(), caller.ID, productID)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to remove cart item")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, newCartResponse(cart))
}

func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.carts.Clear(r.Context(), caller.ID); err != nil {
		writeServiceError(w, h.logger, err, "failed to clear cart")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Checkout turns the cart into an order priced from the catalog
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}

	var req CheckoutRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	order, replayed, err := h.carts.Checkout(r.Context(), caller.ID, r.Header.Get(IdempotencyKeyHeader), req.DeliveryAddress)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to check out cart")
		return
	}

	if replayed {
		w.Header().Set(ReplayedHeader, "true")
	}
	middleware.RespondWithJSON(w, http.StatusCreated, order)
}
