package service

import (
	"context"
	"fmt"

	"marketplace/internal/domain"
	"marketplace/internal/repository"

	"go.uber.org/zap"
)

// CartService defines the interface for cart business logic. Every cart is
// owned by the authenticated principal that reads or mutates it.
type CartService interface {
	Get(ctx context.Context, ownerID string) (*domain.Cart, error)
	AddItem(ctx context.Context, ownerID string, productID int64) (*domain.Cart, error)
	UpdateQuantity(ctx context.Context, ownerID string, productID int64, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, ownerID string, productID int64) (*domain.Cart, error)
	Clear(ctx context.Context, ownerID string) error
	Checkout(ctx context.Context, ownerID, idempotencyKey, deliveryAddress string) (order *domain.Order, replayed bool, err error)
}

type cartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	orders      OrderService
	logger      *zap.Logger
}

// NewCartService creates a new instance of CartService
func NewCartService(
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
	orders OrderService,
	logger *zap.Logger,
) CartService {
	return &cartService{
		cartRepo:    cartRepo,
		productRepo: productRepo,
		orders:      orders,
		logger:      logger,
	}
}

// Get returns the owner's cart, empty when none is stored
func (s *cartService) Get(ctx context.Context, ownerID string) (*domain.Cart, error) {
	if ownerID == "" {
		return nil, ErrNoIdentity
	}
	return s.cartRepo.Get(ctx, ownerID)
}

// AddItem looks the product up so the line carries its current display data
func (s *cartService) AddItem(ctx context.Context, ownerID string, productID int64) (*domain.Cart, error) {
	cart, err := s.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	cart.AddItem(*product)
	return s.save(ctx, cart)
}

// UpdateQuantity leaves the cart untouched when quantity is below one
func (s *cartService) UpdateQuantity(ctx context.Context, ownerID string, productID int64, quantity int) (*domain.Cart, error) {
	return s.mutate(ctx, ownerID, func(cart *domain.Cart) {
		cart.UpdateQuantity(productID, quantity)
	})
}

// RemoveItem drops the product's line; unknown products are ignored
func (s *cartService) RemoveItem(ctx context.Context, ownerID string, productID int64) (*domain.Cart, error) {
	return s.mutate(ctx, ownerID, func(cart *domain.Cart) {
		cart.RemoveItem(productID)
	})
}

// Clear deletes the stored cart
func (s *cartService) Clear(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return ErrNoIdentity
	}
	return s.cartRepo.Delete(ctx, ownerID)
}

// Checkout places an order from the cart lines. Prices are taken from the
// catalog, not from the cart. The cart is cleared only after the order is stored.
func (s *cartService) Checkout(ctx context.Context, ownerID, idempotencyKey, deliveryAddress string) (*domain.Order, bool, error) {
	cart, err := s.Get(ctx, ownerID)
	if err != nil {
		return nil, false, err
	}
	if cart.IsEmpty() {
		return nil, false, ErrEmptyCart
	}

	order, replayed, err := s.orders.PlaceOrderIdempotent(ctx, idempotencyKey, ownerID, deliveryAddress, cart.OrderLines())
	if err != nil {
		return nil, false, err
	}

	if err := s.cartRepo.Delete(ctx, ownerID); err != nil {
		s.logger.Warn("Failed to clear cart after checkout",
			zap.String("owner_id", ownerID),
			zap.Int64("order_id", order.ID),
			zap.Error(err),
		)
	}

	if cartTotal := cart.Total(); cartTotal != order.TotalAmount {
		s.logger.Info("Cart estimate differed from order total",
			zap.Int64("order_id", order.ID),
			zap.Int64("cart_total", cartTotal),
			zap.Int64("order_total", order.TotalAmount),
		)
	}

	return order, replayed, nil
}

func (s *cartService) mutate(ctx context.Context, ownerID string, apply func(*domain.Cart)) (*domain.Cart, error) {
	cart, err := s.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	apply(cart)
	return s.save(ctx, cart)
}

func (s *cartService) save(ctx context.Context, cart *domain.Cart) (*domain.Cart, error) {
	if err := s.cartRepo.Save(ctx, cart); err != nil {
		return nil, fmt.Errorf("failed to store cart: %w", err)
	}
	return cart, nil
}
