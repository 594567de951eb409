package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"marketplace/internal/domain"
	"marketplace/internal/messaging"
	"marketplace/internal/metrics"
	"marketplace/internal/repository"

	"go.uber.org/zap"
)

const minDeliveryAddressLength = 5

// OrderService defines the interface for the order workflow
type OrderService interface {
	PlaceOrder(ctx context.Context, buyerID, deliveryAddress string, lines []domain.OrderLine) (*domain.Order, error)
	PlaceOrderIdempotent(ctx context.Context, key, buyerID, deliveryAddress string, lines []domain.OrderLine) (order *domain.Order, replayed bool, err error)
	GetOrder(ctx context.Context, actor domain.Principal, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context, buyerID *string) ([]*domain.Order, error)
	ListSellerOrders(ctx context.Context, sellerID string) ([]*domain.Order, error)
	UpdateStatus(ctx context.Context, actor domain.Principal, id int64, status string, paymentRef *string) (*domain.Order, error)
	SellerStats(ctx context.Context, sellerID string) (*domain.SellerStats, error)
}

type orderService struct {
	productRepo repository.ProductRepository
	orderRepo   repository.OrderRepository
	idempotency repository.IdempotencyRepository
	publisher   messaging.Publisher
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewOrderService creates a new instance of OrderService. idempotency may be
// nil, in which case idempotency keys are ignored.
func NewOrderService(
	productRepo repository.ProductRepository,
	orderRepo repository.OrderRepository,
	idempotency repository.IdempotencyRepository,
	publisher messaging.Publisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		productRepo: productRepo,
		orderRepo:   orderRepo,
		idempotency: idempotency,
		publisher:   publisher,
		metrics:     m,
		logger:      logger,
	}
}

func validateOrderRequest(deliveryAddress string, lines []domain.OrderLine) error {
	if len(lines) == 0 {
		return domain.NewValidationError("items", "order must contain at least one item")
	}
	for i, line := range lines {
		field := fmt.Sprintf("items[%d].quantity", i)
		if line.Quantity < 1 {
			return domain.NewValidationError(field, "quantity must be at least 1")
		}
		if line.Quantity > domain.MaxOrderQuantity {
			return domain.NewValidationError(field, fmt.Sprintf("quantity must be at most %d", domain.MaxOrderQuantity))
		}
	}
	if utf8.RuneCountInString(strings.TrimSpace(deliveryAddress)) < minDeliveryAddressLength {
		return domain.NewValidationError("delivery_address", "delivery address must be at least 5 characters")
	}
	return nil
}

// PlaceOrder prices every line from the catalog and stores the order with its
// items in one transaction. Nothing is written when validation or product
// resolution fails.
func (s *orderService) PlaceOrder(ctx context.Context, buyerID, deliveryAddress string, lines []domain.OrderLine) (*domain.Order, error) {
	if buyerID == "" {
		return nil, ErrNoIdentity
	}
	if err := validateOrderRequest(deliveryAddress, lines); err != nil {
		s.metrics.RecordOrderRejected("validation")
		return nil, err
	}

	ids := make([]int64, 0, len(lines))
	seen := make(map[int64]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}

	products, err := s.productRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve order products: %w", err)
	}

	order := &domain.Order{
		BuyerID:         buyerID,
		Status:          domain.OrderStatusPending,
		DeliveryAddress: strings.TrimSpace(deliveryAddress),
		Items:           make([]domain.OrderItem, 0, len(lines)),
	}

	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			s.metrics.RecordOrderRejected("unknown_product")
			return nil, &UnknownProductError{ProductID: line.ProductID}
		}
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: product.ID,
			Quantity:  line.Quantity,
			Price:     product.Price,
			Product:   product,
		})
	}
	total, err := order.CheckedItemsTotal()
	if err != nil {
		s.metrics.RecordOrderRejected("total_overflow")
		s.logger.Warn("Order total out of range", zap.String("buyer_id", buyerID), zap.Error(err))
		return nil, domain.NewValidationError("items", "order total is too large")
	}
	order.TotalAmount = total

	if err := s.orderRepo.CreateWithItems(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.String("buyer_id", buyerID),
		zap.Int("items", len(order.Items)),
		zap.Int64("total_amount", order.TotalAmount),
	)
	s.metrics.RecordOrderPlaced(order.TotalAmount)
	s.publish(ctx, domain.NewOrderPlacedEvent(order))

	return order, nil
}

// PlaceOrderIdempotent places an order at most once per buyer and key. A
// replay returns the order produced by the first request.
func (s *orderService) PlaceOrderIdempotent(ctx context.Context, key, buyerID, deliveryAddress string, lines []domain.OrderLine) (*domain.Order, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" || s.idempotency == nil {
		order, err := s.PlaceOrder(ctx, buyerID, deliveryAddress, lines)
		return order, false, err
	}
	if buyerID == "" {
		return nil, false, ErrNoIdentity
	}
	if err := validateOrderRequest(deliveryAddress, lines); err != nil {
		s.metrics.RecordOrderRejected("validation")
		return nil, false, err
	}

	scopedKey := buyerID + ":" + key

	orderID, reserved, err := s.idempotency.Reserve(ctx, scopedKey)
	if err != nil {
		return nil, false, err
	}
	if !reserved {
		order, err := s.orderRepo.FindByID(ctx, orderID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load replayed order: %w", err)
		}
		s.logger.Info("Order placement replayed",
			zap.Int64("order_id", orderID),
			zap.String("buyer_id", buyerID),
		)
		return order, true, nil
	}

	order, err := s.PlaceOrder(ctx, buyerID, deliveryAddress, lines)
	if err != nil {
		if releaseErr := s.idempotency.Release(ctx, scopedKey); releaseErr != nil {
			s.logger.Warn("Failed to release idempotency key", zap.Error(releaseErr))
		}
		return nil, false, err
	}

	if err := s.idempotency.Complete(ctx, scopedKey, order.ID); err != nil {
		s.logger.Error("Failed to record idempotency key",
			zap.Int64("order_id", order.ID),
			zap.Error(err),
		)
	}

	return order, false, nil
}

func canViewOrder(actor domain.Principal, order *domain.Order) bool {
	switch {
	case actor.IsAdmin():
		return true
	case order.BuyerID == actor.ID:
		return true
	case actor.IsSeller():
		return order.HasSellerProduct(actor.ID)
	}
	return false
}

// GetOrder returns the order when actor may see it
func (s *orderService) GetOrder(ctx context.Context, actor domain.Principal, id int64) (*domain.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canViewOrder(actor, order) {
		return nil, ErrForbidden
	}
	return order, nil
}

// ListOrders returns orders newest first. A non-nil buyerID restricts the
// result to that buyer.
func (s *orderService) ListOrders(ctx context.Context, buyerID *string) ([]*domain.Order, error) {
	orders, err := s.orderRepo.List(ctx, repository.OrderFilter{BuyerID: buyerID})
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// ListSellerOrders returns orders holding at least one of sellerID's products
func (s *orderService) ListSellerOrders(ctx context.Context, sellerID string) ([]*domain.Order, error) {
	orders, err := s.orderRepo.List(ctx, repository.OrderFilter{SellerID: &sellerID})
	if err != nil {
		return nil, fmt.Errorf("failed to list seller orders: %w", err)
	}
	return orders, nil
}

// authorizeTransition checks who may move current to next:
// admins drive any edge, sellers drive edges on orders holding their
// products, and the buyer may cancel their own pending order.
func authorizeTransition(actor domain.Principal, current *domain.Order, next domain.OrderStatus) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.IsSeller() && current.HasSellerProduct(actor.ID) {
		return nil
	}
	if current.BuyerID == actor.ID &&
		current.Status == domain.OrderStatusPending &&
		next == domain.OrderStatusCancelled {
		return nil
	}
	return ErrForbidden
}

// UpdateStatus applies a lifecycle transition under a row lock. Unknown
// statuses are validation errors, illegal edges yield
// domain.ErrInvalidTransition.
func (s *orderService) UpdateStatus(ctx context.Context, actor domain.Principal, id int64, status string, paymentRef *string) (*domain.Order, error) {
	next, err := domain.ParseOrderStatus(strings.TrimSpace(status))
	if err != nil {
		return nil, domain.NewValidationError("status", "status must be one of pending, paid, delivered, cancelled")
	}

	var previous domain.OrderStatus
	order, err := s.orderRepo.UpdateStatus(ctx, id, func(current *domain.Order) (domain.OrderStatus, *string, error) {
		if err := authorizeTransition(actor, current, next); err != nil {
			return "", nil, err
		}
		if err := current.Status.ValidateTransition(next); err != nil {
			return "", nil, err
		}
		previous = current.Status

		var ref *string
		if next == domain.OrderStatusPaid && paymentRef != nil {
			if trimmed := strings.TrimSpace(*paymentRef); trimmed != "" {
				ref = &trimmed
			}
		}
		return next, ref, nil
	})
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			s.logger.Warn("Order status change denied",
				zap.Int64("order_id", id),
				zap.String("actor_id", actor.ID),
				zap.String("role", actor.Role),
				zap.String("status", string(next)),
			)
		}
		return nil, err
	}

	s.logger.Info("Order status changed",
		zap.Int64("order_id", order.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(order.Status)),
		zap.String("actor_id", actor.ID),
	)
	s.metrics.RecordStatusTransition(previous, order.Status)
	s.publish(ctx, domain.NewOrderStatusChangedEvent(order, previous))

	return order, nil
}

// SellerStats summarises sales of sellerID's products
func (s *orderService) SellerStats(ctx context.Context, sellerID string) (*domain.SellerStats, error) {
	revenue, pending, err := s.orderRepo.SellerSales(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	active, err := s.productRepo.CountBySeller(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count seller products: %w", err)
	}

	return &domain.SellerStats{
		TotalRevenue:   revenue,
		PendingOrders:  pending,
		ActiveProducts: active,
	}, nil
}

// publish runs after commit; a failed publish never fails the request
func (s *orderService) publish(ctx context.Context, event domain.OrderEvent) {
	err := s.publisher.Publish(ctx, event)
	s.metrics.RecordEventPublished(event.Type, err)
	if err != nil {
		s.logger.Error("Failed to publish order event",
			zap.String("type", event.Type),
			zap.Int64("order_id", event.OrderID),
			zap.Error(err),
		)
	}
}
