package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrAmountOverflow    = errors.New("amount does not fit in int64")
)

// Upper bounds on what a single order line may carry. MaxOrderQuantity fits
// the INTEGER quantity column.
const (
	MaxOrderQuantity       = 10000
	MaxProductPrice  int64 = 10_000_000_000
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// orderTransitions lists the legal forward edges of the lifecycle.
// delivered and cancelled are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:      {OrderStatusDelivered},
	OrderStatusDelivered: nil,
	OrderStatusCancelled: nil,
}

// ParseOrderStatus converts a raw string into a known status.
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if _, ok := orderTransitions[status]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}

// IsTerminal reports whether no transition leaves the status.
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition for illegal edges.
func (s OrderStatus) ValidateTransition(next OrderStatus) error {
	if s.IsTerminal() {
		return fmt.Errorf("%w: order is already %s", ErrInvalidTransition, s)
	}
	if !s.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return nil
}

// Order is the header of the order aggregate. TotalAmount never changes
// after creation.
type Order struct {
	ID              int64       `json:"id" db:"id"`
	BuyerID         string      `json:"buyer_id" db:"buyer_id"`
	TotalAmount     int64       `json:"total_amount" db:"total_amount"`
	Status          OrderStatus `json:"status" db:"status"`
	DeliveryAddress string      `json:"delivery_address" db:"delivery_address"`
	PaymentRef      *string     `json:"payment_ref" db:"payment_ref"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	Items           []OrderItem `json:"items,omitempty"`
}

// OrderItem is one line of an order. Price is the product price captured
// when the order was placed.
type OrderItem struct {
	ID        int64    `json:"id" db:"id"`
	OrderID   int64    `json:"order_id" db:"order_id"`
	ProductID int64    `json:"product_id" db:"product_id"`
	Quantity  int      `json:"quantity" db:"quantity"`
	Price     int64    `json:"price" db:"price"`
	Product   *Product `json:"product,omitempty"`
}

// LineTotal is the snapshot price multiplied by quantity.
func (i OrderItem) LineTotal() int64 {
	return i.Price * int64(i.Quantity)
}

// ItemsTotal sums the line totals of the order items.
func (o *Order) ItemsTotal() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.LineTotal()
	}
	return total
}

// CheckedItemsTotal is ItemsTotal that fails with ErrAmountOverflow instead
// of wrapping.
func (o *Order) CheckedItemsTotal() (int64, error) {
	var total int64
	for _, item := range o.Items {
		if item.Price < 0 || item.Quantity < 0 {
			return 0, fmt.Errorf("%w: negative line for product %d", ErrAmountOverflow, item.ProductID)
		}
		qty := int64(item.Quantity)
		if qty != 0 && item.Price > math.MaxInt64/qty {
			return 0, fmt.Errorf("%w: product %d price %d x %d", ErrAmountOverflow, item.ProductID, item.Price, qty)
		}
		line := item.Price * qty
		if total > math.MaxInt64-line {
			return 0, fmt.Errorf("%w: order total", ErrAmountOverflow)
		}
		total += line
	}
	return total, nil
}

// HasSellerProduct reports whether any item references a product owned by sellerID.
// Items must have their Product loaded.
func (o *Order) HasSellerProduct(sellerID string) bool {
	for _, item := range o.Items {
		if item.Product != nil && item.Product.SellerID == sellerID {
			return true
		}
	}
	return false
}

// OrderLine is a requested product and quantity, before pricing.
type OrderLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// SellerStats summarises a seller's sales for the dashboard.
type SellerStats struct {
	TotalRevenue   int64 `json:"total_revenue"`
	PendingOrders  int   `json:"pending_orders"`
	ActiveProducts int   `json:"active_products"`
}
