package domain

import "time"

// Event types published on the order topic.
const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
)

// OrderEvent is the payload published after an order change commits.
type OrderEvent struct {
	Type           string      `json:"type"`
	OrderID        int64       `json:"order_id"`
	BuyerID        string      `json:"buyer_id"`
	TotalAmount    int64       `json:"total_amount"`
	Status         OrderStatus `json:"status"`
	PreviousStatus OrderStatus `json:"previous_status,omitempty"`
	OccurredAt     time.Time   `json:"occurred_at"`
}

// NewOrderPlacedEvent describes a freshly created order.
func NewOrderPlacedEvent(o *Order) OrderEvent {
	return OrderEvent{
		Type:        EventOrderPlaced,
		OrderID:     o.ID,
		BuyerID:     o.BuyerID,
		TotalAmount: o.TotalAmount,
		Status:      o.Status,
		OccurredAt:  time.Now().UTC(),
	}
}

// NewOrderStatusChangedEvent describes a lifecycle transition.
func NewOrderStatusChangedEvent(o *Order, previous OrderStatus) OrderEvent {
	return OrderEvent{
		Type:           EventOrderStatusChanged,
		OrderID:        o.ID,
		BuyerID:        o.BuyerID,
		TotalAmount:    o.TotalAmount,
		Status:         o.Status,
		PreviousStatus: previous,
		OccurredAt:     time.Now().UTC(),
	}
}
