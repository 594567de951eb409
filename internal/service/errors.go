package service

import (
	"errors"
	"fmt"

	"marketplace/internal/repository"
)

var (
	ErrForbidden  = errors.New("insufficient permissions for this order")
	ErrEmptyCart  = errors.New("cart is empty")
	ErrNoIdentity = errors.New("authenticated principal is required")
)

// UnknownProductError reports an order line whose product does not exist.
// It unwraps to repository.ErrProductNotFound.
type UnknownProductError struct {
	ProductID int64
}

func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

func (e *UnknownProductError) Unwrap() error {
	return repository.ErrProductNotFound
}
