package domain

import "time"

// Product represents a listing in the marketplace catalog.
// Price is stored in minor currency units.
type Product struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Price       int64     `json:"price" db:"price"`
	ImageURL    string    `json:"image_url" db:"image_url"`
	Category    string    `json:"category" db:"category"`
	Stock       int       `json:"stock" db:"stock"`
	SellerID    string    `json:"seller_id" db:"seller_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ProductInput carries the seller-supplied fields of a new product.
// A nil Stock means the seller did not specify one.
type ProductInput struct {
	Name        string
	Description string
	Price       int64
	ImageURL    string
	Category    string
	Stock       *int
}
