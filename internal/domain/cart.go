package domain

import "time"

// CartLine is a product held in a cart. Name, Price and ImageURL are copied
// from the product when it was added and are for display only.
type CartLine struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	ImageURL  string `json:"image_url"`
	Quantity  int    `json:"quantity"`
}

// Cart accumulates products for one owner until checkout.
type Cart struct {
	OwnerID   string     `json:"owner_id"`
	Lines     []CartLine `json:"lines"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewCart returns an empty cart for ownerID.
func NewCart(ownerID string) *Cart {
	return &Cart{OwnerID: ownerID, Lines: []CartLine{}}
}

// AddItem increments the quantity of an existing line or appends a new one.
func (c *Cart) AddItem(p Product) {
	for i := range c.Lines {
		if c.Lines[i].ProductID == p.ID {
			c.Lines[i].Quantity++
			return
		}
	}
	c.Lines = append(c.Lines, CartLine{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		ImageURL:  p.ImageURL,
		Quantity:  1,
	})
}

// RemoveItem drops the line for productID.
func (c *Cart) RemoveItem(productID int64) {
	lines := c.Lines[:0]
	for _, line := range c.Lines {
		if line.ProductID != productID {
			lines = append(lines, line)
		}
	}
	c.Lines = lines
}

// UpdateQuantity replaces the quantity of a line. Quantities below one are ignored.
func (c *Cart) UpdateQuantity(productID int64, quantity int) {
	if quantity < 1 {
		return
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines[i].Quantity = quantity
			return
		}
	}
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Total is an estimate based on the prices seen when items were added.
// Orders are always repriced from the catalog.
func (c *Cart) Total() int64 {
	var total int64
	for _, line := range c.Lines {
		total += line.Price * int64(line.Quantity)
	}
	return total
}

// OrderLines projects the cart onto order lines. Prices are deliberately dropped.
func (c *Cart) OrderLines() []OrderLine {
	lines := make([]OrderLine, 0, len(c.Lines))
	for _, line := range c.Lines {
		lines = append(lines, OrderLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return lines
}
