package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"marketplace/internal/domain"
)

var (
	ErrOrderNotFound = errors.New("order not found")
)

// OrderFilter narrows ListOrders. Nil fields are not applied.
type OrderFilter struct {
	BuyerID  *string
	SellerID *string
}

// StatusDecider inspects the locked order and returns the status to store
// together with an optional payment reference. Returning an error aborts the
// update and releases the lock.
type StatusDecider func(current *domain.Order) (domain.OrderStatus, *string, error)

// OrderRepository defines the interface for order aggregate data access
type OrderRepository interface {
	CreateWithItems(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id int64) (*domain.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]*domain.Order, error)
	UpdateStatus(ctx context.Context, id int64, decide StatusDecider) (*domain.Order, error)
	SellerSales(ctx context.Context, sellerID string) (revenue int64, pendingOrders int, err error)
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const orderColumns = `id, buyer_id, total_amount, status, delivery_address, payment_ref, created_at`

func scanOrder(row rowScanner) (*domain.Order, error) {
	order := &domain.Order{}
	var status string
	var paymentRef sql.NullString
	err := row.Scan(
		&order.ID,
		&order.BuyerID,
		&order.TotalAmount,
		&status,
		&order.DeliveryAddress,
		&paymentRef,
		&order.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	order.Status = domain.OrderStatus(status)
	if paymentRef.Valid {
		order.PaymentRef = &paymentRef.String
	}
	return order, nil
}

// CreateWithItems persists the order header and all of its items in a single
// transaction. Either every row is written or none is.
func (r *orderRepository) CreateWithItems(ctx context.Context, order *domain.Order) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (buyer_id, total_amount, status, delivery_address, payment_ref)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`,
		order.BuyerID,
		order.TotalAmount,
		string(order.Status),
		order.DeliveryAddress,
		order.PaymentRef,
	).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err = tx.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, price)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`,
			item.OrderID,
			item.ProductID,
			item.Quantity,
			item.Price,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}

	return nil
}

// FindByID retrieves an order with its items and their products
func (r *orderRepository) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	return r.findByID(ctx, r.db, id, false)
}

func (r *orderRepository) findByID(ctx context.Context, q queryer, id int64, forUpdate bool) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	order, err := scanOrder(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order by ID: %w", err)
	}

	if err := r.attachItems(ctx, q, []*domain.Order{order}); err != nil {
		return nil, err
	}

	return order, nil
}

// List retrieves orders newest first with nested items and products
func (r *orderRepository) List(ctx context.Context, filter OrderFilter) ([]*domain.Order, error) {
	conditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.BuyerID != nil {
		conditions = append(conditions, fmt.Sprintf("o.buyer_id = $%d", argIndex))
		args = append(args, *filter.BuyerID)
		argIndex++
	}

	if filter.SellerID != nil {
		conditions = append(conditions, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM order_items oi JOIN products p ON p.id = oi.product_id
			WHERE oi.order_id = o.id AND p.seller_id = $%d
		)`, argIndex))
		args = append(args, *filter.SellerID)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT o.id, o.buyer_id, o.total_amount, o.status, o.delivery_address, o.payment_ref, o.created_at
		FROM orders o
		%s
		ORDER BY o.created_at DESC, o.id DESC
	`, whereClause)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	if err := r.attachItems(ctx, r.db, orders); err != nil {
		return nil, err
	}

	return orders, nil
}

// attachItems loads the items of every order, each joined with its product
func (r *orderRepository) attachItems(ctx context.Context, q queryer, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[int64]*domain.Order, len(orders))
	ids := make([]int64, 0, len(orders))
	for _, order := range orders {
		order.Items = []domain.OrderItem{}
		byID[order.ID] = order
		ids = append(ids, order.ID)
	}

	query := `
		SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.price,
		       p.id, p.name, p.description, p.price, p.image_url, p.category, p.stock, p.seller_id, p.created_at
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.id
	`

	rows, err := q.QueryContext(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		product := &domain.Product{}
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.Price,
			&product.ID,
			&product.Name,
			&product.Description,
			&product.Price,
			&product.ImageURL,
			&product.Category,
			&product.Stock,
			&product.SellerID,
			&product.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		item.Product = product
		if order, ok := byID[item.OrderID]; ok {
			order.Items = append(order.Items, item)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating order items: %w", err)
	}

	return nil
}

// UpdateStatus locks the order row, lets decide pick the next status and
// stores it. Concurrent updates of the same order are serialized.
func (r *orderRepository) UpdateStatus(ctx context.Context, id int64, decide StatusDecider) (order *domain.Order, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := r.findByID(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}

	next, paymentRef, err := decide(current)
	if err != nil {
		return nil, err
	}

	var storedRef sql.NullString
	err = tx.QueryRowContext(ctx, `
		UPDATE orders
		SET status = $2, payment_ref = COALESCE($3, payment_ref)
		WHERE id = $1
		RETURNING payment_ref
	`, id, string(next), paymentRef).Scan(&storedRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order status: %w", err)
	}

	current.Status = next
	current.PaymentRef = nil
	if storedRef.Valid {
		current.PaymentRef = &storedRef.String
	}

	return current, nil
}

// SellerSales aggregates revenue from paid or delivered orders and counts
// pending orders that contain sellerID's products.
func (r *orderRepository) SellerSales(ctx context.Context, sellerID string) (int64, int, error) {
	query := `
		SELECT
			COALESCE(SUM(oi.price * oi.quantity) FILTER (WHERE o.status IN ('paid', 'delivered')), 0)::BIGINT,
			COUNT(DISTINCT o.id) FILTER (WHERE o.status = 'pending')
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		JOIN products p ON p.id = oi.product_id
		WHERE p.seller_id = $1
	`

	var revenue int64
	var pending int
	if err := r.db.QueryRowContext(ctx, query, sellerID).Scan(&revenue, &pending); err != nil {
		return 0, 0, fmt.Errorf("failed to aggregate seller sales: %w", err)
	}

	return revenue, pending, nil
}
