package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/metrics"
	"marketplace/internal/repository"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

type mockProductRepository struct {
	mu       sync.Mutex
	products map[int64]*domain.Product
	nextID   int64
}

func newMockProductRepository(products ...domain.Product) *mockProductRepository {
	m := &mockProductRepository{products: make(map[int64]*domain.Product)}
	for i := range products {
		p := products[i]
		m.products[p.ID] = &p
		if p.ID > m.nextID {
			m.nextID = p.ID
		}
	}
	return m
}

func (m *mockProductRepository) Create(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	product.ID = m.nextID
	product.CreatedAt = time.Now()
	stored := *product
	m.products[product.ID] = &stored
	return nil
}

func (m *mockProductRepository) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *mockProductRepository) FindByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := make(map[int64]*domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			copied := *p
			found[id] = &copied
		}
	}
	return found, nil
}

func (m *mockProductRepository) List(ctx context.Context, category string) ([]*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	products := []*domain.Product{}
	for _, p := range m.products {
		if category == "" || p.Category == category {
			copied := *p
			products = append(products, &copied)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID > products[j].ID })
	return products, nil
}

func (m *mockProductRepository) Categories(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := map[string]struct{}{}
	for _, p := range m.products {
		set[p.Category] = struct{}{}
	}
	categories := make([]string, 0, len(set))
	for c := range set {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories, nil
}

func (m *mockProductRepository) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.products), nil
}

func (m *mockProductRepository) CountBySeller(ctx context.Context, sellerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.products {
		if p.SellerID == sellerID {
			n++
		}
	}
	return n, nil
}

// setPrice mutates the live catalog price
func (m *mockProductRepository) setPrice(id int64, price int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[id].Price = price
}

// mockOrderRepository keeps orders in memory; createErr simulates a failed
// transaction, in which case nothing is stored.
type mockOrderRepository struct {
	mu        sync.Mutex
	orders    map[int64]*domain.Order
	nextID    int64
	creates   int
	createErr error
}

func newMockOrderRepository() *mockOrderRepository {
	return &mockOrderRepository{orders: make(map[int64]*domain.Order)}
}

func cloneOrder(o *domain.Order) *domain.Order {
	copied := *o
	copied.Items = append([]domain.OrderItem(nil), o.Items...)
	return &copied
}

func (m *mockOrderRepository) CreateWithItems(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	order.ID = m.nextID
	order.CreatedAt = time.Now()
	for i := range order.Items {
		order.Items[i].ID = int64(i + 1)
		order.Items[i].OrderID = order.ID
	}
	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *mockOrderRepository) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (m *mockOrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := []*domain.Order{}
	for _, o := range m.orders {
		if filter.BuyerID != nil && o.BuyerID != *filter.BuyerID {
			continue
		}
		if filter.SellerID != nil && !o.HasSellerProduct(*filter.SellerID) {
			continue
		}
		orders = append(orders, cloneOrder(o))
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID > orders[j].ID })
	return orders, nil
}

func (m *mockOrderRepository) UpdateStatus(ctx context.Context, id int64, decide repository.StatusDecider) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	next, ref, err := decide(cloneOrder(o))
	if err != nil {
		return nil, err
	}
	o.Status = next
	if ref != nil {
		o.PaymentRef = ref
	}
	return cloneOrder(o), nil
}

func (m *mockOrderRepository) SellerSales(ctx context.Context, sellerID string) (int64, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var revenue int64
	pending := 0
	for _, o := range m.orders {
		counted := false
		for _, item := range o.Items {
			if item.Product == nil || item.Product.SellerID != sellerID {
				continue
			}
			switch o.Status {
			case domain.OrderStatusPaid, domain.OrderStatusDelivered:
				revenue += item.LineTotal()
			case domain.OrderStatusPending:
				if !counted {
					pending++
					counted = true
				}
			}
		}
	}
	return revenue, pending, nil
}

type mockIdempotencyRepository struct {
	mu      sync.Mutex
	entries map[string]int64
}

func newMockIdempotencyRepository() *mockIdempotencyRepository {
	return &mockIdempotencyRepository{entries: make(map[string]int64)}
}

func (m *mockIdempotencyRepository) Reserve(ctx context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.entries[key]
	if !ok {
		m.entries[key] = 0
		return 0, true, nil
	}
	if id == 0 {
		return 0, false, repository.ErrIdempotencyKeyInFlight
	}
	return id, false, nil
}

func (m *mockIdempotencyRepository) Complete(ctx context.Context, key string, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = orderID
	return nil
}

func (m *mockIdempotencyRepository) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event domain.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type mockCartRepository struct {
	mu      sync.Mutex
	carts   map[string]*domain.Cart
	saveErr error
}

func newMockCartRepository() *mockCartRepository {
	return &mockCartRepository{carts: make(map[string]*domain.Cart)}
}

func (m *mockCartRepository) Get(ctx context.Context, ownerID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[ownerID]
	if !ok {
		return domain.NewCart(ownerID), nil
	}
	copied := *c
	copied.Lines = append([]domain.CartLine{}, c.Lines...)
	return &copied, nil
}

func (m *mockCartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	copied := *cart
	copied.Lines = append([]domain.CartLine{}, cart.Lines...)
	m.carts[cart.OwnerID] = &copied
	return nil
}

func (m *mockCartRepository) Delete(ctx context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, ownerID)
	return nil
}

type mockUserRepository struct {
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users: make(map[string]*domain.User),
	}
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if _, exists := m.users[user.Email]; exists {
		return repository.ErrUserAlreadyExists
	}
	m.users[user.Email] = user
	return nil
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, exists := m.users[email]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

type mockRefreshTokenRepository struct {
	tokens map[string]*domain.RefreshToken
}

func newMockRefreshTokenRepository() *mockRefreshTokenRepository {
	return &mockRefreshTokenRepository{
		tokens: make(map[string]*domain.RefreshToken),
	}
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	m.tokens[token.Token] = token
	return nil
}

func (m *mockRefreshTokenRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return nil, repository.ErrRefreshTokenNotFound
	}
	if refreshToken.Revoked {
		return nil, repository.ErrRefreshTokenRevoked
	}
	return refreshToken, nil
}

func (m *mockRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var revoked int64
	for _, token := range m.tokens {
		if token.UserID == userID && !token.Revoked {
			token.Revoked = true
			revoked++
		}
	}
	return revoked, nil
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, token string) error {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return repository.ErrRefreshTokenNotFound
	}
	refreshToken.Revoked = true
	return nil
}

var errStorageDown = errors.New("storage unavailable")

func newTestMetrics() *metrics.Metrics {
	return metrics.NewWithRegisterer(prometheus.NewRegistry())
}

func catalogFixture() *mockProductRepository {
	return newMockProductRepository(
		domain.Product{ID: 1, Name: "Blue Dream", Price: 1500, Category: "Hybrid", Stock: 100, SellerID: "seller-1"},
		domain.Product{ID: 2, Name: "OG Kush", Price: 1800, Category: "Hybrid", Stock: 50, SellerID: "seller-1"},
		domain.Product{ID: 3, Name: "Sour Diesel", Price: 1600, Category: "Sativa", Stock: 75, SellerID: "seller-2"},
	)
}
