package transport

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"marketplace/internal/domain"
	"marketplace/internal/middleware"
	"marketplace/internal/repository"

	"github.com/google/uuid"
)

type mockUserRepository struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[string]*domain.User)}
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[user.Email]; exists {
		return repository.ErrUserAlreadyExists
	}
	m.users[user.Email] = user
	return nil
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, exists := m.users[email]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

type mockRefreshTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]*domain.RefreshToken
}

func newMockRefreshTokenRepository() *mockRefreshTokenRepository {
	return &mockRefreshTokenRepository{tokens: make(map[string]*domain.RefreshToken)}
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.Token] = token
	return nil
}

func (m *mockRefreshTokenRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	refreshToken, exists := m.tokens[token]
	if !exists {
		return nil, repository.ErrRefreshTokenNotFound
	}
	if refreshToken.Revoked {
		return nil, repository.ErrRefreshTokenRevoked
	}
	return refreshToken, nil
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	refreshToken, exists := m.tokens[token]
	if !exists {
		return repository.ErrRefreshTokenNotFound
	}
	refreshToken.Revoked = true
	return nil
}

func (m *mockRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var revoked int64
	for _, token := range m.tokens {
		if token.UserID == userID && !token.Revoked {
			token.Revoked = true
			revoked++
		}
	}
	return revoked, nil
}

// stubOrderService records the arguments of the last call and returns the
// configured results
type stubOrderService struct {
	order    *domain.Order
	orders   []*domain.Order
	stats    *domain.SellerStats
	replayed bool
	err      error

	gotKey        string
	gotBuyerID    string
	gotAddress    string
	gotLines      []domain.OrderLine
	gotListBuyer  *string
	gotActor      domain.Principal
	gotStatus     string
	gotPaymentRef *string
}

func (s *stubOrderService) PlaceOrder(ctx context.Context, buyerID, deliveryAddress string, lines []domain.OrderLine) (*domain.Order, error) {
	order, _, err := s.PlaceOrderIdempotent(ctx, "", buyerID, deliveryAddress, lines)
	return order, err
}

func (s *stubOrderService) PlaceOrderIdempotent(ctx context.Context, key, buyerID, deliveryAddress string, lines []domain.OrderLine) (*domain.Order, bool, error) {
	s.gotKey, s.gotBuyerID, s.gotAddress, s.gotLines = key, buyerID, deliveryAddress, lines
	return s.order, s.replayed, s.err
}

func (s *stubOrderService) GetOrder(ctx context.Context, actor domain.Principal, id int64) (*domain.Order, error) {
	s.gotActor = actor
	return s.order, s.err
}

func (s *stubOrderService) ListOrders(ctx context.Context, buyerID *string) ([]*domain.Order, error) {
	s.gotListBuyer = buyerID
	return s.orders, s.err
}

func (s *stubOrderService) ListSellerOrders(ctx context.Context, sellerID string) ([]*domain.Order, error) {
	s.gotActor = domain.Principal{ID: sellerID}
	return s.orders, s.err
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, actor domain.Principal, id int64, status string, paymentRef *string) (*domain.Order, error) {
	s.gotActor, s.gotStatus, s.gotPaymentRef = actor, status, paymentRef
	return s.order, s.err
}

func (s *stubOrderService) SellerStats(ctx context.Context, sellerID string) (*domain.SellerStats, error) {
	s.gotActor = domain.Principal{ID: sellerID}
	return s.stats, s.err
}

func withPrincipal(r *http.Request, id, role string) *http.Request {
	return r.WithContext(middleware.WithPrincipal(r.Context(), domain.Principal{ID: id, Role: role}))
}

type memoryProductRepository struct {
	mu       sync.Mutex
	products map[int64]*domain.Product
	nextID   int64
}

func newMemoryProductRepository(products ...domain.Product) *memoryProductRepository {
	m := &memoryProductRepository{products: make(map[int64]*domain.Product)}
	for i := range products {
		p := products[i]
		m.products[p.ID] = &p
		if p.ID > m.nextID {
			m.nextID = p.ID
		}
	}
	return m
}

func (m *memoryProductRepository) Create(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	product.ID = m.nextID
	stored := *product
	m.products[product.ID] = &stored
	return nil
}

func (m *memoryProductRepository) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *memoryProductRepository) FindByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Product, error) {
	found := make(map[int64]*domain.Product, len(ids))
	for _, id := range ids {
		if p, err := m.FindByID(ctx, id); err == nil {
			found[id] = p
		}
	}
	return found, nil
}

func (m *memoryProductRepository) List(ctx context.Context, category string) ([]*domain.Product, error) {
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

func (m *memoryProductRepository) Categories(ctx context.Context) ([]string, error) {
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

func (m *memoryProductRepository) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.products), nil
}

func (m *memoryProductRepository) CountBySeller(ctx context.Context, sellerID string) (int, error) {
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

func catalogFixture() *memoryProductRepository {
	return newMemoryProductRepository(
		domain.Product{ID: 1, Name: "Blue Dream", Price: 1500, Category: "Hybrid", Stock: 100, SellerID: "seller-1"},
		domain.Product{ID: 2, Name: "Sour Diesel", Price: 1600, Category: "Sativa", Stock: 75, SellerID: "seller-2"},
	)
}
