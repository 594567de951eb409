package service

import (
	"context"
	"fmt"
	"strings"

	"marketplace/internal/domain"
	"marketplace/internal/repository"

	"go.uber.org/zap"
)

// CatalogService defines the interface for product catalog business logic
type CatalogService interface {
	List(ctx context.Context, category string) ([]*domain.Product, error)
	Get(ctx context.Context, id int64) (*domain.Product, error)
	Create(ctx context.Context, sellerID string, input domain.ProductInput) (*domain.Product, error)
	Categories(ctx context.Context) ([]string, error)
	SeedIfEmpty(ctx context.Context) (int, error)
}

type catalogService struct {
	productRepo repository.ProductRepository
	logger      *zap.Logger
}

// NewCatalogService creates a new instance of CatalogService
func NewCatalogService(productRepo repository.ProductRepository, logger *zap.Logger) CatalogService {
	return &catalogService{
		productRepo: productRepo,
		logger:      logger,
	}
}

func (s *catalogService) List(ctx context.Context, category string) ([]*domain.Product, error) {
	products, err := s.productRepo.List(ctx, strings.TrimSpace(category))
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

func (s *catalogService) Get(ctx context.Context, id int64) (*domain.Product, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return product, nil
}

// Create validates input and stores a product owned by sellerID. Stock
// defaults to 0 when not supplied.
func (s *catalogService) Create(ctx context.Context, sellerID string, input domain.ProductInput) (*domain.Product, error) {
	if sellerID == "" {
		return nil, ErrNoIdentity
	}
	if err := validateProductInput(input); err != nil {
		return nil, err
	}

	stock := 0
	if input.Stock != nil {
		stock = *input.Stock
	}

	product := &domain.Product{
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		Price:       input.Price,
		ImageURL:    strings.TrimSpace(input.ImageURL),
		Category:    strings.TrimSpace(input.Category),
		Stock:       stock,
		SellerID:    sellerID,
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("Product created",
		zap.Int64("product_id", product.ID),
		zap.String("seller_id", sellerID),
		zap.Int64("price", product.Price),
	)

	return product, nil
}

func validateProductInput(input domain.ProductInput) error {
	switch {
	case strings.TrimSpace(input.Name) == "":
		return domain.NewValidationError("name", "name is required")
	case strings.TrimSpace(input.Description) == "":
		return domain.NewValidationError("description", "description is required")
	case input.Price < 0:
		return domain.NewValidationError("price", "price must be greater than or equal to 0")
	case input.Price > domain.MaxProductPrice:
		return domain.NewValidationError("price", fmt.Sprintf("price must be at most %d", domain.MaxProductPrice))
	case strings.TrimSpace(input.ImageURL) == "":
		return domain.NewValidationError("image_url", "image_url is required")
	case strings.TrimSpace(input.Category) == "":
		return domain.NewValidationError("category", "category is required")
	case input.Stock != nil && *input.Stock < 0:
		return domain.NewValidationError("stock", "stock must be greater than or equal to 0")
	}
	return nil
}

func (s *catalogService) Categories(ctx context.Context) ([]string, error) {
	categories, err := s.productRepo.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// SeedSellerID owns the demo catalog.
const SeedSellerID = "seed-seller-1"

var seedProducts = []domain.Product{
	{
		Name:        "Blue Dream",
		Description: "A sativa-dominant hybrid bred from Blueberry and Haze.",
		Price:       1500,
		ImageURL:    "https://images.leafly.com/flower-images/blue-dream.png",
		Category:    "Hybrid",
		Stock:       100,
	},
	{
		Name:        "OG Kush",
		Description: "A well known strain with a distinct aroma and strong effects.",
		Price:       1800,
		ImageURL:    "https://images.leafly.com/flower-images/og-kush.png",
		Category:    "Hybrid",
		Stock:       50,
	},
	{
		Name:        "Sour Diesel",
		Description: "Fast-acting sativa with a pungent, diesel-like aroma.",
		Price:       1600,
		ImageURL:    "https://images.leafly.com/flower-images/sour-diesel.png",
		Category:    "Sativa",
		Stock:       75,
	},
	{
		Name:        "Granddaddy Purple",
		Description: "An indica cross of Mendo Purps, Skunk and Afghanistan.",
		Price:       1700,
		ImageURL:    "https://images.leafly.com/flower-images/granddaddy-purple.png",
		Category:    "Indica",
		Stock:       60,
	},
}

// SeedIfEmpty inserts the demo catalog when no product exists yet and
// returns the number of inserted products.
func (s *catalogService) SeedIfEmpty(ctx context.Context) (int, error) {
	count, err := s.productRepo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	if count > 0 {
		s.logger.Debug("Catalog already populated, skipping seed", zap.Int("products", count))
		return 0, nil
	}

	for i := range seedProducts {
		product := seedProducts[i]
		product.SellerID = SeedSellerID
		if err := s.productRepo.Create(ctx, &product); err != nil {
			return i, fmt.Errorf("failed to seed product %q: %w", product.Name, err)
		}
	}

	s.logger.Info("Catalog seeded", zap.Int("products", len(seedProducts)))
	return len(seedProducts), nil
}
