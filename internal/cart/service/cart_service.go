package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fjod/coffee_saga/internal/apperr"
	"github.com/fjod/coffee_saga/internal/cart/cache"
	"github.com/fjod/coffee_saga/internal/cart/domain"
	"github.com/fjod/coffee_saga/internal/cart/repository"
	"github.com/fjod/coffee_saga/internal/product"
)

var (
	ErrInvalidQuantity   = apperr.New(apperr.ValidationFailed, "INVALID_QUANTITY", "quantity must be at least 1")
	ErrLineNotFound      = apperr.New(apperr.NotFound, "CART_LINE_NOT_FOUND", "product is not in the cart")
	ErrProductOutOfStock = apperr.New(apperr.Conflict, "PRODUCT_OUT_OF_STOCK", "product is not available")
)

type CartService struct {
	repo     repository.CartRepository
	cache    cache.CartCache
	products product.Client
	log      *slog.Logger
	now      func() time.Time
	sfg      singleflight.Group // prevents cache stampede
}

func NewCartService(repo repository.CartRepository, c cache.CartCache, products product.Client, log *slog.Logger) *CartService {
	return &CartService{
		repo:     repo,
		cache:    c,
		products: products,
		log:      log,
		now:      time.Now,
	}
}

// GetCart returns the customer's cart, or a new empty one if none is stored yet.
func (s *CartService) GetCart(ctx context.Context, customerID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(customerID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, customerID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.WarnContext(ctx, "cart cache get failed", slog.String("customer_id", customerID), slog.String("error", err.Error()))
		}

		gen, genErr := s.cache.Generation(ctx, customerID)
		if genErr != nil {
			s.log.WarnContext(ctx, "cart cache generation failed", slog.String("customer_id", customerID), slog.String("error", genErr.Error()))
		}

		cart, err = s.repo.GetCart(ctx, customerID)
		if errors.Is(err, repository.ErrCartNotFound) {
			return domain.NewCart(customerID, s.now()), nil
		}
		if err != nil {
			return nil, err
		}

		if genErr == nil {
			s.fillCache(ctx, customerID, cart, gen)
		}
		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	// singleflight shares the pointer between callers
	cart := *v.(*domain.Cart)
	cart.Lines = append([]domain.CartLine(nil), cart.Lines...)
	return &cart, nil
}

// AddLine resolves the product and merges it into the cart. The cart is left
// unchanged when the product cannot be resolved.
func (s *CartService) AddLine(ctx context.Context, customerID string, productID int64, quantity int, instructions string) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	res, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if res.IsFallback() {
		return nil, product.ErrProductUnavailable
	}
	if !res.Product.Available {
		return nil, ErrProductOutOfStock.WithMessage(fmt.Sprintf("product %d is not available", productID))
	}

	cart, err := s.GetCart(ctx, customerID)
	if err != nil {
		return nil, err
	}

	cart.AddLine(domain.CartLine{
		ProductID:           res.Product.ID,
		ProductName:         res.Product.Name,
		UnitPrice:           res.Product.Price,
		Quantity:            quantity,
		SpecialInstructions: instructions,
		AddedAt:             s.now(),
	})

	if err := s.repo.UpsertCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	s.invalidateCache(customerID)
	return cart, nil
}

func (s *CartService) UpdateQuantity(ctx context.Context, customerID string, productID int64, quantity int) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	cart, err := s.GetCart(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if !cart.SetQuantity(productID, quantity) {
		return nil, ErrLineNotFound
	}

	if err := s.repo.UpsertCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	s.invalidateCache(customerID)
	return cart, nil
}

// RemoveLine succeeds without changes when the line or the cart does not exist.
func (s *CartService) RemoveLine(ctx context.Context, customerID string, productID int64) (*domain.Cart, error) {
	err := s.repo.RemoveLine(ctx, customerID, productID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		return nil, err
	}
	if err == nil {
		s.invalidateCache(customerID)
	}
	return s.GetCart(ctx, customerID)
}

func (s *CartService) Clear(ctx context.Context, customerID string) error {
	err := s.repo.DeleteCart(ctx, customerID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		return err
	}
	s.invalidateCache(customerID)
	return nil
}

// fillCache is skipped by the cache when a write invalidated the cart after gen was read.
func (s *CartService) fillCache(ctx context.Context, customerID string, cart *domain.Cart, gen uint64) {
	fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	stored, err := s.cache.Fill(fillCtx, customerID, cart, gen)
	if err != nil {
		s.log.WarnContext(ctx, "cart cache fill failed", slog.String("customer_id", customerID), slog.String("error", err.Error()))
		return
	}
	if !stored {
		s.log.DebugContext(ctx, "cart cache fill skipped after invalidation", slog.String("customer_id", customerID))
	}
}

func (s *CartService) invalidateCache(customerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Invalidate(ctx, customerID); err != nil {
		s.log.Warn("cart cache invalidate failed", slog.String("customer_id", customerID), slog.String("error", err.Error()))
	}
}
