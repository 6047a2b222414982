package cache

import (
	"context"
	"errors"

	"github.com/fjod/coffee_saga/internal/cart/domain"
)

// CartCache is a read-through copy of stored carts. Every invalidation bumps a
// per-customer generation; a fill carries the generation observed before the
// store was read and is dropped if the cart was invalidated in between.
type CartCache interface {
	Get(ctx context.Context, customerID string) (*domain.Cart, error)
	Generation(ctx context.Context, customerID string) (uint64, error)
	// Fill stores cart if the generation still equals gen and reports whether it did.
	Fill(ctx context.Context, customerID string, cart *domain.Cart, gen uint64) (bool, error)
	Invalidate(ctx context.Context, customerID string) error
}

var ErrCacheMiss = errors.New("cache miss")
