package repository

import (
	"context"
	"errors"

	"github.com/fjod/coffee_saga/internal/cart/domain"
)

var ErrCartNotFound = errors.New("cart not found")

// CartRepository stores one cart document per customer.
type CartRepository interface {
	GetCart(ctx context.Context, customerID string) (*domain.Cart, error)
	UpsertCart(ctx context.Context, cart *domain.Cart) error
	RemoveLine(ctx context.Context, customerID string, productID int64) error
	DeleteCart(ctx context.Context, customerID string) error
}
