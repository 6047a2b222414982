package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/fjod/coffee_saga/internal/apperr"
	"github.com/fjod/coffee_saga/internal/orders/domain"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
)

const MigrationsTable = "orders_schema_migrations"

var (
	ErrOrderNotFound        = apperr.New(apperr.NotFound, "ORDER_NOT_FOUND", "order not found")
	ErrDuplicateOrderNumber = errors.New("order number already exists")
)

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID string, page postgres.Pagination) ([]*domain.Order, error)
	// UpdateOrder locks the order row, applies fn and persists the result.
	// Nothing is written when fn returns an error.
	UpdateOrder(ctx context.Context, id uuid.UUID, fn func(o *domain.Order) error) (*domain.Order, error)
}
