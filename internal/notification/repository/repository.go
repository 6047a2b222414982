package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/fjod/coffee_saga/internal/notification/domain"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
)

const MigrationsTable = "notifications_schema_migrations"

type NotificationRepository interface {
	// Save stores n unless a notification for the same order exists.
	// It reports whether a row was written.
	Save(ctx context.Context, n *domain.Notification) (bool, error)
	GetByOrderID(ctx context.Context, orderID string) (*domain.Notification, error)
	ListByCustomer(ctx context.Context, customerID string, page postgres.Pagination) ([]*domain.Notification, error)
	UpdateNotification(ctx context.Context, id uuid.UUID, fn func(n *domain.Notification) error) (*domain.Notification, error)
	Delete(ctx context.Context, customerID string, id uuid.UUID) error
}
