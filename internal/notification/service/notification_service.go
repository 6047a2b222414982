package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fjod/coffee_saga/internal/events"
	"github.com/fjod/coffee_saga/internal/metrics"
	"github.com/fjod/coffee_saga/internal/notification/domain"
	"github.com/fjod/coffee_saga/internal/notification/repository"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
)

type NotificationService struct {
	repo    repository.NotificationRepository
	log     *slog.Logger
	metrics *metrics.Domain
	now     func() time.Time
}

func NewNotificationService(repo repository.NotificationRepository, log *slog.Logger, m *metrics.Domain) *NotificationService {
	return &NotificationService{repo: repo, log: log, metrics: m, now: time.Now}
}

// StoreOrderConfirmation records the confirmation for an order once.
// Redelivered events are acknowledged without a second row.
func (s *NotificationService) StoreOrderConfirmation(ctx context.Context, e events.OrderCreated) error {
	n := domain.OrderConfirmation(e, s.now().UTC())
	stored, err := s.repo.Save(ctx, n)
	if err != nil {
		return err
	}
	if !stored {
		s.log.InfoContext(ctx, "order confirmation already stored, skipping",
			slog.String("order_id", e.OrderID),
			slog.String("order_number", e.OrderNumber))
		return nil
	}
	s.metrics.NotificationStored()
	s.log.InfoContext(ctx, "order confirmation stored",
		slog.String("order_number", e.OrderNumber),
		slog.String("customer_id", e.CustomerID))
	return nil
}

func (s *NotificationService) ListForCustomer(ctx context.Context, customerID string, page postgres.Pagination) ([]*domain.Notification, error) {
	return s.repo.ListByCustomer(ctx, customerID, page)
}

// MarkRead marks one of the customer's notifications as read. Notifications of
// other customers are reported as missing.
func (s *NotificationService) MarkRead(ctx context.Context, customerID string, id uuid.UUID) (*domain.Notification, error) {
	return s.repo.UpdateNotification(ctx, id, func(n *domain.Notification) error {
		if n.CustomerID != customerID {
			return domain.ErrNotificationNotFound
		}
		n.MarkRead(s.now().UTC())
		return nil
	})
}

func (s *NotificationService) Delete(ctx context.Context, customerID string, id uuid.UUID) error {
	return s.repo.Delete(ctx, customerID, id)
}
