package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/fjod/coffee_saga/internal/notification/domain"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
)

type mockRepository struct {
	byOrder map[string]*domain.Notification
	saveErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{byOrder: make(map[string]*domain.Notification)}
}

func (m *mockRepository) Save(_ context.Context, n *domain.Notification) (bool, error) {
	if m.saveErr != nil {
		return false, m.saveErr
	}
	if _, ok := m.byOrder[n.OrderID]; ok {
		return false, nil
	}
	cp := *n
	m.byOrder[n.OrderID] = &cp
	return true, nil
}

func (m *mockRepository) GetByOrderID(_ context.Context, orderID string) (*domain.Notification, error) {
	n, ok := m.byOrder[orderID]
	if !ok {
		return nil, domain.ErrNotificationNotFound
	}
	return n, nil
}

func (m *mockRepository) ListByCustomer(_ context.Context, customerID string, _ postgres.Pagination) ([]*domain.Notification, error) {
	var out []*domain.Notification
	for _, n := range m.byOrder {
		if n.CustomerID == customerID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockRepository) find(id uuid.UUID) (string, *domain.Notification) {
	for orderID, n := range m.byOrder {
		if n.ID == id {
			return orderID, n
		}
	}
	return "", nil
}

func (m *mockRepository) UpdateNotification(_ context.Context, id uuid.UUID, fn func(n *domain.Notification) error) (*domain.Notification, error) {
	_, n := m.find(id)
	if n == nil {
		return nil, domain.ErrNotificationNotFound
	}
	if err := fn(n); err != nil {
		return nil, err
	}
	return n, nil
}

func (m *mockRepository) Delete(_ context.Context, customerID string, id uuid.UUID) error {
	orderID, n := m.find(id)
	if n == nil || n.CustomerID != customerID {
		return domain.ErrNotificationNotFound
	}
	delete(m.byOrder, orderID)
	return nil
}
