package service

import (
	"context"
	"sync"

	"github.com/fjod/coffee_saga/internal/payment/domain"
	"github.com/fjod/coffee_saga/internal/payment/gateway"
	"github.com/fjod/coffee_saga/internal/payment/repository"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
)

// mockRepository implements repository.PaymentRepository in memory.
type mockRepository struct {
	mu        sync.Mutex
	payments  map[string]domain.Payment
	refunds   map[string]domain.Refund
	createErr []error
	writes    int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		payments: make(map[string]domain.Payment),
		refunds:  make(map[string]domain.Refund),
	}
}

func (m *mockRepository) CreatePayment(_ context.Context, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.createErr) > 0 {
		err := m.createErr[0]
		m.createErr = m.createErr[1:]
		if err != nil {
			return err
		}
	}
	m.payments[p.PaymentID] = *p
	return nil
}

func (m *mockRepository) GetPayment(_ context.Context, paymentID string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return &p, nil
}

func (m *mockRepository) ListPaymentsByOrder(_ context.Context, orderID string) ([]*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Payment
	for _, p := range m.payments {
		if p.OrderID == orderID {
			p := p
			out = append(out, &p)
		}
	}
	return out, nil
}

func (m *mockRepository) ListPaymentsByCustomer(_ context.Context, customerID string, _ postgres.Pagination) ([]*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Payment
	for _, p := range m.payments {
		if p.CustomerID == customerID {
			p := p
			out = append(out, &p)
		}
	}
	return out, nil
}

func (m *mockRepository) UpdatePayment(_ context.Context, paymentID string, fn func(p *domain.Payment) error) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	if err := fn(&p); err != nil {
		return nil, err
	}
	if p.Status == domain.PaymentStatusCompleted {
		for id, other := range m.payments {
			if id != paymentID && other.OrderID == p.OrderID && other.Status == domain.PaymentStatusCompleted {
				return nil, domain.ErrOrderAlreadyPaid
			}
		}
	}
	m.payments[paymentID] = p
	m.writes++
	return &p, nil
}

func (m *mockRepository) RefundPayment(_ context.Context, paymentID string, fn func(p *domain.Payment) (*domain.Refund, error)) (*domain.Payment, *domain.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return nil, nil, domain.ErrPaymentNotFound
	}
	rf, err := fn(&p)
	if err != nil {
		return nil, nil, err
	}
	m.payments[paymentID] = p
	m.refunds[paymentID] = *rf
	return &p, rf, nil
}

func (m *mockRepository) GetRefund(_ context.Context, paymentID string) (*domain.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rf, ok := m.refunds[paymentID]
	if !ok {
		return nil, repository.ErrRefundNotFound
	}
	return &rf, nil
}

// mockGateway returns a fixed outcome; beforeReturn runs while the payment is PROCESSING.
type mockGateway struct {
	outcome      gateway.Outcome
	err          error
	beforeReturn func()
	calls        int
}

func (m *mockGateway) Charge(_ context.Context, _ *domain.Payment) (gateway.Outcome, error) {
	m.calls++
	if m.beforeReturn != nil {
		m.beforeReturn()
	}
	return m.outcome, m.err
}
