package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	cartdomain "github.com/fjod/coffee_saga/internal/cart/domain"
	"github.com/fjod/coffee_saga/internal/events"
	"github.com/fjod/coffee_saga/internal/orders/domain"
	"github.com/fjod/coffee_saga/internal/orders/repository"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
)

// mockRepository keeps orders in memory and implements repository.OrderRepository.
type mockRepository struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]domain.Order
	createErr []error // returned by successive CreateOrder calls
	updateErr error
	saveErr   error // returned by UpdateOrder after fn succeeded
	creates   int
}

func newMockRepository() *mockRepository {
	return &mockRepository{orders: make(map[uuid.UUID]domain.Order)}
}

func (m *mockRepository) CreateOrder(_ context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if len(m.createErr) > 0 {
		err := m.createErr[0]
		m.createErr = m.createErr[1:]
		if err != nil {
			return err
		}
	}
	m.orders[o.ID] = *o
	return nil
}

func (m *mockRepository) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return &o, nil
}

func (m *mockRepository) GetOrderByNumber(_ context.Context, number string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.OrderNumber == number {
			return &o, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *mockRepository) ListOrdersByCustomer(_ context.Context, customerID string, _ postgres.Pagination) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.orders {
		if o.CustomerID == customerID {
			o := o
			out = append(out, &o)
		}
	}
	return out, nil
}

func (m *mockRepository) UpdateOrder(_ context.Context, id uuid.UUID, fn func(o *domain.Order) error) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if err := fn(&o); err != nil {
		return nil, err
	}
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	m.orders[id] = o
	return &o, nil
}

func (m *mockRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type mockCarts struct {
	cart     *cartdomain.Cart
	getErr   error
	clearErr error
	cleared  []string
}

func (m *mockCarts) GetCart(_ context.Context, customerID string) (*cartdomain.Cart, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.cart == nil {
		return &cartdomain.Cart{CustomerID: customerID}, nil
	}
	c := *m.cart
	return &c, nil
}

func (m *mockCarts) Clear(_ context.Context, customerID string) error {
	m.cleared = append(m.cleared, customerID)
	return m.clearErr
}

type mockPublisher struct {
	published []events.OrderCreated
}

func (m *mockPublisher) Publish(_ context.Context, ev events.OrderCreated) {
	m.published = append(m.published, ev)
}

type redeemCall struct {
	code       string
	customerID string
	orderID    string
	subtotal   decimal.Decimal
}

// mockVouchers records redemptions; onRedeem runs before a redemption returns.
type mockVouchers struct {
	mu       sync.Mutex
	discount decimal.Decimal
	err      error
	onRedeem func()
	calls    []redeemCall
	released []string // order ids
}

func (m *mockVouchers) RedeemVoucher(_ context.Context, code, customerID, orderID string, subtotal decimal.Decimal, _ []decimal.Decimal) (decimal.Decimal, error) {
	if m.onRedeem != nil {
		m.onRedeem()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, redeemCall{code: code, customerID: customerID, orderID: orderID, subtotal: subtotal})
	return m.discount, m.err
}

func (m *mockVouchers) ReleaseVoucher(_ context.Context, _, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, orderID)
	return nil
}
