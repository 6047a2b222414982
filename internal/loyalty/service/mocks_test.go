package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fjod/coffee_saga/internal/loyalty/domain"
	"github.com/fjod/coffee_saga/internal/loyalty/repository"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
)

// mockRepository implements repository.LoyaltyRepository in memory with one
// mutex standing in for row locks.
type mockRepository struct {
	mu          sync.Mutex
	memberships map[string]domain.Membership
	ledger      []domain.PointsTransaction
	vouchers    map[string]domain.Voucher
	usages      []domain.VoucherUsage
	sumOverride *int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		memberships: make(map[string]domain.Membership),
		vouchers:    make(map[string]domain.Voucher),
	}
}

func (m *mockRepository) CreateMembership(_ context.Context, ms *domain.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.memberships[ms.CustomerID]; ok {
		return domain.ErrMembershipExists
	}
	m.memberships[ms.CustomerID] = *ms
	return nil
}

func (m *mockRepository) GetMembership(_ context.Context, customerID string) (*domain.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.memberships[customerID]
	if !ok {
		return nil, domain.ErrMembershipNotFound
	}
	return &ms, nil
}

func (m *mockRepository) UpdateMembership(_ context.Context, customerID string, fn func(*domain.Membership) (*domain.PointsTransaction, error)) (*domain.Membership, *domain.PointsTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.memberships[customerID]
	if !ok {
		return nil, nil, domain.ErrMembershipNotFound
	}
	pt, err := fn(&ms)
	if err != nil {
		return nil, nil, err
	}
	m.memberships[customerID] = ms
	if pt != nil {
		m.ledger = append(m.ledger, *pt)
	}
	return &ms, pt, nil
}

func (m *mockRepository) ListPointsTransactions(_ context.Context, customerID string, _ postgres.Pagination) ([]*domain.PointsTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PointsTransaction
	for i := len(m.ledger) - 1; i >= 0; i-- {
		if m.ledger[i].CustomerID == customerID {
			pt := m.ledger[i]
			out = append(out, &pt)
		}
	}
	return out, nil
}

func (m *mockRepository) SumPoints(_ context.Context, customerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sumOverride != nil {
		return *m.sumOverride, nil
	}
	var sum int64
	for _, pt := range m.ledger {
		if pt.CustomerID == customerID {
			sum += pt.Points
		}
	}
	return sum, nil
}

func (m *mockRepository) CreateVoucher(_ context.Context, v *domain.Voucher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vouchers[v.Code]; ok {
		return domain.ErrVoucherCodeExists
	}
	m.vouchers[v.Code] = *v
	return nil
}

func (m *mockRepository) GetVoucherByCode(_ context.Context, code string) (*domain.Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vouchers[code]
	if !ok {
		return nil, domain.ErrVoucherNotFound
	}
	return &v, nil
}

func (m *mockRepository) ListAvailableVouchers(_ context.Context, asOf time.Time) ([]*domain.Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Voucher
	for _, v := range m.vouchers {
		if v.IsAvailable(asOf) {
			v := v
			out = append(out, &v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *mockRepository) UseVoucher(_ context.Context, code, customerID, orderID string, usedAt time.Time, check repository.RedeemFunc) (*domain.Voucher, *domain.VoucherUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vouchers[code]
	if !ok {
		return nil, nil, domain.ErrVoucherNotFound
	}
	used := false
	for _, u := range m.usages {
		if u.VoucherID == v.ID && u.OrderID == orderID {
			used = true
		}
	}
	if err := check(&v, used); err != nil {
		return nil, nil, err
	}
	u := domain.VoucherUsage{ID: uuid.New(), VoucherID: v.ID, VoucherCode: v.Code, CustomerID: customerID, OrderID: orderID, UsedAt: usedAt}
	m.usages = append(m.usages, u)
	v.UsedCount++
	m.vouchers[code] = v
	return &v, &u, nil
}

func (m *mockRepository) ReleaseVoucher(_ context.Context, code, orderID string, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vouchers[code]
	if !ok {
		return false, domain.ErrVoucherNotFound
	}
	for i, u := range m.usages {
		if u.VoucherID == v.ID && u.OrderID == orderID {
			m.usages = append(m.usages[:i], m.usages[i+1:]...)
			v.UsedCount--
			m.vouchers[code] = v
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepository) ListVoucherUsages(_ context.Context, voucherID uuid.UUID) ([]*domain.VoucherUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.VoucherUsage
	for _, u := range m.usages {
		if u.VoucherID == voucherID {
			u := u
			out = append(out, &u)
		}
	}
	return out, nil
}
