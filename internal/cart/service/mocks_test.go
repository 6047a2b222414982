package service

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/fjod/coffee_saga/internal/cart/cache"
	"github.com/fjod/coffee_saga/internal/cart/domain"
	"github.com/fjod/coffee_saga/internal/cart/repository"
	"github.com/fjod/coffee_saga/internal/product"
)

type mockRepository struct {
	m       sync.RWMutex
	carts   map[string]*domain.Cart
	err     error
	upserts int
}

func newMockRepository() *mockRepository {
	return &mockRepository{carts: map[string]*domain.Cart{}}
}

func cloneCart(c *domain.Cart) *domain.Cart {
	cp := *c
	cp.Lines = append([]domain.CartLine(nil), c.Lines...)
	return &cp
}

func (m *mockRepository) GetCart(_ context.Context, customerID string) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.carts[customerID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	return cloneCart(c), nil
}

func (m *mockRepository) UpsertCart(_ context.Context, c *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.upserts++
	m.carts[c.CustomerID] = cloneCart(c)
	return nil
}

func (m *mockRepository) RemoveLine(_ context.Context, customerID string, productID int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	c, ok := m.carts[customerID]
	if !ok {
		return repository.ErrCartNotFound
	}
	c.RemoveLine(productID)
	return nil
}

func (m *mockRepository) DeleteCart(_ context.Context, customerID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.carts[customerID]; !ok {
		return repository.ErrCartNotFound
	}
	delete(m.carts, customerID)
	return nil
}

type mockCache struct {
	m             sync.Mutex
	carts         map[string]*domain.Cart
	gens          map[string]uint64
	getErr        error
	invalidations int
}

func newMockCache() *mockCache {
	return &mockCache{carts: map[string]*domain.Cart{}, gens: map[string]uint64{}}
}

func (m *mockCache) Get(_ context.Context, customerID string) (*domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.carts[customerID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cloneCart(c), nil
}

func (m *mockCache) Generation(_ context.Context, customerID string) (uint64, error) {
	m.m.Lock()
	defer m.m.Unlock()
	return m.gens[customerID], nil
}

func (m *mockCache) Fill(_ context.Context, customerID string, c *domain.Cart, gen uint64) (bool, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.gens[customerID] != gen {
		return false, nil
	}
	m.carts[customerID] = cloneCart(c)
	return true, nil
}

func (m *mockCache) Invalidate(_ context.Context, customerID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.invalidations++
	m.gens[customerID]++
	delete(m.carts, customerID)
	return nil
}

func (m *mockCache) has(customerID string) bool {
	m.m.Lock()
	defer m.m.Unlock()
	_, ok := m.carts[customerID]
	return ok
}

type mockProducts struct {
	m        sync.Mutex
	products map[int64]product.Product
	err      error
	fallback bool
}

func newMockProducts() *mockProducts {
	return &mockProducts{products: map[int64]product.Product{
		1: {ID: 1, Name: "Americano", Price: decimal.RequireFromString("3.00"), Available: true},
		2: {ID: 2, Name: "Bagel", Price: decimal.RequireFromString("2.50"), Available: true},
		3: {ID: 3, Name: "Seasonal Tart", Price: decimal.RequireFromString("5.00"), Available: false},
	}}
}

func (m *mockProducts) GetProduct(_ context.Context, id int64) (product.Result, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.fallback {
		return product.Unavailable(id), product.ErrProductUnavailable
	}
	if m.err != nil {
		return product.Result{}, m.err
	}
	p, ok := m.products[id]
	if !ok {
		return product.Result{}, product.ErrProductNotFound
	}
	return product.Result{Product: p, Source: product.SourceRemote}, nil
}

func (m *mockProducts) setPrice(id int64, price string) {
	m.m.Lock()
	defer m.m.Unlock()
	p := m.products[id]
	p.Price = decimal.RequireFromString(price)
	m.products[id] = p
}
