package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	loyaltydomain "github.com/fjod/coffee_saga/internal/loyalty/domain"
	orderdomain "github.com/fjod/coffee_saga/internal/orders/domain"
	orderrepo "github.com/fjod/coffee_saga/internal/orders/repository"
	paymentdomain "github.com/fjod/coffee_saga/internal/payment/domain"
	paymentservice "github.com/fjod/coffee_saga/internal/payment/service"
)

// mockOrders applies the voucher at creation; published holds the order total
// each OrderCreated event would carry.
type mockOrders struct {
	orders      map[uuid.UUID]*orderdomain.Order
	createErr   error
	voucherErr  error
	discount    decimal.Decimal
	updateErr   error
	transitions []orderdomain.OrderStatus
	published   []decimal.Decimal
}

func newMockOrders() *mockOrders {
	return &mockOrders{orders: make(map[uuid.UUID]*orderdomain.Order)}
}

func (m *mockOrders) CreateOrder(_ context.Context, customerID string, info orderdomain.DeliveryInfo, voucherCode string) (*orderdomain.Order, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	o, err := orderdomain.NewOrder(customerID, []orderdomain.OrderItem{
		{ProductID: 1, ProductName: "Latte", Quantity: 2, UnitPrice: decimal.RequireFromString("4.50")},
	}, info, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if voucherCode != "" {
		if m.voucherErr != nil {
			return nil, m.voucherErr
		}
		if err := o.ApplyDiscount(voucherCode, m.discount, time.Now().UTC()); err != nil {
			return nil, err
		}
	}
	m.orders[o.ID] = o
	m.published = append(m.published, o.TotalAmount)
	return o, nil
}

func (m *mockOrders) UpdateStatus(_ context.Context, orderID uuid.UUID, status orderdomain.OrderStatus) (*orderdomain.Order, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	o, ok := m.orders[orderID]
	if !ok {
		return nil, orderrepo.ErrOrderNotFound
	}
	if err := o.TransitionTo(status, time.Now().UTC()); err != nil {
		return nil, err
	}
	m.transitions = append(m.transitions, status)
	return o, nil
}

func (m *mockOrders) GetOrder(_ context.Context, orderID uuid.UUID) (*orderdomain.Order, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return nil, orderrepo.ErrOrderNotFound
	}
	return o, nil
}

type mockPayments struct {
	outcome    paymentdomain.PaymentStatus
	createErr  error
	processErr error
	created    []paymentservice.CreatePaymentRequest
	deadline   bool
}

func (m *mockPayments) CreatePayment(_ context.Context, req paymentservice.CreatePaymentRequest) (*paymentdomain.Payment, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created = append(m.created, req)
	return paymentdomain.NewPayment(req.OrderID, req.CustomerID, req.Method, req.Amount, req.Currency, time.Now().UTC())
}

func (m *mockPayments) ProcessPayment(ctx context.Context, paymentID string) (*paymentdomain.Payment, error) {
	_, m.deadline = ctx.Deadline()
	if m.processErr != nil {
		return nil, m.processErr
	}
	req := m.created[len(m.created)-1]
	p, err := paymentdomain.NewPayment(req.OrderID, req.CustomerID, req.Method, req.Amount, req.Currency, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	p.PaymentID = paymentID
	p.Status = m.outcome
	if m.outcome == paymentdomain.PaymentStatusFailed {
		p.FailureReason = "declined"
	}
	return p, nil
}

type earnCall struct {
	customerID string
	orderID    string
	amount     decimal.Decimal
}

type mockLoyalty struct {
	err   error
	calls []earnCall
}

func (m *mockLoyalty) EarnPoints(_ context.Context, customerID, orderID string, amount decimal.Decimal, _ string) (*loyaltydomain.Membership, error) {
	m.calls = append(m.calls, earnCall{customerID: customerID, orderID: orderID, amount: amount})
	if m.err != nil {
		return nil, m.err
	}
	ms := loyaltydomain.NewMembership(customerID, time.Now().UTC())
	if _, err := ms.Earn(orderID, amount, "", time.Now().UTC()); err != nil {
		return nil, err
	}
	return ms, nil
}
