package http

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	cartdomain "github.com/fjod/coffee_saga/internal/cart/domain"
	"github.com/fjod/coffee_saga/internal/checkout"
	loyaltydomain "github.com/fjod/coffee_saga/internal/loyalty/domain"
	loyaltyservice "github.com/fjod/coffee_saga/internal/loyalty/service"
	notificationdomain "github.com/fjod/coffee_saga/internal/notification/domain"
	orderdomain "github.com/fjod/coffee_saga/internal/orders/domain"
	"github.com/fjod/coffee_saga/internal/orders/repository"
	paymentdomain "github.com/fjod/coffee_saga/internal/payment/domain"
	paymentservice "github.com/fjod/coffee_saga/internal/payment/service"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// --- cart ---

type fakeCarts struct {
	mu    sync.Mutex
	carts map[string]*cartdomain.Cart
	err   error
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{carts: map[string]*cartdomain.Cart{}}
}

func (f *fakeCarts) cart(customerID string) *cartdomain.Cart {
	c, ok := f.carts[customerID]
	if !ok {
		c = cartdomain.NewCart(customerID, testNow)
		f.carts[customerID] = c
	}
	return c
}

func (f *fakeCarts) GetCart(_ context.Context, customerID string) (*cartdomain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.cart(customerID), nil
}

func (f *fakeCarts) AddLine(_ context.Context, customerID string, productID int64, quantity int, instructions string) (*cartdomain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := f.cart(customerID)
	c.AddLine(cartdomain.CartLine{
		ProductID:           productID,
		ProductName:         "Latte",
		UnitPrice:           decimal.RequireFromString("4.50"),
		Quantity:            quantity,
		SpecialInstructions: instructions,
		AddedAt:             testNow,
	})
	return c, nil
}

func (f *fakeCarts) UpdateQuantity(_ context.Context, customerID string, productID int64, quantity int) (*cartdomain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.cart(customerID)
	c.SetQuantity(productID, quantity)
	return c, nil
}

func (f *fakeCarts) RemoveLine(_ context.Context, customerID string, productID int64) (*cartdomain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.cart(customerID)
	c.RemoveLine(productID)
	return c, nil
}

func (f *fakeCarts) Clear(_ context.Context, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.carts, customerID)
	return nil
}

// --- orders ---

type fakeOrders struct {
	mu         sync.Mutex
	orders     map[uuid.UUID]*orderdomain.Order
	voucherErr error
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: map[uuid.UUID]*orderdomain.Order{}}
}

// seed stores a PENDING takeaway order for customerID: 2 x 4.50.
func (f *fakeOrders) seed(customerID string) *orderdomain.Order {
	o, err := orderdomain.NewOrder(customerID, []orderdomain.OrderItem{
		{ProductID: 1, ProductName: "Latte", Quantity: 2, UnitPrice: decimal.RequireFromString("4.50")},
	}, orderdomain.DeliveryInfo{Type: orderdomain.OrderTypeTakeaway}, testNow)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	f.orders[o.ID] = o
	f.mu.Unlock()
	return o
}

func (f *fakeOrders) CreateOrder(_ context.Context, customerID string, info orderdomain.DeliveryInfo, voucherCode string) (*orderdomain.Order, error) {
	o, err := orderdomain.NewOrder(customerID, []orderdomain.OrderItem{
		{ProductID: 1, ProductName: "Latte", Quantity: 2, UnitPrice: decimal.RequireFromString("4.50")},
	}, info, testNow)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if voucherCode != "" {
		if f.voucherErr != nil {
			return nil, f.voucherErr
		}
		if err := o.ApplyDiscount(voucherCode, decimal.NewFromInt(1), testNow); err != nil {
			return nil, err
		}
	}
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeOrders) GetOrder(_ context.Context, orderID uuid.UUID) (*orderdomain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeOrders) GetOrderByNumber(_ context.Context, number string) (*orderdomain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.OrderNumber == number {
			return o, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (f *fakeOrders) ListOrders(_ context.Context, customerID string, _ postgres.Pagination) ([]*orderdomain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*orderdomain.Order
	for _, o := range f.orders {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, orderID uuid.UUID, status orderdomain.OrderStatus) (*orderdomain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if err := o.TransitionTo(status, testNow); err != nil {
		return nil, err
	}
	return o, nil
}

func (f *fakeOrders) ApplyVoucher(_ context.Context, orderID uuid.UUID, code string) (*orderdomain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.voucherErr != nil {
		return nil, f.voucherErr
	}
	o, ok := f.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if err := o.ApplyDiscount(code, decimal.NewFromInt(1), testNow); err != nil {
		return nil, err
	}
	return o, nil
}

// --- payments ---

type fakePayments struct {
	mu        sync.Mutex
	payments  map[string]*paymentdomain.Payment
	refunds   map[string]*paymentdomain.Refund
	callbacks []paymentdomain.Callback
}

func newFakePayments() *fakePayments {
	return &fakePayments{
		payments: map[string]*paymentdomain.Payment{},
		refunds:  map[string]*paymentdomain.Refund{},
	}
}

func (f *fakePayments) seed(customerID string, status paymentdomain.PaymentStatus) *paymentdomain.Payment {
	p, err := paymentdomain.NewPayment("order-1", customerID, paymentdomain.MethodCash, decimal.RequireFromString("9.90"), "", testNow)
	if err != nil {
		panic(err)
	}
	p.Status = status
	f.mu.Lock()
	f.payments[p.PaymentID] = p
	f.mu.Unlock()
	return p
}

func (f *fakePayments) CreatePayment(_ context.Context, req paymentservice.CreatePaymentRequest) (*paymentdomain.Payment, error) {
	p, err := paymentdomain.NewPayment(req.OrderID, req.CustomerID, req.Method, req.Amount, req.Currency, testNow)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.payments[p.PaymentID] = p
	f.mu.Unlock()
	return p, nil
}

func (f *fakePayments) ProcessPayment(ctx context.Context, paymentID string) (*paymentdomain.Payment, error) {
	p, err := f.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	p.Status = paymentdomain.PaymentStatusCompleted
	return p, nil
}

func (f *fakePayments) HandleCallback(ctx context.Context, cb paymentdomain.Callback) (*paymentdomain.Payment, error) {
	f.mu.Lock()
	f.callbacks = append(f.callbacks, cb)
	f.mu.Unlock()
	if cb.Status != paymentdomain.PaymentStatusCompleted && cb.Status != paymentdomain.PaymentStatusFailed {
		return nil, paymentdomain.ErrInvalidCallbackStatus
	}
	p, err := f.GetPayment(ctx, cb.PaymentID)
	if err != nil {
		return nil, err
	}
	p.Status = cb.Status
	p.TransactionID = cb.TransactionID
	return p, nil
}

func (f *fakePayments) Refund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (*paymentdomain.Payment, *paymentdomain.Refund, error) {
	p, err := f.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}
	if p.Status != paymentdomain.PaymentStatusCompleted {
		return nil, nil, paymentdomain.ErrInvalidRefundStatus
	}
	p.Status = paymentdomain.PaymentStatusRefunded
	r := &paymentdomain.Refund{
		ID:        uuid.New(),
		RefundID:  "RFD-TEST0001",
		PaymentID: paymentID,
		Amount:    amount,
		Currency:  p.Currency,
		Reason:    reason,
		CreatedAt: testNow,
	}
	f.mu.Lock()
	f.refunds[paymentID] = r
	f.mu.Unlock()
	return p, r, nil
}

func (f *fakePayments) GetRefund(_ context.Context, paymentID string) (*paymentdomain.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.refunds[paymentID]
	if !ok {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return r, nil
}

func (f *fakePayments) CancelPayment(ctx context.Context, paymentID string) (*paymentdomain.Payment, error) {
	p, err := f.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	p.Status = paymentdomain.PaymentStatusCancelled
	return p, nil
}

func (f *fakePayments) GetPayment(_ context.Context, paymentID string) (*paymentdomain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[paymentID]
	if !ok {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return p, nil
}

func (f *fakePayments) ListPaymentsByOrder(_ context.Context, orderID string) ([]*paymentdomain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*paymentdomain.Payment
	for _, p := range f.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePayments) ListPaymentsByCustomer(_ context.Context, customerID string, _ postgres.Pagination) ([]*paymentdomain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*paymentdomain.Payment
	for _, p := range f.payments {
		if p.CustomerID == customerID {
			out = append(out, p)
		}
	}
	return out, nil
}

// --- loyalty ---

type fakeLoyalty struct {
	mu          sync.Mutex
	memberships map[string]*loyaltydomain.Membership
	vouchers    map[string]*loyaltydomain.Voucher
}

func newFakeLoyalty() *fakeLoyalty {
	return &fakeLoyalty{
		memberships: map[string]*loyaltydomain.Membership{},
		vouchers:    map[string]*loyaltydomain.Voucher{},
	}
}

func (f *fakeLoyalty) CreateMembership(_ context.Context, customerID string) (*loyaltydomain.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.memberships[customerID]; ok {
		return nil, loyaltydomain.ErrMembershipExists
	}
	m := loyaltydomain.NewMembership(customerID, testNow)
	f.memberships[customerID] = m
	return m, nil
}

func (f *fakeLoyalty) GetMembership(_ context.Context, customerID string) (*loyaltydomain.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memberships[customerID]
	if !ok {
		return nil, loyaltydomain.ErrMembershipNotFound
	}
	return m, nil
}

func (f *fakeLoyalty) EarnPoints(ctx context.Context, customerID, orderID string, amount decimal.Decimal, description string) (*loyaltydomain.Membership, error) {
	m, err := f.GetMembership(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if _, err := m.Earn(orderID, amount, description, testNow); err != nil {
		return nil, err
	}
	return m, nil
}

func (f *fakeLoyalty) RedeemPoints(ctx context.Context, customerID string, points int64, description string) (*loyaltydomain.Membership, error) {
	m, err := f.GetMembership(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if _, err := m.Redeem(points, description, testNow); err != nil {
		return nil, err
	}
	return m, nil
}

func (f *fakeLoyalty) GetPointsHistory(ctx context.Context, customerID string, _ postgres.Pagination) ([]*loyaltydomain.PointsTransaction, error) {
	if _, err := f.GetMembership(ctx, customerID); err != nil {
		return nil, err
	}
	return []*loyaltydomain.PointsTransaction{}, nil
}

func (f *fakeLoyalty) AuditLedger(ctx context.Context, customerID string) (*loyaltyservice.LedgerAudit, error) {
	m, err := f.GetMembership(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return &loyaltyservice.LedgerAudit{
		CustomerID:    customerID,
		PointsBalance: m.PointsBalance,
		LedgerSum:     m.PointsBalance,
		Consistent:    true,
	}, nil
}

func (f *fakeLoyalty) CreateVoucher(_ context.Context, v *loyaltydomain.Voucher) (*loyaltydomain.Voucher, error) {
	if err := v.Prepare(testNow); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.vouchers[v.Code]; ok {
		return nil, loyaltydomain.ErrVoucherCodeExists
	}
	f.vouchers[v.Code] = v
	return v, nil
}

func (f *fakeLoyalty) GetVoucherByCode(_ context.Context, code string) (*loyaltydomain.Voucher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vouchers[code]
	if !ok {
		return nil, loyaltydomain.ErrVoucherNotFound
	}
	return v, nil
}

func (f *fakeLoyalty) GetAvailableVouchers(_ context.Context) ([]*loyaltydomain.Voucher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*loyaltydomain.Voucher{}
	for _, v := range f.vouchers {
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeLoyalty) UseVoucher(ctx context.Context, code, customerID, orderID string) (*loyaltydomain.VoucherUsage, error) {
	v, err := f.GetVoucherByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	v.UsedCount++
	return &loyaltydomain.VoucherUsage{
		ID:          uuid.New(),
		VoucherID:   v.ID,
		VoucherCode: v.Code,
		CustomerID:  customerID,
		OrderID:     orderID,
		UsedAt:      testNow,
	}, nil
}

func (f *fakeLoyalty) CalculateDiscount(ctx context.Context, code string, subtotal decimal.Decimal, unitPrices []decimal.Decimal) (decimal.Decimal, error) {
	v, err := f.GetVoucherByCode(ctx, code)
	if err != nil {
		return decimal.Zero, err
	}
	return v.CalculateDiscount(subtotal, unitPrices)
}

// --- checkout ---

type fakeCheckout struct {
	mu       sync.Mutex
	orders   *fakeOrders
	payments *fakePayments
	outcome  paymentdomain.PaymentStatus
	requests []checkout.Request
}

func (f *fakeCheckout) settle(ctx context.Context, o *orderdomain.Order, method paymentdomain.Method) (*checkout.Result, error) {
	p, err := f.payments.CreatePayment(ctx, paymentservice.CreatePaymentRequest{
		OrderID:    o.ID.String(),
		CustomerID: o.CustomerID,
		Method:     method,
		Amount:     o.TotalAmount,
	})
	if err != nil {
		return nil, err
	}
	p.Status = f.outcome
	return &checkout.Result{Order: o, Payment: p}, nil
}

func (f *fakeCheckout) Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if !req.Method.IsValid() {
		return nil, paymentdomain.ErrInvalidMethod
	}
	o, err := f.orders.CreateOrder(ctx, req.CustomerID, req.Delivery, req.VoucherCode)
	if err != nil {
		return nil, err
	}
	return f.settle(ctx, o, req.Method)
}

func (f *fakeCheckout) PayOrder(ctx context.Context, orderID uuid.UUID, method paymentdomain.Method, _ string) (*checkout.Result, error) {
	o, err := f.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != orderdomain.OrderStatusPending {
		return nil, checkout.ErrOrderNotPayable
	}
	return f.settle(ctx, o, method)
}

// --- notifications ---

type fakeNotifications struct {
	mu    sync.Mutex
	items map[uuid.UUID]*notificationdomain.Notification
}

func newFakeNotifications() *fakeNotifications {
	return &fakeNotifications{items: map[uuid.UUID]*notificationdomain.Notification{}}
}

func (f *fakeNotifications) add(n *notificationdomain.Notification) {
	f.mu.Lock()
	f.items[n.ID] = n
	f.mu.Unlock()
}

func (f *fakeNotifications) ListForCustomer(_ context.Context, customerID string, _ postgres.Pagination) ([]*notificationdomain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*notificationdomain.Notification
	for _, n := range f.items {
		if n.CustomerID == customerID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNotifications) MarkRead(_ context.Context, customerID string, id uuid.UUID) (*notificationdomain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.items[id]
	if !ok || n.CustomerID != customerID {
		return nil, notificationdomain.ErrNotificationNotFound
	}
	n.MarkRead(testNow)
	return n, nil
}

func (f *fakeNotifications) Delete(_ context.Context, customerID string, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.items[id]
	if !ok || n.CustomerID != customerID {
		return notificationdomain.ErrNotificationNotFound
	}
	delete(f.items, id)
	return nil
}
