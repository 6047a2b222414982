package checkout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fjod/coffee_saga/internal/apperr"
	loyaltydomain "github.com/fjod/coffee_saga/internal/loyalty/domain"
	orderdomain "github.com/fjod/coffee_saga/internal/orders/domain"
	paymentdomain "github.com/fjod/coffee_saga/internal/payment/domain"
	paymentservice "github.com/fjod/coffee_saga/internal/payment/service"
)

var tracer = otel.Tracer("github.com/fjod/coffee_saga/internal/checkout")

var ErrOrderNotPayable = apperr.New(apperr.Conflict, "ORDER_NOT_PAYABLE", "only pending orders can be paid")

type Orders interface {
	CreateOrder(ctx context.Context, customerID string, info orderdomain.DeliveryInfo, voucherCode string) (*orderdomain.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status orderdomain.OrderStatus) (*orderdomain.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*orderdomain.Order, error)
}

type Payments interface {
	CreatePayment(ctx context.Context, req paymentservice.CreatePaymentRequest) (*paymentdomain.Payment, error)
	ProcessPayment(ctx context.Context, paymentID string) (*paymentdomain.Payment, error)
}

type Loyalty interface {
	EarnPoints(ctx context.Context, customerID, orderID string, amount decimal.Decimal, description string) (*loyaltydomain.Membership, error)
}

type Request struct {
	CustomerID     string
	Delivery       orderdomain.DeliveryInfo
	VoucherCode    string
	Method         paymentdomain.Method
	PaymentDetails string
}

// Result is what the caller sees after the saga ran. Payment is nil when the
// saga stopped before a payment was created.
type Result struct {
	Order      *orderdomain.Order
	Payment    *paymentdomain.Payment
	Membership *loyaltydomain.Membership
}

// Paid reports whether the payment settled successfully.
func (r *Result) Paid() bool {
	return r.Payment != nil && r.Payment.Status == paymentdomain.PaymentStatusCompleted
}

type Service struct {
	orders         Orders
	payments       Payments
	loyalty        Loyalty
	paymentTimeout time.Duration
	log            *slog.Logger
}

func NewService(orders Orders, payments Payments, loyalty Loyalty, paymentTimeout time.Duration, log *slog.Logger) *Service {
	return &Service{
		orders:         orders,
		payments:       payments,
		loyalty:        loyalty,
		paymentTimeout: paymentTimeout,
		log:            log,
	}
}

// Checkout turns the customer's cart into an order, discounted by the voucher if
// one was given, and settles a payment for the order total.
// A rejected voucher stops the saga before any order exists. A failed payment
// leaves the order PENDING so PayOrder can retry it.
func (s *Service) Checkout(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Checkout")
	defer span.End()
	span.SetAttributes(attribute.String("customer_id", req.CustomerID))

	if !req.Method.IsValid() {
		return nil, paymentdomain.ErrInvalidMethod
	}

	order, err := s.orders.CreateOrder(ctx, req.CustomerID, req.Delivery, req.VoucherCode)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("order_number", order.OrderNumber))

	res, err := s.pay(ctx, order, req.Method, req.PaymentDetails)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

// PayOrder settles a new payment for an existing PENDING order.
func (s *Service) PayOrder(ctx context.Context, orderID uuid.UUID, method paymentdomain.Method, details string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "PayOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", orderID.String()))

	if !method.IsValid() {
		return nil, paymentdomain.ErrInvalidMethod
	}
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != orderdomain.OrderStatusPending {
		return nil, ErrOrderNotPayable
	}
	return s.pay(ctx, order, method, details)
}

func (s *Service) pay(ctx context.Context, order *orderdomain.Order, method paymentdomain.Method, details string) (*Result, error) {
	res := &Result{Order: order}

	payment, err := s.payments.CreatePayment(ctx, paymentservice.CreatePaymentRequest{
		OrderID:        order.ID.String(),
		CustomerID:     order.CustomerID,
		Method:         method,
		Amount:         order.TotalAmount,
		PaymentDetails: details,
	})
	if err != nil {
		return res, err
	}
	res.Payment = payment

	payCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	defer cancel()
	settled, err := s.payments.ProcessPayment(payCtx, payment.PaymentID)
	if err != nil {
		return res, err
	}
	res.Payment = settled

	if settled.Status != paymentdomain.PaymentStatusCompleted {
		s.log.InfoContext(ctx, "checkout payment not completed",
			slog.String("order_number", order.OrderNumber),
			slog.String("payment_id", settled.PaymentID),
			slog.String("status", string(settled.Status)),
			slog.String("reason", settled.FailureReason))
		return res, nil
	}

	confirmed, err := s.orders.UpdateStatus(ctx, order.ID, orderdomain.OrderStatusConfirmed)
	if err != nil {
		s.log.ErrorContext(ctx, "payment completed but order was not confirmed",
			slog.String("order_number", order.OrderNumber),
			slog.String("payment_id", settled.PaymentID),
			slog.String("error", err.Error()))
		return res, err
	}
	res.Order = confirmed
	res.Membership = s.earn(ctx, confirmed)
	return res, nil
}

// earn credits loyalty points for a confirmed order. Customers without a
// membership are skipped and other failures only get logged.
func (s *Service) earn(ctx context.Context, order *orderdomain.Order) *loyaltydomain.Membership {
	m, err := s.loyalty.EarnPoints(ctx, order.CustomerID, order.ID.String(), order.TotalAmount,
		"Points earned from order "+order.OrderNumber)
	switch {
	case err == nil:
		return m
	case errors.Is(err, loyaltydomain.ErrMembershipNotFound):
		s.log.DebugContext(ctx, "customer has no loyalty membership", slog.String("customer_id", order.CustomerID))
	default:
		s.log.WarnContext(ctx, "failed to earn loyalty points",
			slog.String("order_number", order.OrderNumber),
			slog.String("error", err.Error()))
	}
	return nil
}
