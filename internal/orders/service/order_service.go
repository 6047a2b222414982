package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	cartdomain "github.com/fjod/coffee_saga/internal/cart/domain"
	"github.com/fjod/coffee_saga/internal/events"
	"github.com/fjod/coffee_saga/internal/metrics"
	"github.com/fjod/coffee_saga/internal/orders/domain"
	"github.com/fjod/coffee_saga/internal/orders/repository"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
)

const orderNumberAttempts = 3

var tracer = otel.Tracer("github.com/fjod/coffee_saga/internal/orders/service")

type CartReader interface {
	GetCart(ctx context.Context, customerID string) (*cartdomain.Cart, error)
	Clear(ctx context.Context, customerID string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, ev events.OrderCreated)
}

// VoucherRedeemer records the voucher use for the order and returns the discount it grants.
// ReleaseVoucher gives a recorded use back when the order could not take the discount.
type VoucherRedeemer interface {
	RedeemVoucher(ctx context.Context, code, customerID, orderID string, subtotal decimal.Decimal, unitPrices []decimal.Decimal) (decimal.Decimal, error)
	ReleaseVoucher(ctx context.Context, code, orderID string) error
}

type OrderService struct {
	repo      repository.OrderRepository
	carts     CartReader
	publisher EventPublisher
	vouchers  VoucherRedeemer
	log       *slog.Logger
	metrics   *metrics.Domain
	now       func() time.Time
}

func NewOrderService(
	repo repository.OrderRepository,
	carts CartReader,
	publisher EventPublisher,
	vouchers VoucherRedeemer,
	log *slog.Logger,
	m *metrics.Domain,
) *OrderService {
	return &OrderService{
		repo:      repo,
		carts:     carts,
		publisher: publisher,
		vouchers:  vouchers,
		log:       log,
		metrics:   m,
		now:       time.Now,
	}
}

// CreateOrder snapshots the customer's cart into a PENDING order, clears the cart
// and queues an OrderCreated event. A voucher code is redeemed before the order is
// stored, so the stored and published totals already carry the discount.
// Nothing is persisted for an empty cart or a rejected voucher.
func (s *OrderService) CreateOrder(ctx context.Context, customerID string, info domain.DeliveryInfo, voucherCode string) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderService.CreateOrder")
	defer span.End()
	span.SetAttributes(attribute.String("customer_id", customerID))

	cart, err := s.carts.GetCart(ctx, customerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load cart")
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart.IsEmpty() {
		return nil, domain.ErrEmptyCart
	}

	items := make([]domain.OrderItem, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		items = append(items, domain.OrderItem{
			ProductID:           l.ProductID,
			ProductName:         l.ProductName,
			Quantity:            l.Quantity,
			UnitPrice:           l.UnitPrice,
			SpecialInstructions: l.SpecialInstructions,
		})
	}

	now := s.now().UTC()
	order, err := domain.NewOrder(customerID, items, info, now)
	if err != nil {
		return nil, err
	}

	if voucherCode != "" {
		span.SetAttributes(attribute.String("voucher_code", voucherCode))
		discount, err := s.vouchers.RedeemVoucher(ctx, voucherCode, customerID, order.ID.String(), order.Subtotal, order.UnitPrices())
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if err := order.ApplyDiscount(voucherCode, discount, now); err != nil {
			s.releaseVoucher(ctx, order.ID, voucherCode)
			return nil, err
		}
	}

	for attempt := 1; ; attempt++ {
		err = s.repo.CreateOrder(ctx, order)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicateOrderNumber) || attempt == orderNumberAttempts {
			span.RecordError(err)
			span.SetStatus(codes.Error, "persist order")
			if voucherCode != "" {
				s.releaseVoucher(ctx, order.ID, voucherCode)
			}
			return nil, err
		}
		s.log.WarnContext(ctx, "order number collision, retrying", slog.String("order_number", order.OrderNumber))
		order.OrderNumber = domain.NewOrderNumber()
	}
	span.SetAttributes(attribute.String("order_id", order.ID.String()), attribute.String("order_number", order.OrderNumber))
	s.metrics.OrderCreated()

	if err := s.carts.Clear(ctx, customerID); err != nil {
		s.log.ErrorContext(ctx, "failed to clear cart after checkout",
			slog.String("customer_id", customerID),
			slog.String("order_id", order.ID.String()),
			slog.String("error", err.Error()))
	}

	s.publisher.Publish(ctx, orderCreatedEvent(order))

	s.log.InfoContext(ctx, "order created",
		slog.String("order_id", order.ID.String()),
		slog.String("order_number", order.OrderNumber),
		slog.String("total", order.TotalAmount.StringFixed(2)))
	return order, nil
}

func orderCreatedEvent(o *domain.Order) events.OrderCreated {
	items := make([]events.OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, events.OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.UnitPrice,
		})
	}
	return events.OrderCreated{
		OrderID:     o.ID.String(),
		OrderNumber: o.OrderNumber,
		CustomerID:  o.CustomerID,
		TotalAmount: o.TotalAmount,
		OrderType:   string(o.Type),
		CreatedAt:   o.CreatedAt,
		Items:       items,
	}
}

func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderService.UpdateStatus")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", orderID.String()), attribute.String("status", string(status)))

	order, err := s.repo.UpdateOrder(ctx, orderID, func(o *domain.Order) error {
		return o.TransitionTo(status, s.now().UTC())
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.metrics.OrderTransition(string(status))
	s.log.InfoContext(ctx, "order status updated",
		slog.String("order_id", orderID.String()),
		slog.String("status", string(status)))
	return order, nil
}

// ApplyVoucher redeems code against a pending order and recomputes its totals.
// The redemption runs while the order row is locked, so a concurrent cancel or a
// second voucher waits for it. The use is given back if the order is not updated.
func (s *OrderService) ApplyVoucher(ctx context.Context, orderID uuid.UUID, code string) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderService.ApplyVoucher")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", orderID.String()), attribute.String("voucher_code", code))

	var redeemed bool
	order, err := s.repo.UpdateOrder(ctx, orderID, func(o *domain.Order) error {
		if err := o.CanApplyVoucher(); err != nil {
			return err
		}
		discount, err := s.vouchers.RedeemVoucher(ctx, code, o.CustomerID, o.ID.String(), o.Subtotal, o.UnitPrices())
		if err != nil {
			return err
		}
		redeemed = true
		return o.ApplyDiscount(code, discount, s.now().UTC())
	})
	if err != nil {
		span.RecordError(err)
		if redeemed {
			s.releaseVoucher(ctx, orderID, code)
		}
		return nil, err
	}
	s.log.InfoContext(ctx, "voucher applied",
		slog.String("order_id", orderID.String()),
		slog.String("voucher_code", code),
		slog.String("discount", order.DiscountAmount.StringFixed(2)))
	return order, nil
}

// releaseVoucher gives back a use whose order was never written. It runs even
// when the caller's context is done.
func (s *OrderService) releaseVoucher(ctx context.Context, orderID uuid.UUID, code string) {
	if err := s.vouchers.ReleaseVoucher(context.WithoutCancel(ctx), code, orderID.String()); err != nil {
		s.log.ErrorContext(ctx, "voucher redeemed but not released after order failure",
			slog.String("order_id", orderID.String()),
			slog.String("voucher_code", code),
			slog.String("error", err.Error()))
	}
}

func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return s.repo.GetOrderByID(ctx, orderID)
}

func (s *OrderService) GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return s.repo.GetOrderByNumber(ctx, number)
}

func (s *OrderService) ListOrders(ctx context.Context, customerID string, page postgres.Pagination) ([]*domain.Order, error) {
	return s.repo.ListOrdersByCustomer(ctx, customerID, page)
}
