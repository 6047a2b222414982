package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fjod/coffee_saga/internal/apperr"
)

var TaxRate = decimal.RequireFromString("0.10")

var (
	ErrEmptyCart          = apperr.New(apperr.ValidationFailed, "EMPTY_CART", "cart is empty, nothing to order")
	ErrIllegalTransition  = apperr.New(apperr.Conflict, "INVALID_ORDER_TRANSITION", "illegal transition of order status")
	ErrInvalidStatus      = apperr.New(apperr.ValidationFailed, "INVALID_ORDER_STATUS", "unknown order status")
	ErrInvalidOrderType   = apperr.New(apperr.ValidationFailed, "INVALID_ORDER_TYPE", "order type must be DINE_IN, TAKEAWAY or DELIVERY")
	ErrInvalidDeliveryFee = apperr.New(apperr.ValidationFailed, "INVALID_DELIVERY_FEE", "delivery fee must not be negative")
	ErrMissingAddress     = apperr.New(apperr.ValidationFailed, "DELIVERY_ADDRESS_REQUIRED", "delivery orders need an address")
	ErrVoucherNotAllowed  = apperr.New(apperr.Conflict, "VOUCHER_NOT_APPLICABLE", "voucher can only be applied once to a pending order")
)

type OrderItem struct {
	ProductID           int64           `json:"product_id"`
	ProductName         string          `json:"product_name"`
	Quantity            int             `json:"quantity"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	SpecialInstructions string          `json:"special_instructions,omitempty"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type DeliveryInfo struct {
	Type    OrderType
	Address string
	Phone   string
	Notes   string
	Fee     decimal.Decimal
}

type Order struct {
	ID              uuid.UUID
	OrderNumber     string
	CustomerID      string
	Status          OrderStatus
	Type            OrderType
	Subtotal        decimal.Decimal
	TaxAmount       decimal.Decimal
	DiscountAmount  decimal.Decimal
	DeliveryFee     decimal.Decimal
	TotalAmount     decimal.Decimal
	VoucherCode     string
	DeliveryAddress string
	DeliveryPhone   string
	Notes           string
	Items           []OrderItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// NewOrderNumber returns "ORD-" followed by eight upper-case hex characters.
func NewOrderNumber() string {
	return "ORD-" + strings.ToUpper(uuid.NewString()[:8])
}

// NewOrder builds a PENDING order from an item snapshot and computes its totals.
func NewOrder(customerID string, items []OrderItem, info DeliveryInfo, now time.Time) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	if !info.Type.IsValid() {
		return nil, ErrInvalidOrderType
	}
	if info.Fee.IsNegative() {
		return nil, ErrInvalidDeliveryFee
	}
	if info.Type == OrderTypeDelivery && strings.TrimSpace(info.Address) == "" {
		return nil, ErrMissingAddress
	}

	o := &Order{
		ID:              uuid.New(),
		OrderNumber:     NewOrderNumber(),
		CustomerID:      customerID,
		Status:          OrderStatusPending,
		Type:            info.Type,
		DiscountAmount:  decimal.Zero,
		DeliveryFee:     info.Fee,
		DeliveryAddress: info.Address,
		DeliveryPhone:   info.Phone,
		Notes:           info.Notes,
		Items:           append([]OrderItem(nil), items...),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	o.recalculate()
	return o, nil
}

func (o *Order) recalculate() {
	subtotal := decimal.Zero
	for _, it := range o.Items {
		subtotal = subtotal.Add(it.LineTotal())
	}
	o.Subtotal = subtotal
	o.TaxAmount = subtotal.Mul(TaxRate).Round(2)
	o.TotalAmount = o.Subtotal.Add(o.TaxAmount).Add(o.DeliveryFee).Sub(o.DiscountAmount)
}

// TransitionTo moves the order along the status table. Reaching DELIVERED stamps CompletedAt.
func (o *Order) TransitionTo(to OrderStatus, now time.Time) error {
	if !to.IsValid() {
		return ErrInvalidStatus.WithMessage(fmt.Sprintf("unknown order status %q", to))
	}
	if !CanTransitionTo(o.Status, to) {
		return ErrIllegalTransition.WithMessage(fmt.Sprintf("order %s cannot move from %s to %s", o.OrderNumber, o.Status, to))
	}
	o.Status = to
	o.UpdatedAt = now
	if to == OrderStatusDelivered {
		o.CompletedAt = &now
	}
	return nil
}

// CanApplyVoucher reports whether the order may still take a voucher.
func (o *Order) CanApplyVoucher() error {
	if o.Status != OrderStatusPending || o.VoucherCode != "" {
		return ErrVoucherNotAllowed
	}
	return nil
}

// ApplyDiscount records a voucher discount on a pending order, capped at the subtotal.
func (o *Order) ApplyDiscount(voucherCode string, amount decimal.Decimal, now time.Time) error {
	if err := o.CanApplyVoucher(); err != nil {
		return err
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	if amount.GreaterThan(o.Subtotal) {
		amount = o.Subtotal
	}
	o.VoucherCode = voucherCode
	o.DiscountAmount = amount
	o.UpdatedAt = now
	o.recalculate()
	return nil
}

// CheckTotals recomputes subtotal and total from the items and reports any drift.
func (o *Order) CheckTotals() error {
	subtotal := decimal.Zero
	for _, it := range o.Items {
		subtotal = subtotal.Add(it.LineTotal())
	}
	if !subtotal.Equal(o.Subtotal) {
		return fmt.Errorf("order %s: subtotal %s does not match items %s", o.OrderNumber, o.Subtotal, subtotal)
	}
	want := o.Subtotal.Add(o.TaxAmount).Add(o.DeliveryFee).Sub(o.DiscountAmount)
	if !want.Equal(o.TotalAmount) {
		return fmt.Errorf("order %s: total %s does not match components %s", o.OrderNumber, o.TotalAmount, want)
	}
	return nil
}

func (o *Order) UnitPrices() []decimal.Decimal {
	prices := make([]decimal.Decimal, 0, len(o.Items))
	for _, it := range o.Items {
		prices = append(prices, it.UnitPrice)
	}
	return prices
}
