package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fjod/coffee_saga/internal/apperr"
)

var (
	ErrInvalidVoucher       = apperr.New(apperr.ValidationFailed, "INVALID_VOUCHER", "voucher definition is invalid")
	ErrVoucherCodeExists    = apperr.New(apperr.Conflict, "VOUCHER_CODE_EXISTS", "voucher code already exists")
	ErrVoucherNotFound      = apperr.New(apperr.NotFound, "VOUCHER_NOT_FOUND", "voucher not found")
	ErrVoucherInactive      = apperr.New(apperr.Conflict, "VOUCHER_INACTIVE", "voucher is not active")
	ErrVoucherExpired       = apperr.New(apperr.InsufficientResource, "VOUCHER_EXPIRED", "voucher is not valid at this time")
	ErrVoucherLimitExceeded = apperr.New(apperr.InsufficientResource, "VOUCHER_LIMIT_EXCEEDED", "voucher usage limit exceeded")
	ErrVoucherAlreadyUsed   = apperr.New(apperr.Conflict, "VOUCHER_ALREADY_USED", "voucher already used for this order")
	ErrVoucherMinimumNotMet = apperr.New(apperr.Conflict, "VOUCHER_MINIMUM_NOT_MET", "order subtotal is below the voucher minimum")
)

type VoucherType string

const (
	VoucherFixedAmount VoucherType = "FIXED_AMOUNT"
	VoucherPercentage  VoucherType = "PERCENTAGE"
	VoucherFreeItem    VoucherType = "FREE_ITEM"
)

func (t VoucherType) IsValid() bool {
	switch t {
	case VoucherFixedAmount, VoucherPercentage, VoucherFreeItem:
		return true
	}
	return false
}

var hundred = decimal.NewFromInt(100)

type Voucher struct {
	ID                    uuid.UUID
	Code                  string
	Name                  string
	Description           string
	Type                  VoucherType
	DiscountValue         decimal.Decimal
	DiscountPercentage    decimal.Decimal
	MinimumOrderAmount    decimal.Decimal
	MaximumDiscountAmount decimal.NullDecimal
	UsageLimit            *int // nil means unlimited
	UsedCount             int
	Active                bool
	ValidFrom             time.Time
	ValidUntil            time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type VoucherUsage struct {
	ID          uuid.UUID
	VoucherID   uuid.UUID
	VoucherCode string
	CustomerID  string
	OrderID     string
	UsedAt      time.Time
}

// Prepare fills defaults for a new voucher and checks its definition.
// A voucher without a window is valid from now for one month.
func (v *Voucher) Prepare(now time.Time) error {
	v.Code = strings.TrimSpace(v.Code)
	if v.Code == "" {
		return ErrInvalidVoucher.WithMessage("voucher code is required")
	}
	if !v.Type.IsValid() {
		return ErrInvalidVoucher.WithMessage(fmt.Sprintf("unknown voucher type %q", v.Type))
	}
	switch v.Type {
	case VoucherFixedAmount:
		if !v.DiscountValue.IsPositive() {
			return ErrInvalidVoucher.WithMessage("fixed amount vouchers need a positive discount value")
		}
	case VoucherPercentage:
		if !v.DiscountPercentage.IsPositive() || v.DiscountPercentage.GreaterThan(hundred) {
			return ErrInvalidVoucher.WithMessage("discount percentage must be in (0, 100]")
		}
	}
	if v.MinimumOrderAmount.IsNegative() {
		return ErrInvalidVoucher.WithMessage("minimum order amount must not be negative")
	}
	if v.MaximumDiscountAmount.Valid && !v.MaximumDiscountAmount.Decimal.IsPositive() {
		return ErrInvalidVoucher.WithMessage("maximum discount must be positive")
	}
	if v.UsageLimit != nil && *v.UsageLimit < 1 {
		return ErrInvalidVoucher.WithMessage("usage limit must be at least 1")
	}
	if v.ValidFrom.IsZero() {
		v.ValidFrom = now
	}
	if v.ValidUntil.IsZero() {
		v.ValidUntil = v.ValidFrom.AddDate(0, 1, 0)
	}
	if !v.ValidUntil.After(v.ValidFrom) {
		return ErrInvalidVoucher.WithMessage("validUntil must be after validFrom")
	}

	v.ID = uuid.New()
	v.UsedCount = 0
	v.Active = true
	v.CreatedAt = now
	v.UpdatedAt = now
	return nil
}

func (v *Voucher) InWindow(now time.Time) bool {
	return !now.Before(v.ValidFrom) && !now.After(v.ValidUntil)
}

func (v *Voucher) LimitReached() bool {
	return v.UsageLimit != nil && v.UsedCount >= *v.UsageLimit
}

// IsAvailable reports whether the voucher can be offered at now.
func (v *Voucher) IsAvailable(now time.Time) bool {
	return v.Active && v.InWindow(now) && !v.LimitReached()
}

// CheckRedeemable applies the redemption rules in order: active, in window,
// not yet used for this order, usage limit.
func (v *Voucher) CheckRedeemable(now time.Time, usedByOrder bool) error {
	switch {
	case !v.Active:
		return ErrVoucherInactive
	case !v.InWindow(now):
		return ErrVoucherExpired
	case usedByOrder:
		return ErrVoucherAlreadyUsed
	case v.LimitReached():
		return ErrVoucherLimitExceeded
	}
	return nil
}

// CalculateDiscount prices the voucher against an order subtotal. The result
// never exceeds the maximum discount or the subtotal.
func (v *Voucher) CalculateDiscount(subtotal decimal.Decimal, unitPrices []decimal.Decimal) (decimal.Decimal, error) {
	if subtotal.LessThan(v.MinimumOrderAmount) {
		return decimal.Zero, ErrVoucherMinimumNotMet.WithMessage(
			fmt.Sprintf("subtotal %s is below the minimum %s", subtotal.StringFixed(2), v.MinimumOrderAmount.StringFixed(2)))
	}

	var discount decimal.Decimal
	switch v.Type {
	case VoucherFixedAmount:
		discount = v.DiscountValue
	case VoucherPercentage:
		discount = subtotal.Mul(v.DiscountPercentage).Div(hundred).Round(2)
	case VoucherFreeItem:
		for i, p := range unitPrices {
			if i == 0 || p.LessThan(discount) {
				discount = p
			}
		}
	}

	if v.MaximumDiscountAmount.Valid && discount.GreaterThan(v.MaximumDiscountAmount.Decimal) {
		discount = v.MaximumDiscountAmount.Decimal
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return discount, nil
}
