package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fjod/coffee_saga/internal/apperr"
)

const DefaultCurrency = "MMK"

var (
	ErrPaymentNotFound       = apperr.New(apperr.NotFound, "PAYMENT_NOT_FOUND", "payment not found")
	ErrInvalidPaymentStatus  = apperr.New(apperr.Conflict, "INVALID_PAYMENT_STATUS", "payment is not in a state that allows this operation")
	ErrInvalidCallbackStatus = apperr.New(apperr.ValidationFailed, "INVALID_CALLBACK_STATUS", "callback status must be COMPLETED or FAILED")
	ErrInvalidAmount         = apperr.New(apperr.ValidationFailed, "INVALID_PAYMENT_AMOUNT", "payment amount must be positive")
	ErrInvalidMethod         = apperr.New(apperr.ValidationFailed, "INVALID_PAYMENT_METHOD", "unknown payment method")
	ErrInvalidRefundStatus   = apperr.New(apperr.Conflict, "INVALID_REFUND_STATUS", "only completed payments can be refunded")
	ErrInvalidRefundAmount   = apperr.New(apperr.ValidationFailed, "INVALID_REFUND_AMOUNT", "refund amount must be positive and not exceed the payment amount")
	ErrOrderAlreadyPaid      = apperr.New(apperr.Conflict, "ORDER_ALREADY_PAID", "order already has a completed payment")
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusCancelled  PaymentStatus = "CANCELLED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) IsSettled() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

type Method string

const (
	MethodCash         Method = "CASH"
	MethodKBZPay       Method = "KBZ_PAY"
	MethodWaveMoney    Method = "WAVE_MONEY"
	MethodCreditCard   Method = "CREDIT_CARD"
	MethodBankTransfer Method = "BANK_TRANSFER"
)

var successRates = map[Method]float64{
	MethodCash:         1.0,
	MethodKBZPay:       0.90,
	MethodWaveMoney:    0.95,
	MethodCreditCard:   0.85,
	MethodBankTransfer: 0.80,
}

func (m Method) IsValid() bool {
	_, ok := successRates[m]
	return ok
}

// SuccessRate is the probability the simulated gateway settles a payment of this method.
func (m Method) SuccessRate() float64 {
	return successRates[m]
}

type Payment struct {
	ID               uuid.UUID
	PaymentID        string
	OrderID          string
	CustomerID       string
	Method           Method
	Status           PaymentStatus
	Amount           decimal.Decimal
	Currency         string
	TransactionID    string
	GatewayReference string
	GatewayResponse  string
	FailureReason    string
	PaymentDetails   string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
}

type Refund struct {
	ID        uuid.UUID
	RefundID  string
	PaymentID string
	Amount    decimal.Decimal
	Currency  string
	Reason    string
	CreatedAt time.Time
}

func NewPaymentID() string {
	return "PAY-" + strings.ToUpper(uuid.NewString()[:8])
}

func NewTransactionID() string {
	return "TXN-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

func NewRefundID() string {
	return "RFD-" + strings.ToUpper(uuid.NewString()[:8])
}

func NewPayment(orderID, customerID string, method Method, amount decimal.Decimal, currency string, now time.Time) (*Payment, error) {
	if !method.IsValid() {
		return nil, ErrInvalidMethod.WithMessage(fmt.Sprintf("unknown payment method %q", method))
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return &Payment{
		ID:         uuid.New(),
		PaymentID:  NewPaymentID(),
		OrderID:    orderID,
		CustomerID: customerID,
		Method:     method,
		Status:     PaymentStatusPending,
		Amount:     amount,
		Currency:   currency,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// StartProcessing claims a pending payment for settlement.
func (p *Payment) StartProcessing(now time.Time) error {
	if p.Status != PaymentStatusPending {
		return ErrInvalidPaymentStatus.WithMessage(fmt.Sprintf("payment %s is %s, not PENDING", p.PaymentID, p.Status))
	}
	p.Status = PaymentStatusProcessing
	p.UpdatedAt = now
	return nil
}

func (p *Payment) Complete(transactionID, response string, now time.Time) {
	p.Status = PaymentStatusCompleted
	p.TransactionID = transactionID
	p.GatewayResponse = response
	p.FailureReason = ""
	p.CompletedAt = &now
	p.UpdatedAt = now
}

func (p *Payment) Fail(reason string, now time.Time) {
	p.Status = PaymentStatusFailed
	p.FailureReason = reason
	p.UpdatedAt = now
}

type Callback struct {
	PaymentID        string
	Status           PaymentStatus
	TransactionID    string
	GatewayReference string
	GatewayResponse  string
	FailureReason    string
}

// ApplyCallback reconciles an externally reported terminal status. It returns
// false when the payment already carries that status, leaving it untouched.
func (p *Payment) ApplyCallback(cb Callback, now time.Time) (bool, error) {
	if !cb.Status.IsSettled() {
		return false, ErrInvalidCallbackStatus
	}
	if p.Status == cb.Status {
		return false, nil
	}
	p.GatewayReference = cb.GatewayReference
	p.GatewayResponse = cb.GatewayResponse
	if cb.Status == PaymentStatusCompleted {
		txn := cb.TransactionID
		if txn == "" {
			txn = p.TransactionID
		}
		p.Complete(txn, cb.GatewayResponse, now)
	} else {
		p.Fail(cb.FailureReason, now)
	}
	return true, nil
}

// NewRefund validates and applies a full or partial refund of a completed payment.
func (p *Payment) NewRefund(amount decimal.Decimal, reason string, now time.Time) (*Refund, error) {
	if p.Status != PaymentStatusCompleted {
		return nil, ErrInvalidRefundStatus
	}
	if !amount.IsPositive() || amount.GreaterThan(p.Amount) {
		return nil, ErrInvalidRefundAmount.WithMessage(fmt.Sprintf("refund %s must be within (0, %s]", amount, p.Amount))
	}
	p.Status = PaymentStatusRefunded
	p.UpdatedAt = now
	return &Refund{
		ID:        uuid.New(),
		RefundID:  NewRefundID(),
		PaymentID: p.PaymentID,
		Amount:    amount,
		Currency:  p.Currency,
		Reason:    reason,
		CreatedAt: now,
	}, nil
}

// Cancel voids a payment that has not completed. Cancelling twice is a no-op.
func (p *Payment) Cancel(now time.Time) error {
	switch p.Status {
	case PaymentStatusCancelled:
		return nil
	case PaymentStatusCompleted, PaymentStatusRefunded:
		return ErrInvalidPaymentStatus.WithMessage(fmt.Sprintf("payment %s is %s and cannot be cancelled", p.PaymentID, p.Status))
	}
	p.Status = PaymentStatusCancelled
	p.UpdatedAt = now
	return nil
}
