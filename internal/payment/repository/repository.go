package repository

import (
	"context"
	"errors"

	"github.com/fjod/coffee_saga/internal/apperr"
	"github.com/fjod/coffee_saga/internal/payment/domain"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
)

const MigrationsTable = "payments_schema_migrations"

var (
	ErrRefundNotFound     = apperr.New(apperr.NotFound, "REFUND_NOT_FOUND", "refund not found")
	ErrDuplicatePaymentID = errors.New("payment id already exists")
)

type PaymentRepository interface {
	CreatePayment(ctx context.Context, p *domain.Payment) error
	GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error)
	ListPaymentsByOrder(ctx context.Context, orderID string) ([]*domain.Payment, error)
	ListPaymentsByCustomer(ctx context.Context, customerID string, page postgres.Pagination) ([]*domain.Payment, error)
	// UpdatePayment locks the payment row, applies fn and persists the result.
	// Nothing is written when fn returns an error. Completing a second payment of
	// the same order fails with domain.ErrOrderAlreadyPaid.
	UpdatePayment(ctx context.Context, paymentID string, fn func(p *domain.Payment) error) (*domain.Payment, error)
	// RefundPayment locks the payment, lets fn produce the refund and stores both in one transaction.
	RefundPayment(ctx context.Context, paymentID string, fn func(p *domain.Payment) (*domain.Refund, error)) (*domain.Payment, *domain.Refund, error)
	GetRefund(ctx context.Context, paymentID string) (*domain.Refund, error)
}
