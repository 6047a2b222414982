package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/coffee_saga/internal/payment/domain"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
)

const paymentColumns = `id, payment_id, order_id, customer_id, method, status, amount, currency, transaction_id,
	gateway_reference, gateway_response, failure_reason, payment_details, created_at, updated_at, completed_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreatePayment(ctx context.Context, p *domain.Payment) error {
	query := `INSERT INTO payments (` + paymentColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.PaymentID,
		p.OrderID,
		p.CustomerID,
		p.Method,
		p.Status,
		p.Amount,
		p.Currency,
		p.TransactionID,
		p.GatewayReference,
		p.GatewayResponse,
		p.FailureReason,
		p.PaymentDetails,
		p.CreatedAt,
		p.UpdatedAt,
		p.CompletedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "payments_payment_id_key") {
			return ErrDuplicatePaymentID
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *Repository) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE payment_id = $1`, paymentID)
	return scanPayment(row)
}

func (r *Repository) ListPaymentsByOrder(ctx context.Context, orderID string) ([]*domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query payments by order: %w", err)
	}
	return collectPayments(rows)
}

func (r *Repository) ListPaymentsByCustomer(ctx context.Context, customerID string, page postgres.Pagination) ([]*domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE customer_id = $1
		 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, customerID, page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("query payments by customer: %w", err)
	}
	return collectPayments(rows)
}

func (r *Repository) UpdatePayment(ctx context.Context, paymentID string, fn func(p *domain.Payment) error) (*domain.Payment, error) {
	var updated *domain.Payment
	err := postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		p, err := lockPayment(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		if err := savePayment(ctx, tx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *Repository) RefundPayment(ctx context.Context, paymentID string, fn func(p *domain.Payment) (*domain.Refund, error)) (*domain.Payment, *domain.Refund, error) {
	var (
		updated *domain.Payment
		refund  *domain.Refund
	)
	err := postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		p, err := lockPayment(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		rf, err := fn(p)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO payment_refunds (id, refund_id, payment_id, amount, currency, reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rf.ID, rf.RefundID, rf.PaymentID, rf.Amount, rf.Currency, rf.Reason, rf.CreatedAt)
		if err != nil {
			if postgres.IsUniqueViolation(err, "payment_refunds_payment_id_key") {
				return domain.ErrInvalidRefundStatus.WithMessage("payment has already been refunded")
			}
			return fmt.Errorf("insert refund: %w", err)
		}
		if err := savePayment(ctx, tx, p); err != nil {
			return err
		}
		updated, refund = p, rf
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return updated, refund, nil
}

func (r *Repository) GetRefund(ctx context.Context, paymentID string) (*domain.Refund, error) {
	var rf domain.Refund
	err := r.db.QueryRowContext(ctx, `SELECT id, refund_id, payment_id, amount, currency, reason, created_at
		FROM payment_refunds WHERE payment_id = $1`, paymentID).
		Scan(&rf.ID, &rf.RefundID, &rf.PaymentID, &rf.Amount, &rf.Currency, &rf.Reason, &rf.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRefundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get refund: %w", err)
	}
	return &rf, nil
}

func lockPayment(ctx context.Context, tx *sql.Tx, paymentID string) (*domain.Payment, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE payment_id = $1 FOR UPDATE`, paymentID)
	return scanPayment(row)
}

func savePayment(ctx context.Context, tx *sql.Tx, p *domain.Payment) error {
	_, err := tx.ExecContext(ctx, `UPDATE payments SET status = $2, transaction_id = $3, gateway_reference = $4,
		gateway_response = $5, failure_reason = $6, updated_at = $7, completed_at = $8 WHERE payment_id = $1`,
		p.PaymentID, p.Status, p.TransactionID, p.GatewayReference, p.GatewayResponse, p.FailureReason,
		p.UpdatedAt, p.CompletedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "payments_order_completed_key") {
			return domain.ErrOrderAlreadyPaid
		}
		return fmt.Errorf("update payment: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPayment(s scanner) (*domain.Payment, error) {
	var p domain.Payment
	err := s.Scan(
		&p.ID,
		&p.PaymentID,
		&p.OrderID,
		&p.CustomerID,
		&p.Method,
		&p.Status,
		&p.Amount,
		&p.Currency,
		&p.TransactionID,
		&p.GatewayReference,
		&p.GatewayResponse,
		&p.FailureReason,
		&p.PaymentDetails,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return &p, nil
}

func collectPayments(rows *sql.Rows) ([]*domain.Payment, error) {
	defer rows.Close()
	payments := make([]*domain.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return payments, nil
}
