package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fjod/coffee_saga/internal/orders/domain"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
)

const orderColumns = `id, order_number, customer_id, status, order_type, subtotal, tax_amount, discount_amount,
	delivery_fee, total_amount, voucher_code, delivery_address, delivery_phone, notes, items,
	created_at, updated_at, completed_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	query := `INSERT INTO orders (` + orderColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err = r.db.ExecContext(ctx, query,
		order.ID,
		order.OrderNumber,
		order.CustomerID,
		order.Status,
		order.Type,
		order.Subtotal,
		order.TaxAmount,
		order.DiscountAmount,
		order.DeliveryFee,
		order.TotalAmount,
		order.VoucherCode,
		order.DeliveryAddress,
		order.DeliveryPhone,
		order.Notes,
		itemsJSON,
		order.CreatedAt,
		order.UpdatedAt,
		order.CompletedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "orders_order_number_key") {
			return ErrDuplicateOrderNumber
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *Repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (r *Repository) GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, number)
	return scanOrder(row)
}

func (r *Repository) ListOrdersByCustomer(ctx context.Context, customerID string, page postgres.Pagination) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1
	          ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, customerID, page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("query orders by customer: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

func (r *Repository) UpdateOrder(ctx context.Context, id uuid.UUID, fn func(o *domain.Order) error) (*domain.Order, error) {
	var updated *domain.Order
	err := postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
		o, err := scanOrder(row)
		if err != nil {
			return err
		}
		if err := fn(o); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `UPDATE orders SET status = $2, subtotal = $3, tax_amount = $4,
			discount_amount = $5, delivery_fee = $6, total_amount = $7, voucher_code = $8,
			updated_at = $9, completed_at = $10 WHERE id = $1`,
			o.ID, o.Status, o.Subtotal, o.TaxAmount, o.DiscountAmount, o.DeliveryFee, o.TotalAmount,
			o.VoucherCode, o.UpdatedAt, o.CompletedAt)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (*domain.Order, error) {
	var o domain.Order
	var itemsJSON []byte
	err := s.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.CustomerID,
		&o.Status,
		&o.Type,
		&o.Subtotal,
		&o.TaxAmount,
		&o.DiscountAmount,
		&o.DeliveryFee,
		&o.TotalAmount,
		&o.VoucherCode,
		&o.DeliveryAddress,
		&o.DeliveryPhone,
		&o.Notes,
		&itemsJSON,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	return &o, nil
}
