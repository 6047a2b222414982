package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fjod/coffee_saga/internal/notification/domain"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
)

const notificationColumns = `id, customer_id, order_id, order_number, type, title, message, is_read, created_at, read_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Save(ctx context.Context, n *domain.Notification) (bool, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (order_id) DO NOTHING`,
		n.ID, n.CustomerID, n.OrderID, n.OrderNumber, n.Type, n.Title, n.Message, n.Read, n.CreatedAt, n.ReadAt)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *Repository) GetByOrderID(ctx context.Context, orderID string) (*domain.Notification, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE order_id = $1`, orderID)
	return scanNotification(row)
}

func (r *Repository) ListByCustomer(ctx context.Context, customerID string, page postgres.Pagination) ([]*domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+notificationColumns+` FROM notifications
		WHERE customer_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		customerID, page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

func (r *Repository) UpdateNotification(ctx context.Context, id uuid.UUID, fn func(n *domain.Notification) error) (*domain.Notification, error) {
	var updated *domain.Notification
	err := postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1 FOR UPDATE`, id)
		n, err := scanNotification(row)
		if err != nil {
			return err
		}
		if err := fn(n); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE notifications SET is_read = $2, read_at = $3 WHERE id = $1`,
			n.ID, n.Read, n.ReadAt); err != nil {
			return fmt.Errorf("update notification: %w", err)
		}
		updated = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a notification owned by customerID.
func (r *Repository) Delete(ctx context.Context, customerID string, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND customer_id = $2`, id, customerID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(s scanner) (*domain.Notification, error) {
	var n domain.Notification
	var readAt sql.NullTime
	err := s.Scan(&n.ID, &n.CustomerID, &n.OrderID, &n.OrderNumber, &n.Type, &n.Title, &n.Message,
		&n.Read, &n.CreatedAt, &readAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	if readAt.Valid {
		t := readAt.Time
		n.ReadAt = &t
	}
	return &n, nil
}
