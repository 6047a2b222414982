package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fjod/coffee_saga/internal/loyalty/domain"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
)

const membershipColumns = `id, customer_id, tier, points_balance, total_points_earned, total_points_redeemed,
	total_spent, visit_count, active, created_at, updated_at, last_visit_at`

const voucherColumns = `id, code, name, description, type, discount_value, discount_percentage, minimum_order_amount,
	maximum_discount_amount, usage_limit, used_count, active, valid_from, valid_until, created_at, updated_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateMembership(ctx context.Context, m *domain.Membership) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO loyalty_memberships (`+membershipColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		m.ID, m.CustomerID, m.Tier, m.PointsBalance, m.TotalPointsEarned, m.TotalPointsRedeemed,
		m.TotalSpent, m.VisitCount, m.Active, m.CreatedAt, m.UpdatedAt, m.LastVisitAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "loyalty_memberships_customer_id_key") {
			return domain.ErrMembershipExists
		}
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

func (r *Repository) GetMembership(ctx context.Context, customerID string) (*domain.Membership, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+membershipColumns+` FROM loyalty_memberships WHERE customer_id = $1`, customerID)
	return scanMembership(row)
}

func (r *Repository) UpdateMembership(ctx context.Context, customerID string, fn func(m *domain.Membership) (*domain.PointsTransaction, error)) (*domain.Membership, *domain.PointsTransaction, error) {
	var (
		updated *domain.Membership
		entry   *domain.PointsTransaction
	)
	err := postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+membershipColumns+` FROM loyalty_memberships WHERE customer_id = $1 FOR UPDATE`, customerID)
		m, err := scanMembership(row)
		if err != nil {
			return err
		}
		pt, err := fn(m)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `UPDATE loyalty_memberships SET tier = $2, points_balance = $3,
			total_points_earned = $4, total_points_redeemed = $5, total_spent = $6, visit_count = $7,
			active = $8, updated_at = $9, last_visit_at = $10 WHERE customer_id = $1`,
			m.CustomerID, m.Tier, m.PointsBalance, m.TotalPointsEarned, m.TotalPointsRedeemed, m.TotalSpent,
			m.VisitCount, m.Active, m.UpdatedAt, m.LastVisitAt)
		if err != nil {
			return fmt.Errorf("update membership: %w", err)
		}

		if pt != nil {
			_, err = tx.ExecContext(ctx, `INSERT INTO points_transactions
				(id, customer_id, type, points, order_id, amount, description, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				pt.ID, pt.CustomerID, pt.Type, pt.Points, nullString(pt.OrderID), pt.Amount, pt.Description, pt.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert points transaction: %w", err)
			}
		}
		updated, entry = m, pt
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return updated, entry, nil
}

func (r *Repository) ListPointsTransactions(ctx context.Context, customerID string, page postgres.Pagination) ([]*domain.PointsTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, customer_id, type, points, order_id, amount, description, created_at
		FROM points_transactions WHERE customer_id = $1
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, customerID, page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("query points transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]*domain.PointsTransaction, 0)
	for rows.Next() {
		var (
			pt      domain.PointsTransaction
			orderID sql.NullString
		)
		if err := rows.Scan(&pt.ID, &pt.CustomerID, &pt.Type, &pt.Points, &orderID, &pt.Amount, &pt.Description, &pt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan points transaction: %w", err)
		}
		pt.OrderID = orderID.String
		txs = append(txs, &pt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return txs, nil
}

func (r *Repository) SumPoints(ctx context.Context, customerID string) (int64, error) {
	var sum int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(points), 0) FROM points_transactions WHERE customer_id = $1`, customerID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum points: %w", err)
	}
	return sum, nil
}

func (r *Repository) CreateVoucher(ctx context.Context, v *domain.Voucher) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO vouchers (`+voucherColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		v.ID, v.Code, v.Name, v.Description, v.Type, v.DiscountValue, v.DiscountPercentage, v.MinimumOrderAmount,
		v.MaximumDiscountAmount, nullInt(v.UsageLimit), v.UsedCount, v.Active, v.ValidFrom, v.ValidUntil,
		v.CreatedAt, v.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "vouchers_code_key") {
			return domain.ErrVoucherCodeExists
		}
		return fmt.Errorf("insert voucher: %w", err)
	}
	return nil
}

func (r *Repository) GetVoucherByCode(ctx context.Context, code string) (*domain.Voucher, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE code = $1`, code)
	return scanVoucher(row)
}

func (r *Repository) ListAvailableVouchers(ctx context.Context, asOf time.Time) ([]*domain.Voucher, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+voucherColumns+` FROM vouchers
		WHERE active AND valid_from <= $1 AND valid_until >= $1
		  AND (usage_limit IS NULL OR used_count < usage_limit)
		ORDER BY valid_until, code`, asOf)
	if err != nil {
		return nil, fmt.Errorf("query available vouchers: %w", err)
	}
	defer rows.Close()

	vouchers := make([]*domain.Voucher, 0)
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		vouchers = append(vouchers, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return vouchers, nil
}

func (r *Repository) UseVoucher(ctx context.Context, code, customerID, orderID string, usedAt time.Time, check RedeemFunc) (*domain.Voucher, *domain.VoucherUsage, error) {
	var (
		voucher *domain.Voucher
		usage   *domain.VoucherUsage
	)
	err := postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE code = $1 FOR UPDATE`, code)
		v, err := scanVoucher(row)
		if err != nil {
			return err
		}

		var usedByOrder bool
		err = tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM voucher_usages WHERE voucher_id = $1 AND order_id = $2)`,
			v.ID, orderID).Scan(&usedByOrder)
		if err != nil {
			return fmt.Errorf("check voucher usage: %w", err)
		}
		if err := check(v, usedByOrder); err != nil {
			return err
		}

		u := &domain.VoucherUsage{
			ID:          uuid.New(),
			VoucherID:   v.ID,
			VoucherCode: v.Code,
			CustomerID:  customerID,
			OrderID:     orderID,
			UsedAt:      usedAt,
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO voucher_usages (id, voucher_id, customer_id, order_id, used_at)
			VALUES ($1, $2, $3, $4, $5)`, u.ID, u.VoucherID, u.CustomerID, u.OrderID, u.UsedAt)
		if err != nil {
			if postgres.IsUniqueViolation(err, "voucher_usages_voucher_order_key") {
				return domain.ErrVoucherAlreadyUsed
			}
			return fmt.Errorf("insert voucher usage: %w", err)
		}

		err = tx.QueryRowContext(ctx, `UPDATE vouchers SET used_count = used_count + 1, updated_at = $2
			WHERE id = $1 RETURNING used_count`, v.ID, usedAt).Scan(&v.UsedCount)
		if err != nil {
			return fmt.Errorf("increment voucher usage: %w", err)
		}
		v.UpdatedAt = usedAt
		voucher, usage = v, u
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return voucher, usage, nil
}

func (r *Repository) ReleaseVoucher(ctx context.Context, code, orderID string, releasedAt time.Time) (bool, error) {
	var released bool
	err := postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var voucherID uuid.UUID
		err := tx.QueryRowContext(ctx, `SELECT id FROM vouchers WHERE code = $1 FOR UPDATE`, code).Scan(&voucherID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrVoucherNotFound
		}
		if err != nil {
			return fmt.Errorf("lock voucher: %w", err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM voucher_usages WHERE voucher_id = $1 AND order_id = $2`, voucherID, orderID)
		if err != nil {
			return fmt.Errorf("delete voucher usage: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete voucher usage: %w", err)
		}
		if n == 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx, `UPDATE vouchers SET used_count = used_count - 1, updated_at = $2
			WHERE id = $1 AND used_count > 0`, voucherID, releasedAt)
		if err != nil {
			return fmt.Errorf("decrement voucher usage: %w", err)
		}
		released = true
		return nil
	})
	return released, err
}

func (r *Repository) ListVoucherUsages(ctx context.Context, voucherID uuid.UUID) ([]*domain.VoucherUsage, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT u.id, u.voucher_id, v.code, u.customer_id, u.order_id, u.used_at
		FROM voucher_usages u JOIN vouchers v ON v.id = u.voucher_id
		WHERE u.voucher_id = $1 ORDER BY u.used_at, u.id`, voucherID)
	if err != nil {
		return nil, fmt.Errorf("query voucher usages: %w", err)
	}
	defer rows.Close()

	usages := make([]*domain.VoucherUsage, 0)
	for rows.Next() {
		var u domain.VoucherUsage
		if err := rows.Scan(&u.ID, &u.VoucherID, &u.VoucherCode, &u.CustomerID, &u.OrderID, &u.UsedAt); err != nil {
			return nil, fmt.Errorf("scan voucher usage: %w", err)
		}
		usages = append(usages, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return usages, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMembership(s scanner) (*domain.Membership, error) {
	var m domain.Membership
	err := s.Scan(&m.ID, &m.CustomerID, &m.Tier, &m.PointsBalance, &m.TotalPointsEarned, &m.TotalPointsRedeemed,
		&m.TotalSpent, &m.VisitCount, &m.Active, &m.CreatedAt, &m.UpdatedAt, &m.LastVisitAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan membership: %w", err)
	}
	return &m, nil
}

func scanVoucher(s scanner) (*domain.Voucher, error) {
	var (
		v     domain.Voucher
		limit sql.NullInt64
	)
	err := s.Scan(&v.ID, &v.Code, &v.Name, &v.Description, &v.Type, &v.DiscountValue, &v.DiscountPercentage,
		&v.MinimumOrderAmount, &v.MaximumDiscountAmount, &limit, &v.UsedCount, &v.Active, &v.ValidFrom,
		&v.ValidUntil, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrVoucherNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan voucher: %w", err)
	}
	if limit.Valid {
		n := int(limit.Int64)
		v.UsageLimit = &n
	}
	return &v, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
