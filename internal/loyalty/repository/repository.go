package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fjod/coffee_saga/internal/loyalty/domain"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
)

const MigrationsTable = "loyalty_schema_migrations"

// RedeemFunc decides whether the locked voucher may be used by the order.
// usedByOrder reports an existing usage for the same order.
type RedeemFunc func(v *domain.Voucher, usedByOrder bool) error

type LoyaltyRepository interface {
	CreateMembership(ctx context.Context, m *domain.Membership) error
	GetMembership(ctx context.Context, customerID string) (*domain.Membership, error)
	// UpdateMembership locks the membership, applies fn and stores the changed
	// membership together with the ledger entry fn returns.
	UpdateMembership(ctx context.Context, customerID string, fn func(m *domain.Membership) (*domain.PointsTransaction, error)) (*domain.Membership, *domain.PointsTransaction, error)
	ListPointsTransactions(ctx context.Context, customerID string, page postgres.Pagination) ([]*domain.PointsTransaction, error)
	SumPoints(ctx context.Context, customerID string) (int64, error)

	CreateVoucher(ctx context.Context, v *domain.Voucher) error
	GetVoucherByCode(ctx context.Context, code string) (*domain.Voucher, error)
	ListAvailableVouchers(ctx context.Context, asOf time.Time) ([]*domain.Voucher, error)
	// UseVoucher locks the voucher, runs check and records the usage with the
	// used_count increment in one transaction.
	UseVoucher(ctx context.Context, code, customerID, orderID string, usedAt time.Time, check RedeemFunc) (*domain.Voucher, *domain.VoucherUsage, error)
	// ReleaseVoucher deletes the usage of code by the order and gives the use back.
	// It reports false when the order had no usage to release.
	ReleaseVoucher(ctx context.Context, code, orderID string, releasedAt time.Time) (bool, error)
	ListVoucherUsages(ctx context.Context, voucherID uuid.UUID) ([]*domain.VoucherUsage, error)
}
