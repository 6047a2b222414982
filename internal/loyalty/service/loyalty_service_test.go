package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/coffee_saga/internal/loyalty/domain"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
	"github.com/fjod/coffee_saga/pkg/logger"
)

var fixedNow = time.Date(2026, 7, 20, 10, 0, 0, 0, time.UTC)

func newTestService() (*LoyaltyService, *mockRepository) {
	repo := newMockRepository()
	svc := NewLoyaltyService(repo, logger.Discard(), nil)
	svc.now = func() time.Time { return fixedNow }
	return svc, repo
}

func mustVoucher(t *testing.T, svc *LoyaltyService, v *domain.Voucher) *domain.Voucher {
	if v.ValidFrom.IsZero() {
		v.ValidFrom = fixedNow.Add(-time.Hour)
		v.ValidUntil = fixedNow.Add(time.Hour)
	}
	created, err := svc.CreateVoucher(context.Background(), v)
	require.NoError(t, err)
	return created
}

func limitOf(n int) *int { return &n }

func TestCreateMembership(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	m, err := svc.CreateMembership(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierBronze, m.Tier)
	assert.Zero(t, m.PointsBalance)
	assert.Zero(t, m.TotalPointsEarned)
	assert.Zero(t, m.VisitCount)
	assert.True(t, m.TotalSpent.IsZero())

	_, err = svc.CreateMembership(ctx, "c1")
	assert.ErrorIs(t, err, domain.ErrMembershipExists)

	got, err := svc.GetMembership(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
}

func TestEarnPoints_PlatinumScenario(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, err := svc.CreateMembership(ctx, "c1")
	require.NoError(t, err)

	m, err := svc.EarnPoints(ctx, "c1", "order-1", decimal.NewFromInt(10000), "")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), m.PointsBalance)
	assert.Equal(t, int64(10000), m.TotalPointsEarned)
	assert.Equal(t, domain.TierPlatinum, m.Tier)

	history, err := svc.GetPointsHistory(ctx, "c1", postgres.Pagination{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(10000), history[0].Points)
	assert.Equal(t, "order-1", history[0].OrderID)
}

func TestEarnPoints_RequiresMembership(t *testing.T) {
	svc, repo := newTestService()
	_, err := svc.EarnPoints(context.Background(), "ghost", "o", decimal.NewFromInt(5), "")
	assert.ErrorIs(t, err, domain.ErrMembershipNotFound)
	assert.Empty(t, repo.ledger)
}

func TestRedeemPoints_Boundary(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	_, err := svc.CreateMembership(ctx, "c1")
	require.NoError(t, err)
	_, err = svc.EarnPoints(ctx, "c1", "order-1", decimal.NewFromInt(250), "")
	require.NoError(t, err)

	_, err = svc.RedeemPoints(ctx, "c1", 251, "")
	assert.ErrorIs(t, err, domain.ErrInsufficientPoints)
	m, err := svc.GetMembership(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(250), m.PointsBalance)
	assert.Len(t, repo.ledger, 1)

	m, err = svc.RedeemPoints(ctx, "c1", 250, "pastry")
	require.NoError(t, err)
	assert.Zero(t, m.PointsBalance)
	assert.Equal(t, domain.TierBronze, m.Tier)

	audit, err := svc.AuditLedger(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, audit.Consistent)
	assert.Zero(t, audit.LedgerSum)
}

func TestAuditLedger_DetectsDrift(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	_, err := svc.CreateMembership(ctx, "c1")
	require.NoError(t, err)
	_, err = svc.EarnPoints(ctx, "c1", "", decimal.NewFromInt(100), "")
	require.NoError(t, err)

	drifted := int64(90)
	repo.sumOverride = &drifted
	audit, err := svc.AuditLedger(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, audit.Consistent)
	assert.Equal(t, int64(100), audit.PointsBalance)
	assert.Equal(t, int64(90), audit.LedgerSum)

	_, err = svc.AuditLedger(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrMembershipNotFound)
}

func TestGetPointsHistory_UnknownMember(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.GetPointsHistory(context.Background(), "ghost", postgres.Pagination{})
	assert.ErrorIs(t, err, domain.ErrMembershipNotFound)
}

func TestVoucherLimitScenario(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	mustVoucher(t, svc, &domain.Voucher{Code: "ONCE", Type: domain.VoucherFixedAmount, DiscountValue: decimal.NewFromInt(2), UsageLimit: limitOf(1)})

	usage, err := svc.UseVoucher(ctx, "ONCE", "c1", "order-A")
	require.NoError(t, err)
	assert.Equal(t, "order-A", usage.OrderID)

	v, err := svc.GetVoucherByCode(ctx, "ONCE")
	require.NoError(t, err)
	assert.Equal(t, 1, v.UsedCount)

	_, err = svc.UseVoucher(ctx, "ONCE", "c1", "order-A")
	assert.ErrorIs(t, err, domain.ErrVoucherAlreadyUsed)

	_, err = svc.UseVoucher(ctx, "ONCE", "c2", "order-B")
	assert.ErrorIs(t, err, domain.ErrVoucherLimitExceeded)

	v, err = svc.GetVoucherByCode(ctx, "ONCE")
	require.NoError(t, err)
	assert.Equal(t, 1, v.UsedCount)
}

func TestUseVoucher_Rejections(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	_, err := svc.UseVoucher(ctx, "NOPE", "c1", "o")
	assert.ErrorIs(t, err, domain.ErrVoucherNotFound)

	expired := mustVoucher(t, svc, &domain.Voucher{
		Code: "OLD", Type: domain.VoucherFreeItem,
		ValidFrom: fixedNow.AddDate(0, -2, 0), ValidUntil: fixedNow.AddDate(0, -1, 0),
	})
	_, err = svc.UseVoucher(ctx, expired.Code, "c1", "o")
	assert.ErrorIs(t, err, domain.ErrVoucherExpired)

	inactive := mustVoucher(t, svc, &domain.Voucher{Code: "OFF", Type: domain.VoucherFreeItem})
	v := repo.vouchers[inactive.Code]
	v.Active = false
	repo.vouchers[inactive.Code] = v
	_, err = svc.UseVoucher(ctx, "OFF", "c1", "o")
	assert.ErrorIs(t, err, domain.ErrVoucherInactive)
}

func TestUseVoucher_ConcurrentSameOrder(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	v := mustVoucher(t, svc, &domain.Voucher{Code: "RACE", Type: domain.VoucherFixedAmount, DiscountValue: decimal.NewFromInt(1)})

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.UseVoucher(ctx, "RACE", "c1", "order-A")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, dup int
	for err := range results {
		switch {
		case err == nil:
			ok++
		default:
			assert.ErrorIs(t, err, domain.ErrVoucherAlreadyUsed)
			dup++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, dup)

	usages, err := repo.ListVoucherUsages(ctx, v.ID)
	require.NoError(t, err)
	assert.Len(t, usages, 1)
	assert.Equal(t, 1, repo.vouchers["RACE"].UsedCount)
}

func TestGetAvailableVouchers(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	mustVoucher(t, svc, &domain.Voucher{Code: "A", Type: domain.VoucherFreeItem})
	mustVoucher(t, svc, &domain.Voucher{Code: "B", Type: domain.VoucherFreeItem, UsageLimit: limitOf(1)})
	mustVoucher(t, svc, &domain.Voucher{
		Code: "LATER", Type: domain.VoucherFreeItem,
		ValidFrom: fixedNow.Add(time.Hour), ValidUntil: fixedNow.Add(2 * time.Hour),
	})

	_, err := svc.UseVoucher(ctx, "B", "c1", "o1")
	require.NoError(t, err)

	available, err := svc.GetAvailableVouchers(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, "A", available[0].Code)
}

func TestCreateVoucher_Validation(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.CreateVoucher(context.Background(), &domain.Voucher{Code: "X", Type: domain.VoucherPercentage})
	assert.ErrorIs(t, err, domain.ErrInvalidVoucher)

	mustVoucher(t, svc, &domain.Voucher{Code: "DUP", Type: domain.VoucherFreeItem})
	_, err = svc.CreateVoucher(context.Background(), &domain.Voucher{Code: "DUP", Type: domain.VoucherFreeItem})
	assert.ErrorIs(t, err, domain.ErrVoucherCodeExists)
}

func TestRedeemVoucher(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	mustVoucher(t, svc, &domain.Voucher{
		Code: "TENOFF", Type: domain.VoucherPercentage, DiscountPercentage: decimal.NewFromInt(10),
		MinimumOrderAmount: decimal.NewFromInt(10), MaximumDiscountAmount: decimal.NewNullDecimal(decimal.NewFromInt(3)),
	})

	_, err := svc.RedeemVoucher(ctx, "TENOFF", "c1", "order-small", decimal.RequireFromString("9.99"), nil)
	assert.ErrorIs(t, err, domain.ErrVoucherMinimumNotMet)
	assert.Empty(t, repo.usages)

	discount, err := svc.RedeemVoucher(ctx, "TENOFF", "c1", "order-1", decimal.RequireFromString("24.00"), nil)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2.40").Equal(discount))

	discount, err = svc.RedeemVoucher(ctx, "TENOFF", "c1", "order-2", decimal.RequireFromString("80.00"), nil)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3).Equal(discount))

	_, err = svc.RedeemVoucher(ctx, "TENOFF", "c1", "order-1", decimal.RequireFromString("24.00"), nil)
	assert.ErrorIs(t, err, domain.ErrVoucherAlreadyUsed)
	assert.Len(t, repo.usages, 2)
}

func TestReleaseVoucher(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	limit := 1
	mustVoucher(t, svc, &domain.Voucher{Code: "ONCE", Type: domain.VoucherFixedAmount, DiscountValue: decimal.NewFromInt(2), UsageLimit: &limit})

	_, err := svc.RedeemVoucher(ctx, "ONCE", "c1", "order-1", decimal.NewFromInt(20), nil)
	require.NoError(t, err)
	_, err = svc.RedeemVoucher(ctx, "ONCE", "c2", "order-2", decimal.NewFromInt(20), nil)
	require.ErrorIs(t, err, domain.ErrVoucherLimitExceeded)

	require.NoError(t, svc.ReleaseVoucher(ctx, "ONCE", "order-1"))
	assert.Empty(t, repo.usages)
	assert.Zero(t, repo.vouchers["ONCE"].UsedCount)

	// releasing again changes nothing
	require.NoError(t, svc.ReleaseVoucher(ctx, "ONCE", "order-1"))
	assert.Zero(t, repo.vouchers["ONCE"].UsedCount)

	_, err = svc.RedeemVoucher(ctx, "ONCE", "c2", "order-2", decimal.NewFromInt(20), nil)
	assert.NoError(t, err)

	assert.ErrorIs(t, svc.ReleaseVoucher(ctx, "NOPE", "order-2"), domain.ErrVoucherNotFound)
}

func TestCalculateDiscount_DoesNotConsume(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	mustVoucher(t, svc, &domain.Voucher{Code: "FREE", Type: domain.VoucherFreeItem})

	discount, err := svc.CalculateDiscount(ctx, "FREE", decimal.RequireFromString("9.00"),
		[]decimal.Decimal{decimal.RequireFromString("4.00"), decimal.RequireFromString("1.50")})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1.50").Equal(discount))
	assert.Empty(t, repo.usages)
	assert.Zero(t, repo.vouchers["FREE"].UsedCount)
}
