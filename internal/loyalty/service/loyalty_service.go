package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fjod/coffee_saga/internal/apperr"
	"github.com/fjod/coffee_saga/internal/loyalty/domain"
	"github.com/fjod/coffee_saga/internal/loyalty/repository"
	"github.com/fjod/coffee_saga/internal/metrics"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
)

var tracer = otel.Tracer("github.com/fjod/coffee_saga/internal/loyalty/service")

// LedgerAudit compares the cached balance with the ledger it is derived from.
type LedgerAudit struct {
	CustomerID    string `json:"customer_id"`
	PointsBalance int64  `json:"points_balance"`
	LedgerSum     int64  `json:"ledger_sum"`
	Consistent    bool   `json:"consistent"`
}

type LoyaltyService struct {
	repo    repository.LoyaltyRepository
	log     *slog.Logger
	metrics *metrics.Domain
	now     func() time.Time
}

func NewLoyaltyService(repo repository.LoyaltyRepository, log *slog.Logger, m *metrics.Domain) *LoyaltyService {
	return &LoyaltyService{
		repo:    repo,
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

func (s *LoyaltyService) CreateMembership(ctx context.Context, customerID string) (*domain.Membership, error) {
	m := domain.NewMembership(customerID, s.now().UTC())
	if err := s.repo.CreateMembership(ctx, m); err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "loyalty membership created", slog.String("customer_id", customerID))
	return m, nil
}

func (s *LoyaltyService) GetMembership(ctx context.Context, customerID string) (*domain.Membership, error) {
	return s.repo.GetMembership(ctx, customerID)
}

func (s *LoyaltyService) EarnPoints(ctx context.Context, customerID, orderID string, amount decimal.Decimal, description string) (*domain.Membership, error) {
	ctx, span := tracer.Start(ctx, "LoyaltyService.EarnPoints")
	defer span.End()
	span.SetAttributes(attribute.String("customer_id", customerID), attribute.String("order_id", orderID))

	var previous domain.Tier
	m, entry, err := s.repo.UpdateMembership(ctx, customerID, func(m *domain.Membership) (*domain.PointsTransaction, error) {
		previous = m.Tier
		return m.Earn(orderID, amount, description, s.now().UTC())
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PointsEarned(entry.Points)
	if m.Tier != previous {
		s.log.InfoContext(ctx, "membership tier upgraded",
			slog.String("customer_id", customerID),
			slog.String("from", string(previous)),
			slog.String("to", string(m.Tier)))
	}
	s.log.InfoContext(ctx, "points earned",
		slog.String("customer_id", customerID),
		slog.Int64("points", entry.Points),
		slog.Int64("balance", m.PointsBalance))
	return m, nil
}

func (s *LoyaltyService) RedeemPoints(ctx context.Context, customerID string, points int64, description string) (*domain.Membership, error) {
	m, entry, err := s.repo.UpdateMembership(ctx, customerID, func(m *domain.Membership) (*domain.PointsTransaction, error) {
		return m.Redeem(points, description, s.now().UTC())
	})
	if err != nil {
		return nil, err
	}
	s.metrics.PointsRedeemed(-entry.Points)
	s.log.InfoContext(ctx, "points redeemed",
		slog.String("customer_id", customerID),
		slog.Int64("points", points),
		slog.Int64("balance", m.PointsBalance))
	return m, nil
}

func (s *LoyaltyService) GetPointsHistory(ctx context.Context, customerID string, page postgres.Pagination) ([]*domain.PointsTransaction, error) {
	if _, err := s.repo.GetMembership(ctx, customerID); err != nil {
		return nil, err
	}
	return s.repo.ListPointsTransactions(ctx, customerID, page)
}

// AuditLedger recomputes the balance from the points ledger.
func (s *LoyaltyService) AuditLedger(ctx context.Context, customerID string) (*LedgerAudit, error) {
	m, err := s.repo.GetMembership(ctx, customerID)
	if err != nil {
		return nil, err
	}
	sum, err := s.repo.SumPoints(ctx, customerID)
	if err != nil {
		return nil, err
	}
	audit := &LedgerAudit{
		CustomerID:    customerID,
		PointsBalance: m.PointsBalance,
		LedgerSum:     sum,
		Consistent:    sum == m.PointsBalance,
	}
	if !audit.Consistent {
		s.log.ErrorContext(ctx, "points balance diverged from ledger",
			slog.String("customer_id", customerID),
			slog.Int64("balance", m.PointsBalance),
			slog.Int64("ledger_sum", sum))
	}
	return audit, nil
}

func (s *LoyaltyService) CreateVoucher(ctx context.Context, v *domain.Voucher) (*domain.Voucher, error) {
	if err := v.Prepare(s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.repo.CreateVoucher(ctx, v); err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "voucher created", slog.String("code", v.Code), slog.String("type", string(v.Type)))
	return v, nil
}

func (s *LoyaltyService) GetVoucherByCode(ctx context.Context, code string) (*domain.Voucher, error) {
	return s.repo.GetVoucherByCode(ctx, code)
}

func (s *LoyaltyService) GetAvailableVouchers(ctx context.Context) ([]*domain.Voucher, error) {
	return s.repo.ListAvailableVouchers(ctx, s.now().UTC())
}

// UseVoucher records one use of code for the order.
func (s *LoyaltyService) UseVoucher(ctx context.Context, code, customerID, orderID string) (*domain.VoucherUsage, error) {
	now := s.now().UTC()
	_, usage, err := s.repo.UseVoucher(ctx, code, customerID, orderID, now, func(v *domain.Voucher, usedByOrder bool) error {
		return v.CheckRedeemable(now, usedByOrder)
	})
	s.recordRedemption(ctx, code, orderID, err)
	if err != nil {
		return nil, err
	}
	return usage, nil
}

// CalculateDiscount prices a voucher without using it.
func (s *LoyaltyService) CalculateDiscount(ctx context.Context, code string, subtotal decimal.Decimal, unitPrices []decimal.Decimal) (decimal.Decimal, error) {
	v, err := s.repo.GetVoucherByCode(ctx, code)
	if err != nil {
		return decimal.Zero, err
	}
	if err := v.CheckRedeemable(s.now().UTC(), false); err != nil {
		return decimal.Zero, err
	}
	return v.CalculateDiscount(subtotal, unitPrices)
}

// RedeemVoucher uses the voucher for the order and returns the discount it grants.
// The minimum order amount is checked under the same lock, so a rejected order
// does not consume the voucher.
func (s *LoyaltyService) RedeemVoucher(ctx context.Context, code, customerID, orderID string, subtotal decimal.Decimal, unitPrices []decimal.Decimal) (decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "LoyaltyService.RedeemVoucher")
	defer span.End()
	span.SetAttributes(attribute.String("voucher_code", code), attribute.String("order_id", orderID))

	now := s.now().UTC()
	var discount decimal.Decimal
	_, _, err := s.repo.UseVoucher(ctx, code, customerID, orderID, now, func(v *domain.Voucher, usedByOrder bool) error {
		if err := v.CheckRedeemable(now, usedByOrder); err != nil {
			return err
		}
		d, err := v.CalculateDiscount(subtotal, unitPrices)
		if err != nil {
			return err
		}
		discount = d
		return nil
	})
	s.recordRedemption(ctx, code, orderID, err)
	if err != nil {
		return decimal.Zero, err
	}
	return discount, nil
}

// ReleaseVoucher gives back the use of code recorded for the order. Releasing
// an order that holds no usage is a no-op.
func (s *LoyaltyService) ReleaseVoucher(ctx context.Context, code, orderID string) error {
	released, err := s.repo.ReleaseVoucher(ctx, code, orderID, s.now().UTC())
	if err != nil {
		s.log.ErrorContext(ctx, "voucher release failed",
			slog.String("code", code),
			slog.String("order_id", orderID),
			slog.String("error", err.Error()))
		return err
	}
	if released {
		s.metrics.VoucherRedemption("released")
		s.log.InfoContext(ctx, "voucher released", slog.String("code", code), slog.String("order_id", orderID))
	}
	return nil
}

func (s *LoyaltyService) recordRedemption(ctx context.Context, code, orderID string, err error) {
	if err == nil {
		s.metrics.VoucherRedemption("used")
		s.log.InfoContext(ctx, "voucher used", slog.String("code", code), slog.String("order_id", orderID))
		return
	}
	outcome := apperr.CodeOf(err)
	s.metrics.VoucherRedemption(outcome)
	if apperr.KindOf(err).IsClientError() {
		s.log.InfoContext(ctx, "voucher rejected",
			slog.String("code", code),
			slog.String("order_id", orderID),
			slog.String("reason", outcome))
		return
	}
	s.log.ErrorContext(ctx, "voucher redemption failed",
		slog.String("code", code),
		slog.String("order_id", orderID),
		slog.String("error", err.Error()))
}
