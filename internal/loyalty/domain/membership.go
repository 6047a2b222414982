package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fjod/coffee_saga/internal/apperr"
)

var (
	ErrMembershipExists   = apperr.New(apperr.Conflict, "MEMBERSHIP_EXISTS", "customer already has a loyalty membership")
	ErrMembershipNotFound = apperr.New(apperr.NotFound, "MEMBERSHIP_NOT_FOUND", "membership not found")
	ErrInsufficientPoints = apperr.New(apperr.InsufficientResource, "INSUFFICIENT_POINTS", "insufficient points balance")
	ErrInvalidPoints      = apperr.New(apperr.ValidationFailed, "INVALID_POINTS", "points must be positive")
	ErrInvalidAmount      = apperr.New(apperr.ValidationFailed, "INVALID_AMOUNT", "amount must be positive")
)

type Tier string

const (
	TierBronze   Tier = "BRONZE"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
)

type tierRule struct {
	tier       Tier
	threshold  int64
	multiplier decimal.Decimal
}

// highest threshold first
var tierRules = []tierRule{
	{TierPlatinum, 10000, decimal.RequireFromString("0.05")},
	{TierGold, 5000, decimal.RequireFromString("0.03")},
	{TierSilver, 1000, decimal.RequireFromString("0.02")},
	{TierBronze, 0, decimal.RequireFromString("0.01")},
}

// TierFor maps lifetime earned points to a tier.
func TierFor(totalPointsEarned int64) Tier {
	for _, r := range tierRules {
		if totalPointsEarned >= r.threshold {
			return r.tier
		}
	}
	return TierBronze
}

func (t Tier) Multiplier() decimal.Decimal {
	for _, r := range tierRules {
		if r.tier == t {
			return r.multiplier
		}
	}
	return tierRules[len(tierRules)-1].multiplier
}

func (t Tier) RequiredPoints() int64 {
	for _, r := range tierRules {
		if r.tier == t {
			return r.threshold
		}
	}
	return 0
}

// PointsFor is floor(amount x multiplier x 100).
func PointsFor(amount decimal.Decimal, tier Tier) int64 {
	return amount.Mul(tier.Multiplier()).Mul(decimal.NewFromInt(100)).Floor().IntPart()
}

type TransactionType string

const (
	TransactionEarned   TransactionType = "EARNED"
	TransactionRedeemed TransactionType = "REDEEMED"
	TransactionExpired  TransactionType = "EXPIRED"
	TransactionAdjusted TransactionType = "ADJUSTED"
)

// PointsTransaction is an append-only ledger entry. Points is signed.
type PointsTransaction struct {
	ID          uuid.UUID
	CustomerID  string
	Type        TransactionType
	Points      int64
	OrderID     string
	Amount      decimal.NullDecimal
	Description string
	CreatedAt   time.Time
}

type Membership struct {
	ID                  uuid.UUID
	CustomerID          string
	Tier                Tier
	PointsBalance       int64
	TotalPointsEarned   int64
	TotalPointsRedeemed int64
	TotalSpent          decimal.Decimal
	VisitCount          int
	Active              bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
	LastVisitAt         *time.Time
}

func NewMembership(customerID string, now time.Time) *Membership {
	return &Membership{
		ID:         uuid.New(),
		CustomerID: customerID,
		Tier:       TierBronze,
		TotalSpent: decimal.Zero,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Earn credits points for a purchase at the current tier's rate and
// re-evaluates the tier from the new lifetime total.
func (m *Membership) Earn(orderID string, amount decimal.Decimal, description string, now time.Time) (*PointsTransaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	points := PointsFor(amount, m.Tier)

	m.PointsBalance += points
	m.TotalPointsEarned += points
	m.TotalSpent = m.TotalSpent.Add(amount)
	m.VisitCount++
	m.LastVisitAt = &now
	m.UpdatedAt = now
	m.Tier = TierFor(m.TotalPointsEarned)

	if description == "" {
		description = "Points earned from purchase"
	}
	return &PointsTransaction{
		ID:          uuid.New(),
		CustomerID:  m.CustomerID,
		Type:        TransactionEarned,
		Points:      points,
		OrderID:     orderID,
		Amount:      decimal.NewNullDecimal(amount),
		Description: description,
		CreatedAt:   now,
	}, nil
}

// Redeem debits points. The tier is left alone.
func (m *Membership) Redeem(points int64, description string, now time.Time) (*PointsTransaction, error) {
	if points <= 0 {
		return nil, ErrInvalidPoints
	}
	if points > m.PointsBalance {
		return nil, ErrInsufficientPoints.WithMessage(fmt.Sprintf("balance %d is less than %d", m.PointsBalance, points))
	}

	m.PointsBalance -= points
	m.TotalPointsRedeemed += points
	m.UpdatedAt = now

	if description == "" {
		description = "Points redeemed"
	}
	return &PointsTransaction{
		ID:          uuid.New(),
		CustomerID:  m.CustomerID,
		Type:        TransactionRedeemed,
		Points:      -points,
		Description: description,
		CreatedAt:   now,
	}, nil
}
