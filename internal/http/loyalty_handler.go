package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	loyaltydomain "github.com/fjod/coffee_saga/internal/loyalty/domain"
	loyaltyservice "github.com/fjod/coffee_saga/internal/loyalty/service"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
)

type LoyaltyService interface {
	CreateMembership(ctx context.Context, customerID string) (*loyaltydomain.Membership, error)
	GetMembership(ctx context.Context, customerID string) (*loyaltydomain.Membership, error)
	EarnPoints(ctx context.Context, customerID, orderID string, amount decimal.Decimal, description string) (*loyaltydomain.Membership, error)
	RedeemPoints(ctx context.Context, customerID string, points int64, description string) (*loyaltydomain.Membership, error)
	GetPointsHistory(ctx context.Context, customerID string, page postgres.Pagination) ([]*loyaltydomain.PointsTransaction, error)
	AuditLedger(ctx context.Context, customerID string) (*loyaltyservice.LedgerAudit, error)
	CreateVoucher(ctx context.Context, v *loyaltydomain.Voucher) (*loyaltydomain.Voucher, error)
	GetVoucherByCode(ctx context.Context, code string) (*loyaltydomain.Voucher, error)
	GetAvailableVouchers(ctx context.Context) ([]*loyaltydomain.Voucher, error)
	UseVoucher(ctx context.Context, code, customerID, orderID string) (*loyaltydomain.VoucherUsage, error)
	CalculateDiscount(ctx context.Context, code string, subtotal decimal.Decimal, unitPrices []decimal.Decimal) (decimal.Decimal, error)
}

type LoyaltyHandler struct {
	loyalty LoyaltyService
	timeout time.Duration
	log     *slog.Logger
}

func NewLoyaltyHandler(loyalty LoyaltyService, timeout time.Duration, log *slog.Logger) *LoyaltyHandler {
	return &LoyaltyHandler{loyalty: loyalty, timeout: timeout, log: log}
}

type MembershipResponseDTO struct {
	CustomerID          string          `json:"customer_id"`
	Tier                string          `json:"tier"`
	PointsBalance       int64           `json:"points_balance"`
	TotalPointsEarned   int64           `json:"total_points_earned"`
	TotalPointsRedeemed int64           `json:"total_points_redeemed"`
	TotalSpent          decimal.Decimal `json:"total_spent"`
	VisitCount          int             `json:"visit_count"`
	Active              bool            `json:"active"`
	CreatedAt           time.Time       `json:"created_at"`
	LastVisitAt         *time.Time      `json:"last_visit_at,omitempty"`
}

type PointsTransactionDTO struct {
	ID          string              `json:"id"`
	Type        string              `json:"type"`
	Points      int64               `json:"points"`
	OrderID     string              `json:"order_id,omitempty"`
	Amount      decimal.NullDecimal `json:"amount"`
	Description string              `json:"description,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

type EarnPointsRequestDTO struct {
	OrderID     string          `json:"order_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type RedeemPointsRequestDTO struct {
	Points      int64  `json:"points"`
	Description string `json:"description"`
}

type VoucherDTO struct {
	Code                  string              `json:"code"`
	Name                  string              `json:"name"`
	Description           string              `json:"description,omitempty"`
	Type                  string              `json:"voucher_type"`
	DiscountValue         decimal.Decimal     `json:"discount_value"`
	DiscountPercentage    decimal.Decimal     `json:"discount_percentage"`
	MinimumOrderAmount    decimal.Decimal     `json:"minimum_order_amount"`
	MaximumDiscountAmount decimal.NullDecimal `json:"maximum_discount_amount"`
	UsageLimit            *int                `json:"usage_limit"`
	UsedCount             int                 `json:"used_count"`
	Active                bool                `json:"active"`
	ValidFrom             time.Time           `json:"valid_from"`
	ValidUntil            time.Time           `json:"valid_until"`
}

type CreateVoucherRequestDTO struct {
	Code                  string              `json:"code"`
	Name                  string              `json:"name"`
	Description           string              `json:"description"`
	Type                  string              `json:"voucher_type"`
	DiscountValue         decimal.Decimal     `json:"discount_value"`
	DiscountPercentage    decimal.Decimal     `json:"discount_percentage"`
	MinimumOrderAmount    decimal.Decimal     `json:"minimum_order_amount"`
	MaximumDiscountAmount decimal.NullDecimal `json:"maximum_discount_amount"`
	UsageLimit            *int                `json:"usage_limit"`
	ValidFrom             *time.Time          `json:"valid_from"`
	ValidUntil            *time.Time          `json:"valid_until"`
}

type UseVoucherRequestDTO struct {
	CustomerID string `json:"customer_id"`
	OrderID    string `json:"order_id"`
}

type VoucherUsageDTO struct {
	VoucherCode string    `json:"voucher_code"`
	CustomerID  string    `json:"customer_id"`
	OrderID     string    `json:"order_id"`
	UsedAt      time.Time `json:"used_at"`
}

type CalculateDiscountRequestDTO struct {
	Subtotal   decimal.Decimal   `json:"subtotal"`
	UnitPrices []decimal.Decimal `json:"unit_prices"`
}

type DiscountResponseDTO struct {
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
}

func toMembershipDTO(m *loyaltydomain.Membership) MembershipResponseDTO {
	return MembershipResponseDTO{
		CustomerID:          m.CustomerID,
		Tier:                string(m.Tier),
		PointsBalance:       m.PointsBalance,
		TotalPointsEarned:   m.TotalPointsEarned,
		TotalPointsRedeemed: m.TotalPointsRedeemed,
		TotalSpent:          m.TotalSpent,
		VisitCount:          m.VisitCount,
		Active:              m.Active,
		CreatedAt:           m.CreatedAt,
		LastVisitAt:         m.LastVisitAt,
	}
}

func toVoucherDTO(v *loyaltydomain.Voucher) VoucherDTO {
	return VoucherDTO{
		Code:                  v.Code,
		Name:                  v.Name,
		Description:           v.Description,
		Type:                  string(v.Type),
		DiscountValue:         v.DiscountValue,
		DiscountPercentage:    v.DiscountPercentage,
		MinimumOrderAmount:    v.MinimumOrderAmount,
		MaximumDiscountAmount: v.MaximumDiscountAmount,
		UsageLimit:            v.UsageLimit,
		UsedCount:             v.UsedCount,
		Active:                v.Active,
		ValidFrom:             v.ValidFrom,
		ValidUntil:            v.ValidUntil,
	}
}

func (d CreateVoucherRequestDTO) toDomain() *loyaltydomain.Voucher {
	v := &loyaltydomain.Voucher{
		Code:                  d.Code,
		Name:                  d.Name,
		Description:           d.Description,
		Type:                  loyaltydomain.VoucherType(strings.ToUpper(d.Type)),
		DiscountValue:         d.DiscountValue,
		DiscountPercentage:    d.DiscountPercentage,
		MinimumOrderAmount:    d.MinimumOrderAmount,
		MaximumDiscountAmount: d.MaximumDiscountAmount,
		UsageLimit:            d.UsageLimit,
	}
	if d.ValidFrom != nil {
		v.ValidFrom = *d.ValidFrom
	}
	if d.ValidUntil != nil {
		v.ValidUntil = *d.ValidUntil
	}
	return v
}

// POST /api/v1/loyalty/membership
func (h *LoyaltyHandler) CreateMembership(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	m, err := h.loyalty.CreateMembership(ctx, getCustomerID(r.Context()))
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, toMembershipDTO(m))
}

// GET /api/v1/loyalty/membership
func (h *LoyaltyHandler) GetMembership(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	m, err := h.loyalty.GetMembership(ctx, getCustomerID(r.Context()))
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toMembershipDTO(m))
}

// POST /api/v1/loyalty/points/redeem
func (h *LoyaltyHandler) RedeemPoints(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req RedeemPointsRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := h.loyalty.RedeemPoints(ctx, getCustomerID(r.Context()), req.Points, req.Description)
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toMembershipDTO(m))
}

// GET /api/v1/loyalty/points/history
func (h *LoyaltyHandler) GetPointsHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	txs, err := h.loyalty.GetPointsHistory(ctx, getCustomerID(r.Context()), pagination(r))
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	dtos := make([]PointsTransactionDTO, 0, len(txs))
	for _, t := range txs {
		dtos = append(dtos, PointsTransactionDTO{
			ID:          t.ID.String(),
			Type:        string(t.Type),
			Points:      t.Points,
			OrderID:     t.OrderID,
			Amount:      t.Amount,
			Description: t.Description,
			CreatedAt:   t.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, dtos)
}

// POST /api/v1/admin/loyalty/{customer_id}/earn
func (h *LoyaltyHandler) EarnPoints(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req EarnPointsRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := h.loyalty.EarnPoints(ctx, chi.URLParam(r, "customer_id"), req.OrderID, req.Amount, req.Description)
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toMembershipDTO(m))
}

// GET /api/v1/admin/loyalty/{customer_id}/audit
func (h *LoyaltyHandler) AuditLedger(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	audit, err := h.loyalty.AuditLedger(ctx, chi.URLParam(r, "customer_id"))
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, audit)
}

// POST /api/v1/admin/vouchers
func (h *LoyaltyHandler) CreateVoucher(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateVoucherRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	v, err := h.loyalty.CreateVoucher(ctx, req.toDomain())
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, toVoucherDTO(v))
}

// POST /api/v1/admin/vouchers/{code}/use
func (h *LoyaltyHandler) UseVoucher(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UseVoucherRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CustomerID == "" || req.OrderID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "customer_id and order_id are required")
		return
	}
	usage, err := h.loyalty.UseVoucher(ctx, chi.URLParam(r, "code"), req.CustomerID, req.OrderID)
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, VoucherUsageDTO{
		VoucherCode: usage.VoucherCode,
		CustomerID:  usage.CustomerID,
		OrderID:     usage.OrderID,
		UsedAt:      usage.UsedAt,
	})
}

// GET /api/v1/vouchers
func (h *LoyaltyHandler) ListAvailableVouchers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	vouchers, err := h.loyalty.GetAvailableVouchers(ctx)
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	dtos := make([]VoucherDTO, 0, len(vouchers))
	for _, v := range vouchers {
		dtos = append(dtos, toVoucherDTO(v))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GET /api/v1/vouchers/{code}
func (h *LoyaltyHandler) GetVoucher(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	v, err := h.loyalty.GetVoucherByCode(ctx, chi.URLParam(r, "code"))
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toVoucherDTO(v))
}

// POST /api/v1/vouchers/{code}/discount
func (h *LoyaltyHandler) CalculateDiscount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CalculateDiscountRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	code := chi.URLParam(r, "code")
	discount, err := h.loyalty.CalculateDiscount(ctx, code, req.Subtotal, req.UnitPrices)
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, DiscountResponseDTO{Code: code, Discount: discount})
}
