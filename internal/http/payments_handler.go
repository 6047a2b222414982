package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	paymentdomain "github.com/fjod/coffee_saga/internal/payment/domain"
	paymentservice "github.com/fjod/coffee_saga/internal/payment/service"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
)

type PaymentService interface {
	CreatePayment(ctx context.Context, req paymentservice.CreatePaymentRequest) (*paymentdomain.Payment, error)
	ProcessPayment(ctx context.Context, paymentID string) (*paymentdomain.Payment, error)
	HandleCallback(ctx context.Context, cb paymentdomain.Callback) (*paymentdomain.Payment, error)
	Refund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (*paymentdomain.Payment, *paymentdomain.Refund, error)
	GetRefund(ctx context.Context, paymentID string) (*paymentdomain.Refund, error)
	CancelPayment(ctx context.Context, paymentID string) (*paymentdomain.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*paymentdomain.Payment, error)
	ListPaymentsByOrder(ctx context.Context, orderID string) ([]*paymentdomain.Payment, error)
	ListPaymentsByCustomer(ctx context.Context, customerID string, page postgres.Pagination) ([]*paymentdomain.Payment, error)
}

type PaymentsHandler struct {
	payments PaymentService
	timeout  time.Duration
	log      *slog.Logger
}

func NewPaymentsHandler(payments PaymentService, timeout time.Duration, log *slog.Logger) *PaymentsHandler {
	return &PaymentsHandler{payments: payments, timeout: timeout, log: log}
}

type CreatePaymentRequestDTO struct {
	OrderID        string          `json:"order_id"`
	Method         string          `json:"payment_method"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	PaymentDetails string          `json:"payment_details"`
}

type CallbackRequestDTO struct {
	PaymentID        string `json:"payment_id"`
	Status           string `json:"status"`
	TransactionID    string `json:"transaction_id"`
	GatewayReference string `json:"gateway_reference"`
	GatewayResponse  string `json:"gateway_response"`
	FailureReason    string `json:"failure_reason"`
}

type RefundRequestDTO struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

type PaymentResponseDTO struct {
	PaymentID        string          `json:"payment_id"`
	OrderID          string          `json:"order_id"`
	CustomerID       string          `json:"customer_id"`
	Method           string          `json:"payment_method"`
	Status           string          `json:"status"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	TransactionID    string          `json:"transaction_id,omitempty"`
	GatewayReference string          `json:"gateway_reference,omitempty"`
	GatewayResponse  string          `json:"gateway_response,omitempty"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

type RefundResponseDTO struct {
	RefundID  string          `json:"refund_id"`
	PaymentID string          `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Reason    string          `json:"reason,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type RefundPaymentResponseDTO struct {
	Payment PaymentResponseDTO `json:"payment"`
	Refund  RefundResponseDTO  `json:"refund"`
}

func toPaymentDTO(p *paymentdomain.Payment) PaymentResponseDTO {
	return PaymentResponseDTO{
		PaymentID:        p.PaymentID,
		OrderID:          p.OrderID,
		CustomerID:       p.CustomerID,
		Method:           string(p.Method),
		Status:           string(p.Status),
		Amount:           p.Amount,
		Currency:         p.Currency,
		TransactionID:    p.TransactionID,
		GatewayReference: p.GatewayReference,
		GatewayResponse:  p.GatewayResponse,
		FailureReason:    p.FailureReason,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
		CompletedAt:      p.CompletedAt,
	}
}

func toPaymentDTOs(payments []*paymentdomain.Payment) []PaymentResponseDTO {
	dtos := make([]PaymentResponseDTO, 0, len(payments))
	for _, p := range payments {
		dtos = append(dtos, toPaymentDTO(p))
	}
	return dtos
}

func toRefundDTO(r *paymentdomain.Refund) RefundResponseDTO {
	return RefundResponseDTO{
		RefundID:  r.RefundID,
		PaymentID: r.PaymentID,
		Amount:    r.Amount,
		Currency:  r.Currency,
		Reason:    r.Reason,
		CreatedAt: r.CreatedAt,
	}
}

// POST /api/v1/payments
func (h *PaymentsHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreatePaymentRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OrderID == "" {
		respondError(w, http.StatusBadRequest, "missing_order_id", "order_id is required")
		return
	}
	p, err := h.payments.CreatePayment(ctx, paymentservice.CreatePaymentRequest{
		OrderID:        req.OrderID,
		CustomerID:     getCustomerID(r.Context()),
		Method:         paymentdomain.Method(strings.ToUpper(req.Method)),
		Amount:         req.Amount,
		Currency:       req.Currency,
		PaymentDetails: req.PaymentDetails,
	})
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, toPaymentDTO(p))
}

// GET /api/v1/payments
func (h *PaymentsHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	payments, err := h.payments.ListPaymentsByCustomer(ctx, getCustomerID(r.Context()), pagination(r))
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toPaymentDTOs(payments))
}

// GET /api/v1/payments/order/{order_id}
func (h *PaymentsHandler) ListOrderPayments(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	payments, err := h.payments.ListPaymentsByOrder(ctx, chi.URLParam(r, "order_id"))
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	customerID := getCustomerID(r.Context())
	own := payments[:0]
	for _, p := range payments {
		if p.CustomerID == customerID {
			own = append(own, p)
		}
	}
	respondJSON(w, http.StatusOK, toPaymentDTOs(own))
}

// GET /api/v1/payments/{payment_id}
func (h *PaymentsHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, ok := h.ownPayment(ctx, w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, toPaymentDTO(p))
}

// POST /api/v1/payments/{payment_id}/process
func (h *PaymentsHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, ok := h.ownPayment(ctx, w, r)
	if !ok {
		return
	}
	p, err := h.payments.ProcessPayment(ctx, p.PaymentID)
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toPaymentDTO(p))
}

// POST /api/v1/payments/{payment_id}/cancel
func (h *PaymentsHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, ok := h.ownPayment(ctx, w, r)
	if !ok {
		return
	}
	p, err := h.payments.CancelPayment(ctx, p.PaymentID)
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toPaymentDTO(p))
}

// POST /api/v1/payments/{payment_id}/refund
func (h *PaymentsHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req RefundRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	p, ok := h.ownPayment(ctx, w, r)
	if !ok {
		return
	}
	p, refund, err := h.payments.Refund(ctx, p.PaymentID, req.Amount, req.Reason)
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, RefundPaymentResponseDTO{Payment: toPaymentDTO(p), Refund: toRefundDTO(refund)})
}

// GET /api/v1/payments/{payment_id}/refund
func (h *PaymentsHandler) GetRefund(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, ok := h.ownPayment(ctx, w, r)
	if !ok {
		return
	}
	refund, err := h.payments.GetRefund(ctx, p.PaymentID)
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toRefundDTO(refund))
}

// POST /api/v1/payments/callback
// Called by the payment gateway, not by customers.
func (h *PaymentsHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CallbackRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PaymentID == "" {
		respondError(w, http.StatusBadRequest, "missing_payment_id", "payment_id is required")
		return
	}
	p, err := h.payments.HandleCallback(ctx, paymentdomain.Callback{
		PaymentID:        req.PaymentID,
		Status:           paymentdomain.PaymentStatus(strings.ToUpper(req.Status)),
		TransactionID:    req.TransactionID,
		GatewayReference: req.GatewayReference,
		GatewayResponse:  req.GatewayResponse,
		FailureReason:    req.FailureReason,
	})
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toPaymentDTO(p))
}

func (h *PaymentsHandler) ownPayment(ctx context.Context, w http.ResponseWriter, r *http.Request) (*paymentdomain.Payment, bool) {
	p, err := h.payments.GetPayment(ctx, chi.URLParam(r, "payment_id"))
	if err != nil {
		handleError(ctx, w, h.log, err)
		return nil, false
	}
	if p.CustomerID != getCustomerID(r.Context()) {
		handleError(ctx, w, h.log, paymentdomain.ErrPaymentNotFound)
		return nil, false
	}
	return p, true
}
