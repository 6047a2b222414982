package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fjod/coffee_saga/internal/checkout"
	orderdomain "github.com/fjod/coffee_saga/internal/orders/domain"
	"github.com/fjod/coffee_saga/internal/orders/repository"
	paymentdomain "github.com/fjod/coffee_saga/internal/payment/domain"
)

type CheckoutService interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error)
	PayOrder(ctx context.Context, orderID uuid.UUID, method paymentdomain.Method, details string) (*checkout.Result, error)
}

type OrderLookup interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*orderdomain.Order, error)
}

type CheckoutHandler struct {
	checkout CheckoutService
	orders   OrderLookup
	timeout  time.Duration
	log      *slog.Logger
}

func NewCheckoutHandler(svc CheckoutService, orders OrderLookup, timeout time.Duration, log *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkout: svc, orders: orders, timeout: timeout, log: log}
}

type CheckoutRequestDTO struct {
	DeliveryInfoDTO
	VoucherCode    string `json:"voucher_code"`
	PaymentMethod  string `json:"payment_method"`
	PaymentDetails string `json:"payment_details"`
}

type PayOrderRequestDTO struct {
	PaymentMethod  string `json:"payment_method"`
	PaymentDetails string `json:"payment_details"`
}

type CheckoutResponseDTO struct {
	Order      OrderResponseDTO       `json:"order"`
	Payment    *PaymentResponseDTO    `json:"payment,omitempty"`
	Membership *MembershipResponseDTO `json:"membership,omitempty"`
	Paid       bool                   `json:"paid"`
}

func toCheckoutDTO(res *checkout.Result) CheckoutResponseDTO {
	dto := CheckoutResponseDTO{Order: toOrderDTO(res.Order), Paid: res.Paid()}
	if res.Payment != nil {
		p := toPaymentDTO(res.Payment)
		dto.Payment = &p
	}
	if res.Membership != nil {
		m := toMembershipDTO(res.Membership)
		dto.Membership = &m
	}
	return dto
}

// POST /api/v1/checkout
// Responds 201 when the payment settled and 402 when it failed. A failed
// checkout leaves the order PENDING for /orders/{order_id}/pay.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CheckoutRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.checkout.Checkout(ctx, checkout.Request{
		CustomerID:     getCustomerID(r.Context()),
		Delivery:       req.DeliveryInfoDTO.toDomain(),
		VoucherCode:    strings.TrimSpace(req.VoucherCode),
		Method:         paymentdomain.Method(strings.ToUpper(req.PaymentMethod)),
		PaymentDetails: req.PaymentDetails,
	})
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	status := http.StatusCreated
	if !res.Paid() {
		status = http.StatusPaymentRequired
	}
	respondJSON(w, status, toCheckoutDTO(res))
}

// POST /api/v1/orders/{order_id}/pay
func (h *CheckoutHandler) PayOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := uuidParam(w, r, "order_id")
	if !ok {
		return
	}
	var req PayOrderRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	if order.CustomerID != getCustomerID(r.Context()) {
		handleError(ctx, w, h.log, repository.ErrOrderNotFound)
		return
	}

	res, err := h.checkout.PayOrder(ctx, orderID, paymentdomain.Method(strings.ToUpper(req.PaymentMethod)), req.PaymentDetails)
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	status := http.StatusOK
	if !res.Paid() {
		status = http.StatusPaymentRequired
	}
	respondJSON(w, status, toCheckoutDTO(res))
}
