package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	orderdomain "github.com/fjod/coffee_saga/internal/orders/domain"
	"github.com/fjod/coffee_saga/internal/orders/repository"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
)

type OrderService interface {
	CreateOrder(ctx context.Context, customerID string, info orderdomain.DeliveryInfo, voucherCode string) (*orderdomain.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*orderdomain.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*orderdomain.Order, error)
	ListOrders(ctx context.Context, customerID string, page postgres.Pagination) ([]*orderdomain.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status orderdomain.OrderStatus) (*orderdomain.Order, error)
	ApplyVoucher(ctx context.Context, orderID uuid.UUID, code string) (*orderdomain.Order, error)
}

type OrdersHandler struct {
	orders  OrderService
	timeout time.Duration
	log     *slog.Logger
}

func NewOrdersHandler(orders OrderService, timeout time.Duration, log *slog.Logger) *OrdersHandler {
	return &OrdersHandler{orders: orders, timeout: timeout, log: log}
}

type DeliveryInfoDTO struct {
	OrderType       string          `json:"order_type"`
	DeliveryAddress string          `json:"delivery_address"`
	DeliveryPhone   string          `json:"delivery_phone"`
	Notes           string          `json:"notes"`
	DeliveryFee     decimal.Decimal `json:"delivery_fee"`
}

type CreateOrderRequestDTO struct {
	DeliveryInfoDTO
	VoucherCode string `json:"voucher_code"`
}

func (d DeliveryInfoDTO) toDomain() orderdomain.DeliveryInfo {
	return orderdomain.DeliveryInfo{
		Type:    orderdomain.OrderType(strings.ToUpper(d.OrderType)),
		Address: d.DeliveryAddress,
		Phone:   d.DeliveryPhone,
		Notes:   d.Notes,
		Fee:     d.DeliveryFee,
	}
}

type UpdateStatusRequestDTO struct {
	Status string `json:"status"`
}

type ApplyVoucherRequestDTO struct {
	Code string `json:"code"`
}

type OrderItemDTO struct {
	ProductID           int64           `json:"product_id"`
	ProductName         string          `json:"product_name"`
	Quantity            int             `json:"quantity"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	LineTotal           decimal.Decimal `json:"line_total"`
	SpecialInstructions string          `json:"special_instructions,omitempty"`
}

type OrderResponseDTO struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"order_number"`
	CustomerID      string          `json:"customer_id"`
	Status          string          `json:"status"`
	OrderType       string          `json:"order_type"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	DeliveryFee     decimal.Decimal `json:"delivery_fee"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	VoucherCode     string          `json:"voucher_code,omitempty"`
	DeliveryAddress string          `json:"delivery_address,omitempty"`
	DeliveryPhone   string          `json:"delivery_phone,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	Items           []OrderItemDTO  `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

func toOrderDTO(o *orderdomain.Order) OrderResponseDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemDTO{
			ProductID:           it.ProductID,
			ProductName:         it.ProductName,
			Quantity:            it.Quantity,
			UnitPrice:           it.UnitPrice,
			LineTotal:           it.LineTotal(),
			SpecialInstructions: it.SpecialInstructions,
		})
	}
	return OrderResponseDTO{
		ID:              o.ID.String(),
		OrderNumber:     o.OrderNumber,
		CustomerID:      o.CustomerID,
		Status:          o.Status.String(),
		OrderType:       string(o.Type),
		Subtotal:        o.Subtotal,
		TaxAmount:       o.TaxAmount,
		DiscountAmount:  o.DiscountAmount,
		DeliveryFee:     o.DeliveryFee,
		TotalAmount:     o.TotalAmount,
		VoucherCode:     o.VoucherCode,
		DeliveryAddress: o.DeliveryAddress,
		DeliveryPhone:   o.DeliveryPhone,
		Notes:           o.Notes,
		Items:           items,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		CompletedAt:     o.CompletedAt,
	}
}

// POST /api/v1/orders
func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateOrderRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := h.orders.CreateOrder(ctx, getCustomerID(r.Context()), req.toDomain(), strings.TrimSpace(req.VoucherCode))
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, toOrderDTO(order))
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListOrders(ctx, getCustomerID(r.Context()), pagination(r))
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	dtos := make([]OrderResponseDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, toOrderDTO(o))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, ok := h.ownOrder(ctx, w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(order))
}

// GET /api/v1/orders/number/{order_number}
func (h *OrdersHandler) GetOrderByNumber(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.orders.GetOrderByNumber(ctx, chi.URLParam(r, "order_number"))
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	if order.CustomerID != getCustomerID(r.Context()) {
		handleError(ctx, w, h.log, repository.ErrOrderNotFound)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(order))
}

// POST /api/v1/orders/{order_id}/voucher
func (h *OrdersHandler) ApplyVoucher(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ApplyVoucherRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		respondError(w, http.StatusBadRequest, "missing_code", "code is required")
		return
	}
	order, ok := h.ownOrder(ctx, w, r)
	if !ok {
		return
	}
	order, err := h.orders.ApplyVoucher(ctx, order.ID, strings.TrimSpace(req.Code))
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(order))
}

// PUT /api/v1/admin/orders/{order_id}/status
func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := uuidParam(w, r, "order_id")
	if !ok {
		return
	}
	var req UpdateStatusRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := h.orders.UpdateStatus(ctx, orderID, orderdomain.OrderStatus(strings.ToUpper(req.Status)))
	if err != nil {
		handleError(ctx, w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(order))
}

// ownOrder loads the order named in the path. Orders of other customers are
// reported as missing.
func (h *OrdersHandler) ownOrder(ctx context.Context, w http.ResponseWriter, r *http.Request) (*orderdomain.Order, bool) {
	orderID, ok := uuidParam(w, r, "order_id")
	if !ok {
		return nil, false
	}
	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		handleError(ctx, w, h.log, err)
		return nil, false
	}
	if order.CustomerID != getCustomerID(r.Context()) {
		handleError(ctx, w, h.log, repository.ErrOrderNotFound)
		return nil, false
	}
	return order, true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
