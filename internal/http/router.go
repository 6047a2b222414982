package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/coffee_saga/internal/metrics"
)

type Handlers struct {
	Cart          *CartHandler
	Orders        *OrdersHandler
	Payments      *PaymentsHandler
	Loyalty       *LoyaltyHandler
	Checkout      *CheckoutHandler
	Notifications *NotificationHandler
}

type RouterOptions struct {
	RequestTimeout time.Duration
	Metrics        *metrics.ServerMetrics
	MetricsHandler http.Handler
}

// NewRouter mounts every API route. Customer routes require the
// X-Customer-ID header; the payment callback and admin routes do not.
func NewRouter(h Handlers, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if h.Payments != nil {
			r.Post("/payments/callback", h.Payments.Callback)
		}

		r.Route("/admin", func(r chi.Router) {
			if h.Orders != nil {
				r.Put("/orders/{order_id}/status", h.Orders.UpdateStatus)
			}
			if h.Loyalty != nil {
				r.Post("/loyalty/{customer_id}/earn", h.Loyalty.EarnPoints)
				r.Get("/loyalty/{customer_id}/audit", h.Loyalty.AuditLedger)
				r.Post("/vouchers", h.Loyalty.CreateVoucher)
				r.Post("/vouchers/{code}/use", h.Loyalty.UseVoucher)
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(CustomerMiddleware)

			if h.Cart != nil {
				r.Route("/cart", func(r chi.Router) {
					r.Get("/", h.Cart.GetCart)
					r.Delete("/", h.Cart.ClearCart)
					r.Post("/items", h.Cart.AddItem)
					r.Put("/items/{product_id}", h.Cart.UpdateQuantity)
					r.Delete("/items/{product_id}", h.Cart.RemoveItem)
				})
			}
			if h.Checkout != nil {
				r.Post("/checkout", h.Checkout.Checkout)
			}
			if h.Orders != nil {
				r.Route("/orders", func(r chi.Router) {
					r.Post("/", h.Orders.CreateOrder)
					r.Get("/", h.Orders.ListOrders)
					r.Get("/number/{order_number}", h.Orders.GetOrderByNumber)
					r.Get("/{order_id}", h.Orders.GetOrder)
					r.Post("/{order_id}/voucher", h.Orders.ApplyVoucher)
					if h.Checkout != nil {
						r.Post("/{order_id}/pay", h.Checkout.PayOrder)
					}
				})
			}
			if h.Payments != nil {
				r.Route("/payments", func(r chi.Router) {
					r.Post("/", h.Payments.CreatePayment)
					r.Get("/", h.Payments.ListPayments)
					r.Get("/order/{order_id}", h.Payments.ListOrderPayments)
					r.Get("/{payment_id}", h.Payments.GetPayment)
					r.Post("/{payment_id}/process", h.Payments.ProcessPayment)
					r.Post("/{payment_id}/cancel", h.Payments.CancelPayment)
					r.Post("/{payment_id}/refund", h.Payments.RefundPayment)
					r.Get("/{payment_id}/refund", h.Payments.GetRefund)
				})
			}
			if h.Loyalty != nil {
				r.Route("/loyalty", func(r chi.Router) {
					r.Post("/membership", h.Loyalty.CreateMembership)
					r.Get("/membership", h.Loyalty.GetMembership)
					r.Post("/points/redeem", h.Loyalty.RedeemPoints)
					r.Get("/points/history", h.Loyalty.GetPointsHistory)
				})
				r.Route("/vouchers", func(r chi.Router) {
					r.Get("/", h.Loyalty.ListAvailableVouchers)
					r.Get("/{code}", h.Loyalty.GetVoucher)
					r.Post("/{code}/discount", h.Loyalty.CalculateDiscount)
				})
			}
			if h.Notifications != nil {
				r.Route("/notifications", func(r chi.Router) {
					r.Get("/", h.Notifications.List)
					r.Put("/{notification_id}/read", h.Notifications.MarkRead)
					r.Delete("/{notification_id}", h.Notifications.Delete)
				})
			}
		})
	})

	return otelhttp.NewHandler(r, "http.server")
}
