package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coffee_saga"

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(reg prometheus.Registerer, service string) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	reg.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// Middleware records request count and latency labelled by chi route pattern.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = r.Method + " " + rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// Domain holds the business counters. A nil *Domain is valid and records nothing.
type Domain struct {
	ordersCreated      prometheus.Counter
	orderTransitions   *prometheus.CounterVec
	paymentsSettled    *prometheus.CounterVec
	pointsEarned       prometheus.Counter
	pointsRedeemed     prometheus.Counter
	vouchersRedeemed   *prometheus.CounterVec
	eventsPublished    *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
	notificationsSaved prometheus.Counter
}

func NewDomain(reg prometheus.Registerer) *Domain {
	d := &Domain{
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_created_total", Help: "Orders created from carts.",
		}),
		orderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "order_transitions_total", Help: "Order status transitions.",
		}, []string{"to"}),
		paymentsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "payments_settled_total", Help: "Payments reaching a terminal status.",
		}, []string{"method", "status", "source"}),
		pointsEarned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "loyalty_points_earned_total", Help: "Loyalty points earned.",
		}),
		pointsRedeemed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "loyalty_points_redeemed_total", Help: "Loyalty points redeemed.",
		}),
		vouchersRedeemed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "vouchers_redeemed_total", Help: "Voucher redemption attempts by outcome.",
		}, []string{"outcome"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_published_total", Help: "OrderCreated publication attempts by outcome.",
		}, []string{"outcome"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "circuit_breaker_state", Help: "0 closed, 1 half-open, 2 open.",
		}, []string{"name"}),
		notificationsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_stored_total", Help: "Notifications stored from events.",
		}),
	}
	reg.MustRegister(d.ordersCreated, d.orderTransitions, d.paymentsSettled, d.pointsEarned, d.pointsRedeemed,
		d.vouchersRedeemed, d.eventsPublished, d.breakerState, d.notificationsSaved)
	return d
}

func (d *Domain) OrderCreated() {
	if d != nil {
		d.ordersCreated.Inc()
	}
}

func (d *Domain) OrderTransition(to string) {
	if d != nil {
		d.orderTransitions.WithLabelValues(to).Inc()
	}
}

func (d *Domain) PaymentSettled(method, status, source string) {
	if d != nil {
		d.paymentsSettled.WithLabelValues(method, status, source).Inc()
	}
}

func (d *Domain) PointsEarned(points int64) {
	if d != nil {
		d.pointsEarned.Add(float64(points))
	}
}

func (d *Domain) PointsRedeemed(points int64) {
	if d != nil {
		d.pointsRedeemed.Add(float64(points))
	}
}

func (d *Domain) VoucherRedemption(outcome string) {
	if d != nil {
		d.vouchersRedeemed.WithLabelValues(outcome).Inc()
	}
}

func (d *Domain) EventPublished(outcome string) {
	if d != nil {
		d.eventsPublished.WithLabelValues(outcome).Inc()
	}
}

func (d *Domain) BreakerState(name string, state int) {
	if d != nil {
		d.breakerState.WithLabelValues(name).Set(float64(state))
	}
}

func (d *Domain) NotificationStored() {
	if d != nil {
		d.notificationsSaved.Inc()
	}
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
