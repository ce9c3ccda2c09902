// Package metrics содержит счётчики и гистограммы Prometheus для HTTP-слоя и проведения заказов.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Renal37/storefront/internal/logger"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

var (
	Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "method", "status"})

	LatencyMS = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	OrdersCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "created_total",
		Help:      "Orders persisted in pending status.",
	})

	// Transitions считает только фактически применённые переходы, no-op не учитывается.
	Transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "transitions_total",
		Help:      "Applied order status transitions.",
	}, []string{"to", "source"})

	SettlementFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "failures_total",
		Help:      "Paid transitions rolled back and left for manual reconciliation.",
	}, []string{"reason", "source"})

	WebhookRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "rejected_total",
		Help:      "Gateway notifications rejected by signature verification.",
	})

	GatewayRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Payment gateway calls by operation and result.",
	}, []string{"op", "result"})

	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Order events delivered to sinks.",
	}, []string{"sink", "type", "result"})
)

func init() {
	prometheus.MustRegister(
		Requests,
		LatencyMS,
		OrdersCreated,
		Transitions,
		SettlementFailures,
		WebhookRejected,
		GatewayRequests,
		EventsPublished,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware пишет метрики запроса с шаблоном маршрута chi в качестве метки handler.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		wrappedWriter := logger.NewResponseWriter(w)

		next.ServeHTTP(wrappedWriter, r)

		handler := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			handler = rctx.RoutePattern()
		}

		Requests.WithLabelValues(handler, r.Method, strconv.Itoa(wrappedWriter.StatusCode)).Inc()
		LatencyMS.WithLabelValues(handler).Observe(float64(time.Since(startTime).Milliseconds()))
	})
}
