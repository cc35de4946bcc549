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

const namespace = "pos"

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

// Middleware records one request and its latency, labelled by the chi route
// pattern so ids in the path do not explode cardinality.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// ClientMetrics covers the kiosk and monitor loops. A nil *ClientMetrics is
// valid and records nothing.
type ClientMetrics struct {
	Synced  *prometheus.CounterVec
	Pending prometheus.Gauge
	Polls   *prometheus.CounterVec
}

func NewClientMetrics(reg prometheus.Registerer, service string) *ClientMetrics {
	synced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "outbox_sync_total",
		Help:      "Outbox entries submitted by the reconciler, by result.",
	}, []string{"result"})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "outbox_pending",
		Help:      "Entries waiting in the offline outbox.",
	})
	polls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "snapshot_polls_total",
		Help:      "Order snapshot fetches, by viewer and result.",
	}, []string{"viewer", "result"})

	reg.MustRegister(synced, pending, polls)
	return &ClientMetrics{Synced: synced, Pending: pending, Polls: polls}
}

func (m *ClientMetrics) ObserveSync(ok bool) {
	if m == nil {
		return
	}
	m.Synced.WithLabelValues(result(ok)).Inc()
}

func (m *ClientMetrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.Pending.Set(float64(n))
}

func (m *ClientMetrics) ObservePoll(viewer string, ok bool) {
	if m == nil {
		return
	}
	m.Polls.WithLabelValues(viewer, result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
