package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ordersCreated   *prometheus.CounterVec
	ordersRejected  *prometheus.CounterVec
	ordersCancelled prometheus.Counter
	unitsRestored   prometheus.Counter
	txRetries       *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_orders_created_total",
		Help: "Jumlah order yang berhasil di-commit per channel.",
	}, []string{"channel"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_orders_rejected_total",
		Help: "Jumlah order yang ditolak berdasarkan alasan.",
	}, []string{"reason"})
	cancelled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_orders_cancelled_total",
		Help: "Jumlah order yang dibatalkan.",
	})
	restored := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_inventory_units_restored_total",
		Help: "Jumlah unit stok yang dikembalikan oleh pembatalan.",
	})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_tx_retries_total",
		Help: "Jumlah transaksi yang diulang karena konflik konkurensi.",
	}, []string{"operation"})
	registry.MustRegister(
		requests, duration, created, rejected, cancelled, restored, retries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		ordersCreated:   created,
		ordersRejected:  rejected,
		ordersCancelled: cancelled,
		unitsRestored:   restored,
		txRetries:       retries,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// OrderCreated mencatat order baru.
func (m *Metrics) OrderCreated(channel string) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(channel).Inc()
}

// OrderRejected mencatat order yang gagal dengan alasan singkat.
func (m *Metrics) OrderRejected(reason string) {
	if m == nil {
		return
	}
	m.ordersRejected.WithLabelValues(reason).Inc()
}

// OrderCancelled mencatat pembatalan beserta unit stok yang dikembalikan.
func (m *Metrics) OrderCancelled(restored int64) {
	if m == nil {
		return
	}
	m.ordersCancelled.Inc()
	if restored > 0 {
		m.unitsRestored.Add(float64(restored))
	}
}

// TxRetried mencatat percobaan ulang transaksi.
func (m *Metrics) TxRetried(operation string) {
	if m == nil {
		return
	}
	m.txRetries.WithLabelValues(operation).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
