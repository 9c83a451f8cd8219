package core

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const notFoundLabel = "not_found"

// Metrics holds the broker's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	TenantCache     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharelogin_requests_total",
				Help: "Total number of requests by command and response status",
			},
			[]string{"command", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sharelogin_request_duration_seconds",
				Help:    "Request handling latency by command",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		TenantCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharelogin_tenant_cache_total",
				Help: "Tenant API key cache lookups by result",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.RequestDuration)
	reg.MustRegister(m.TenantCache)

	return m
}

// Middleware records one observation per request, labelled by the matched command.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		label := notFoundLabel
		if cmd, ok := ParseCommand(c.FullPath()); ok {
			label = cmd.String()
		}
		m.RequestsTotal.WithLabelValues(label, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}
}

// TenantCacheResult counts a cache lookup outcome ("hit", "miss" or "error").
func (m *Metrics) TenantCacheResult(result string) {
	if m == nil {
		return
	}
	m.TenantCache.WithLabelValues(result).Inc()
}

// NewMetricsRegistry returns a registry preloaded with Go runtime and process collectors.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// NewMetricsServer serves /metrics and /healthz on their own listener so the
// API listener only ever answers the five command paths.
func NewMetricsServer(addr string, reg *prometheus.Registry, ping func(context.Context) error) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if ping != nil {
			if err := ping(ctx); err != nil {
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", contentTypeText)
		_, _ = w.Write([]byte("ok"))
	})

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
