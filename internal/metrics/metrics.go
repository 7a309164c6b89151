// Package metrics provides Prometheus instrumentation for the investment backend.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts executed trades by type (buy/sell).
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invest_trades_total",
		Help: "Total number of trades executed",
	}, []string{"type"})

	// TradeRejections counts rejected trades by ledger error kind.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invest_trade_rejections_total",
		Help: "Trades rejected by the ledger",
	}, []string{"kind"})

	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "invest_trade_latency_seconds",
		Help:    "Trade execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// TradeVolume tracks cumulative traded currency per team.
	TradeVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invest_trade_volume_total",
		Help: "Cumulative traded amount in currency units",
	}, []string{"team_id", "type"})

	// TeamPrice is the most recently computed price of each team.
	TeamPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "invest_team_price",
		Help: "Current cached team price",
	}, []string{"team_id"})

	RecalcDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "invest_price_recalc_duration_seconds",
		Help:    "Duration of a price recalculation cycle",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	// RecalcTeams counts per-team recalculation outcomes (ok/failed).
	RecalcTeams = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invest_price_recalc_teams_total",
		Help: "Teams processed by price recalculation",
	}, []string{"outcome"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "invest_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// RateLimited counts requests refused by the per-user limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invest_rate_limited_total",
		Help: "Requests rejected by the trade rate limiter",
	})

	// CommentsPosted counts new comments by scope (team/general).
	CommentsPosted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invest_comments_posted_total",
		Help: "Comments posted",
	}, []string{"scope"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invest_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "invest_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if pattern := rc.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack passes through so WebSocket upgrades work behind the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
