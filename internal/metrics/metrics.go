package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/FranksOps/slsharvest/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slsharvest_requests_total",
			Help: "Total number of search API requests by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slsharvest_request_duration_seconds",
			Help:    "Duration of search API requests in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"kind"},
	)

	IdentifiersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slsharvest_identifiers_total",
			Help: "Repository identifiers extracted from result pages, before deduplication",
		},
		[]string{"filename"},
	)

	BucketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slsharvest_buckets_total",
			Help: "Size buckets fetched per target filename",
		},
		[]string{"filename"},
	)

	CappedBucketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slsharvest_capped_buckets_total",
			Help: "Buckets accepted at the minimum interval while still hitting the page ceiling",
		},
		[]string{"filename"},
	)

	NarrowedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slsharvest_narrowed_total",
			Help: "Times a bucket was regenerated at a smaller interval after probing",
		},
		[]string{"filename"},
	)

	CurrentInterval = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slsharvest_interval_bytes",
			Help: "Current size interval used to build buckets",
		},
		[]string{"filename"},
	)
)

// RecordRequest updates the request metrics from a ledger record.
func RecordRequest(r *storage.PageRecord) {
	if r == nil {
		return
	}

	outcome := string(r.Outcome)
	if outcome == "" {
		outcome = string(storage.OutcomeOK)
	}

	RequestsTotal.WithLabelValues(string(r.Kind), outcome).Inc()
	RequestDuration.WithLabelValues(string(r.Kind)).Observe(r.Duration.Seconds())
	if r.Kind == storage.KindPage && r.Items > 0 {
		IdentifiersTotal.WithLabelValues(r.Filename).Add(float64(r.Items))
	}
}

// RecordBucket counts a completed bucket for filename.
func RecordBucket(filename string, capped bool) {
	BucketsTotal.WithLabelValues(filename).Inc()
	if capped {
		CappedBucketsTotal.WithLabelValues(filename).Inc()
	}
}

// RecordNarrow counts a probe-driven narrowing for filename.
func RecordNarrow(filename string) {
	NarrowedTotal.WithLabelValues(filename).Inc()
}

// SetInterval publishes the interval the next bucket for filename will use.
func SetInterval(filename string, interval int64) {
	CurrentInterval.WithLabelValues(filename).Set(float64(interval))
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Start begins listening on the specified port and exposes /metrics.
// Port 0 picks a free port; see Addr.
func Start(port int, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	return &Server{srv: srv, ln: ln}, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
