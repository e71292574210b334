// Package metrics exposes the counters and gauges named in spec §5
// and SPEC_FULL §4.5, and a standalone HTTP server to serve them plus
// pprof profiles, grounded on chihaya's pkg/metrics/server.go.
package metrics

import (
	"context"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Anshorei/zeronet-tracker/pkg/log"
	"github.com/Anshorei/zeronet-tracker/pkg/stop"
)

var (
	// OpenedConnections counts accepted connections over the life of
	// the process.
	OpenedConnections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "zntracker_opened_connections_total",
		Help: "The number of connections opened by peers.",
	})

	// ClosedConnections counts connections that have ended, by reason.
	ClosedConnections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zntracker_closed_connections_total",
		Help: "The number of connections closed, by reason.",
	}, []string{"reason"})

	// RequestsTotal counts handled requests, by command.
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zntracker_requests_total",
		Help: "The number of requests handled, by command.",
	}, []string{"command"})

	// ConnectionDuration observes the lifetime of closed connections.
	ConnectionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "zntracker_connection_duration_seconds",
		Help:    "The duration connections stay open.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})

	// Peers is the current peer-count gauge, refreshed lazily from a
	// database snapshot rather than updated under the main mutex.
	Peers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "zntracker_peers",
		Help: "The current number of registered peers.",
	})

	// Hashes is the current hash-count gauge.
	Hashes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "zntracker_hashes",
		Help: "The current number of registered hashes.",
	})

	// BuildInfo is a constant 1-valued gauge labelled with the build
	// version, the standard Prometheus "info" metric idiom.
	BuildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "zntracker_build_info",
		Help: "A metric with a constant value of 1, labelled by version.",
	}, []string{"version"})
)

func init() {
	prometheus.MustRegister(
		OpenedConnections,
		ClosedConnections,
		RequestsTotal,
		ConnectionDuration,
		Peers,
		Hashes,
		BuildInfo,
	)
}

// GaugeSource supplies the values used to refresh the Peers/Hashes
// gauges on demand, per spec §5's "lazily from a snapshot" rule.
type GaugeSource interface {
	GetPeerCount() (int, error)
	GetHashCount() (int, error)
}

// Refresh recomputes the Peers and Hashes gauges from src. A count
// that src fails to report leaves its gauge unchanged.
func Refresh(src GaugeSource) {
	if n, err := src.GetPeerCount(); err == nil {
		Peers.Set(float64(n))
	}
	if n, err := src.GetHashCount(); err == nil {
		Hashes.Set(float64(n))
	}
}

// Config configures the standalone metrics/pprof HTTP server.
type Config struct {
	Addr            string        `json:"addr"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// Server serves /metrics and net/http/pprof profiles on its own port,
// separate from the peer-protocol listener.
type Server struct {
	cfg Config
	srv *http.Server
}

// NewServer builds and starts a metrics server listening on cfg.Addr.
func NewServer(cfg Config) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	s := &Server{
		cfg: cfg,
		srv: &http.Server{Addr: cfg.Addr, Handler: mux},
	}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", log.Err(err))
		}
	}()

	return s
}

// Stop implements stop.Stopper.
func (s *Server) Stop() <-chan error {
	c := make(chan error)
	go func() {
		defer close(c)
		timeout := s.cfg.ShutdownTimeout
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.srv.Shutdown(ctx); err != nil {
			c <- err
		}
	}()
	return c
}

var _ stop.Stopper = (*Server)(nil)
