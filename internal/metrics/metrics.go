// Package metrics exposes server counters in Prometheus format
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/8thgencore/redlite/pkg/logger/sl"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "redlite"

// Command results used as label values
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds the server's collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	commands      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	connsActive   prometheus.Gauge
	connsTotal    prometheus.Counter
	connsRejected prometheus.Counter
	rateLimited   prometheus.Counter
}

// New creates the collectors. keys reports the current number of keys and may be nil.
func New(keys func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands processed, by command and result.",
		}, []string{"command", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time spent executing commands.",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}, []string{"command"}),
		connsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Client connections currently open.",
		}),
		connsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Client connections accepted.",
		}),
		connsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Client connections refused because the limit was reached.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Commands refused by the per-connection rate limit.",
		}),
	}

	m.registry.MustRegister(
		m.commands,
		m.duration,
		m.connsActive,
		m.connsTotal,
		m.connsRejected,
		m.rateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if keys != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "keys",
			Help:      "Keys currently stored.",
		}, func() float64 { return float64(keys()) }))
	}

	return m
}

// ObserveCommand records one executed command
func (m *Metrics) ObserveCommand(command string, failed bool, took time.Duration) {
	result := ResultOK
	if failed {
		result = ResultError
	}

	m.commands.WithLabelValues(command, result).Inc()
	m.duration.WithLabelValues(command).Observe(took.Seconds())
}

// ConnOpened records an accepted connection
func (m *Metrics) ConnOpened() {
	m.connsTotal.Inc()
	m.connsActive.Inc()
}

// ConnClosed records a finished connection
func (m *Metrics) ConnClosed() {
	m.connsActive.Dec()
}

// ConnRejected records a connection refused by the max-clients gate
func (m *Metrics) ConnRejected() {
	m.connsRejected.Inc()
}

// RateLimited records a command refused by the rate limiter
func (m *Metrics) RateLimited() {
	m.rateLimited.Inc()
}

// Registry returns the registry holding the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on address until ctx is done
func (m *Metrics) Serve(ctx context.Context, address string, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Metrics endpoint started", "address", address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics endpoint: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to stop metrics endpoint", sl.Err(err))
		return err
	}

	return nil
}
