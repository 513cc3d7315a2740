package supportgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// operation names one client call in metrics and logs.
type operation string

const (
	opSubmitJob   operation = "submit_job"
	opGetJob      operation = "get_job"
	opSimilar     operation = "similar"
	opSuggestions operation = "suggestions"
	opHealth      operation = "health"
)

// Call outcomes. The HTTP status is folded into its class to keep labels bounded.
const (
	outcomeOK          = "ok"
	outcomeJobFailed   = "job_failed"
	outcomeClientError = "client_error"
	outcomeServerError = "server_error"
	outcomeCanceled    = "canceled"
	outcomeTransport   = "transport_error"
)

func outcome(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, ErrJobFailed):
		return outcomeJobFailed
	case errors.As(err, &apiErr):
		if apiErr.Status >= 500 {
			return outcomeServerError
		}
		return outcomeClientError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCanceled
	default:
		return outcomeTransport
	}
}

// callBuckets spans quick reads up to synchronous job runs.
var callBuckets = []float64{0.01, 0.05, 0.25, 1, 5, 30, 120, 300}

type clientMetrics struct {
	calls    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

func newClientMetrics(reg prometheus.Registerer) (*clientMetrics, error) {
	calls, err := share(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "supportgraph",
		Subsystem: "client",
		Name:      "calls_total",
		Help:      "Client calls by operation and outcome.",
	}, []string{"operation", "outcome"}))
	if err != nil {
		return nil, err
	}
	latency, err := share(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "supportgraph",
		Subsystem: "client",
		Name:      "call_duration_seconds",
		Help:      "Client call latency, including synchronous job runs.",
		Buckets:   callBuckets,
	}, []string{"operation"}))
	if err != nil {
		return nil, err
	}
	inFlight, err := share(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "supportgraph",
		Subsystem: "client",
		Name:      "calls_in_flight",
		Help:      "Client calls waiting on the server.",
	}, []string{"operation"}))
	if err != nil {
		return nil, err
	}
	return &clientMetrics{calls: calls, latency: latency, inFlight: inFlight}, nil
}

// share registers c, or returns the collector already registered under the
// same descriptor so several clients can report into one registry.
func share[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return c, fmt.Errorf("supportgraph: register metric: %w", err)
	}
	existing, ok := are.ExistingCollector.(C)
	if !ok {
		return c, fmt.Errorf("supportgraph: metric registered with type %T", are.ExistingCollector)
	}
	return existing, nil
}

// observer reports client calls. Either half may be nil.
type observer struct {
	logger  *slog.Logger
	metrics *clientMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	o := &observer{logger: logger}
	if reg != nil {
		m, err := newClientMetrics(reg)
		if err != nil {
			return nil, err
		}
		o.metrics = m
	}
	return o, nil
}

// begin marks op as in flight. The returned func records the result.
func (o *observer) begin(ctx context.Context, op operation) func(error) {
	if o == nil || (o.logger == nil && o.metrics == nil) {
		return func(error) {}
	}
	start := time.Now()
	if o.metrics != nil {
		o.metrics.inFlight.WithLabelValues(string(op)).Inc()
	}

	return func(err error) {
		elapsed := time.Since(start)
		out := outcome(err)
		if o.metrics != nil {
			o.metrics.inFlight.WithLabelValues(string(op)).Dec()
			o.metrics.calls.WithLabelValues(string(op), out).Inc()
			o.metrics.latency.WithLabelValues(string(op)).Observe(elapsed.Seconds())
		}
		if o.logger == nil {
			return
		}

		attrs := []slog.Attr{
			slog.String("operation", string(op)),
			slog.String("outcome", out),
			slog.Duration("elapsed", elapsed),
		}
		if err == nil {
			o.logger.LogAttrs(ctx, slog.LevelDebug, "supportgraph call", attrs...)
			return
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			attrs = append(attrs, slog.Int("status", apiErr.Status), slog.String("code", apiErr.Code))
		}
		attrs = append(attrs, slog.Any("error", err))
		o.logger.LogAttrs(ctx, slog.LevelWarn, "supportgraph call failed", attrs...)
	}
}
