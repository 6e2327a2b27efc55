package blobstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for gateway operations.
type Observer interface {
	RecordOperation(op string, duration time.Duration, err error)
}

// PrometheusObserver exports gateway metrics to Prometheus.
type PrometheusObserver struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

// NewPrometheusObserver registers operation latency and failure metrics.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "assetd_blobstore"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Latency of object storage operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operation_errors_total",
		Help:      "Count of object storage failures, excluding missing objects.",
	}, []string{"operation"})

	if err := reg.Register(duration); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, fmt.Errorf("register storage metric: %w", err)
		}
		duration = are.ExistingCollector.(*prometheus.HistogramVec)
	}
	if err := reg.Register(failures); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, fmt.Errorf("register storage metric: %w", err)
		}
		failures = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return &PrometheusObserver{duration: duration, errors: failures}, nil
}

func (o *PrometheusObserver) RecordOperation(op string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil && !errors.Is(err, ErrNotFound) {
		o.errors.WithLabelValues(op).Inc()
	}
}

type nopObserver struct{}

func (nopObserver) RecordOperation(string, time.Duration, error) {}
