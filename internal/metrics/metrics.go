// Package metrics instruments a types.Store with per-operation outcome and
// latency observations.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mesh-intelligence/casebook/pkg/types"
)

// Recorder receives one observation per store call.
type Recorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Nop discards observations.
var Nop Recorder = nopRecorder{}

type nopRecorder struct{}

func (nopRecorder) Observe(context.Context, string, bool, time.Duration) {}

// Prometheus records store calls as a counter and a latency histogram.
type Prometheus struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

// NewPrometheus registers the store collectors with reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "casebook",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Store calls by operation and result.",
		}, []string{"operation", "result"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "casebook",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Store call latency by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{p.operations, p.durations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Observe implements Recorder.
func (p *Prometheus) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	result := "error"
	if success {
		result = "success"
	}
	p.operations.WithLabelValues(operation, result).Inc()
	p.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// Instrument wraps s so every call is reported to rec. A nil rec means Nop.
func Instrument(s types.Store, rec Recorder) types.Store {
	if rec == nil {
		rec = Nop
	}
	return &instrumented{next: s, rec: rec}
}

type instrumented struct {
	next types.Store
	rec  Recorder
}

func (i *instrumented) observe(ctx context.Context, op string, start time.Time, err error) {
	i.rec.Observe(ctx, op, err == nil, time.Since(start))
}

func (i *instrumented) GetAll(ctx context.Context) ([]types.TestCase, error) {
	start := time.Now()
	out, err := i.next.GetAll(ctx)
	i.observe(ctx, "get_all", start, err)
	return out, err
}

func (i *instrumented) Get(ctx context.Context, id string) (types.TestCase, error) {
	start := time.Now()
	tc, err := i.next.Get(ctx, id)
	i.observe(ctx, "get", start, err)
	return tc, err
}

func (i *instrumented) Put(ctx context.Context, tc types.TestCase) error {
	start := time.Now()
	err := i.next.Put(ctx, tc)
	i.observe(ctx, "put", start, err)
	return err
}

func (i *instrumented) DeleteByID(ctx context.Context, id string) error {
	start := time.Now()
	err := i.next.DeleteByID(ctx, id)
	i.observe(ctx, "delete", start, err)
	return err
}

func (i *instrumented) BulkPut(ctx context.Context, tcs []types.TestCase) error {
	start := time.Now()
	err := i.next.BulkPut(ctx, tcs)
	i.observe(ctx, "bulk_put", start, err)
	return err
}

func (i *instrumented) ClearAll(ctx context.Context) error {
	start := time.Now()
	err := i.next.ClearAll(ctx)
	i.observe(ctx, "clear_all", start, err)
	return err
}

func (i *instrumented) ByStatus(ctx context.Context, status types.Status) ([]types.TestCase, error) {
	start := time.Now()
	out, err := i.next.ByStatus(ctx, status)
	i.observe(ctx, "by_status", start, err)
	return out, err
}

func (i *instrumented) ByIteration(ctx context.Context, iteration string) ([]types.TestCase, error) {
	start := time.Now()
	out, err := i.next.ByIteration(ctx, iteration)
	i.observe(ctx, "by_iteration", start, err)
	return out, err
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
