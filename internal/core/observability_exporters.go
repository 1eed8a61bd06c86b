package core

import (
	"context"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

func statusOf(success bool) string {
	if success {
		return statusSuccess
	}
	return statusError
}

var expvarSeq uint64

const expvarDurationKey = "duration_ms_total"

// ExpvarMetricsRecorder publishes one expvar.Map per store operation holding
// success and error counters plus the accumulated duration in milliseconds.
type ExpvarMetricsRecorder struct {
	name string
	mu   sync.Mutex
	ops  *expvar.Map
}

// ExpvarMetricsSnapshot is a read-only view of the recorded metrics.
type ExpvarMetricsSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Results     map[string]map[string]int64 `json:"results_total"`
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated unique name when name is empty. A map already published under
// name is reused.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("alienrisk_store_metrics_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	ops, ok := expvar.Get(name).(*expvar.Map)
	if !ok {
		ops = expvar.NewMap(name)
	}
	return &ExpvarMetricsRecorder{name: name, ops: ops}
}

// Name returns the expvar export name.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Snapshot reads the published maps back into plain Go maps.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	snap := ExpvarMetricsSnapshot{
		DurationsMS: make(map[string]float64),
		Results:     make(map[string]map[string]int64),
	}
	r.ops.Do(func(kv expvar.KeyValue) {
		op, ok := kv.Value.(*expvar.Map)
		if !ok {
			return
		}
		counts := make(map[string]int64, 2)
		op.Do(func(field expvar.KeyValue) {
			switch v := field.Value.(type) {
			case *expvar.Float:
				snap.DurationsMS[kv.Key] = v.Value()
			case *expvar.Int:
				counts[field.Key] = v.Value()
			}
		})
		snap.Results[kv.Key] = counts
	})
	return snap
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.mu.Lock()
	op, ok := r.ops.Get(operation).(*expvar.Map)
	if !ok {
		op = new(expvar.Map).Init()
		r.ops.Set(operation, op)
	}
	r.mu.Unlock()

	op.Add(statusOf(success), 1)
	op.AddFloat(expvarDurationKey, float64(duration)/float64(time.Millisecond))
}

// PrometheusMetricsRecorder exports store operations as a counter and a latency histogram.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the store collectors with reg.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	rec := &PrometheusMetricsRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alienrisk",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Snapshot store operations by outcome.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "alienrisk",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Snapshot store operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{rec.operations, rec.durations} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register store metrics: %w", err)
		}
	}
	return rec, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.operations.WithLabelValues(operation, statusOf(success)).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// SpanRecord is one finished span kept by JSONTracer.
type SpanRecord struct {
	Operation string
	Status    string
	Duration  time.Duration
	Error     string
}

// JSONTracer logs every finished span as one slog JSON line and keeps the
// spans for inspection.
type JSONTracer struct {
	logger *slog.Logger
	mu     sync.Mutex
	spans  []SpanRecord
}

// NewJSONTracer returns a tracer writing to w. A nil writer only retains spans.
func NewJSONTracer(w io.Writer) *JSONTracer {
	if w == nil {
		w = io.Discard
	}
	return &JSONTracer{logger: slog.New(slog.NewJSONHandler(w, nil))}
}

// Spans returns a copy of all finished spans.
func (t *JSONTracer) Spans() []SpanRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SpanRecord(nil), t.spans...)
}

// Start implements Tracer.
func (t *JSONTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonSpan{tracer: t, ctx: ctx, operation: operation, started: time.Now()}
}

type jsonSpan struct {
	tracer    *JSONTracer
	ctx       context.Context
	operation string
	started   time.Time
}

func (s *jsonSpan) End(err error) {
	rec := SpanRecord{
		Operation: s.operation,
		Status:    statusOf(err == nil),
		Duration:  time.Since(s.started),
	}
	attrs := []slog.Attr{
		slog.String("operation", rec.Operation),
		slog.String("status", rec.Status),
		slog.Float64("duration_ms", float64(rec.Duration)/float64(time.Millisecond)),
	}
	level := slog.LevelInfo
	if err != nil {
		rec.Error = err.Error()
		attrs = append(attrs, slog.String("error", rec.Error))
		level = slog.LevelWarn
	}
	s.tracer.logger.LogAttrs(s.ctx, level, "span", attrs...)

	s.tracer.mu.Lock()
	s.tracer.spans = append(s.tracer.spans, rec)
	s.tracer.mu.Unlock()
}

// OTelTracer opens OpenTelemetry spans named store.<operation>.
type OTelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer uses provider, or the global provider when nil.
func NewOTelTracer(provider trace.TracerProvider) *OTelTracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &OTelTracer{tracer: provider.Tracer("alienrisk/core")}
}

// Start implements Tracer.
func (t *OTelTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	ctx, span := t.tracer.Start(ctx, "store."+operation,
		trace.WithAttributes(attribute.String("alienrisk.operation", operation)))
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
