package xtdb

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/pyxtdb/xtdb-sdk/go"

// clientMetrics holds the request metrics of a client. Several clients may share
// a registerer; they then share the collectors as well.
type clientMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newClientMetrics(reg prometheus.Registerer) *clientMetrics {
	m := &clientMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xtdb",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Total number of requests sent to the XTDB node.",
		}, []string{"action", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "xtdb",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Duration of requests sent to the XTDB node in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
	}
	if reg == nil {
		return m
	}

	if err := reg.Register(m.requests); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				m.requests = existing
			}
		}
	}
	if err := reg.Register(m.duration); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				m.duration = existing
			}
		}
	}
	return m
}

func (m *clientMetrics) observe(action string, status string, elapsed time.Duration) {
	m.requests.WithLabelValues(action, status).Inc()
	m.duration.WithLabelValues(action).Observe(elapsed.Seconds())
}

func newTracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}

// traceExchange starts the client span of one exchange with the node.
func (c *Client) traceExchange(ctx context.Context, ex *exchange) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "xtdb."+ex.action,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", ex.method),
			attribute.String("url.full", ex.url.String()),
			attribute.String("xtdb.request_id", ex.requestID),
		),
	)
}

// finishExchange records the outcome of an exchange on every observability channel.
func (c *Client) finishExchange(span trace.Span, ex *exchange, statusCode int, elapsed time.Duration, err error) {
	status := "error"
	if statusCode != 0 {
		status = strconv.Itoa(statusCode)
		span.SetAttributes(attribute.Int("http.response.status_code", statusCode))
	}
	c.metrics.observe(ex.action, status, elapsed)

	fields := []zap.Field{
		zap.String("action", ex.action),
		zap.String("method", ex.method),
		zap.String("url", ex.url.String()),
		zap.String("request_id", ex.requestID),
		zap.String("status", status),
		zap.Duration("elapsed", elapsed),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug("xtdb request failed", append(fields, zap.Error(err))...)
		return
	}
	c.logger.Debug("xtdb request", fields...)
}
