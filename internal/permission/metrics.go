package permission

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "rbac"

var tracer = otel.Tracer(instrumentationName)

// metrics 引擎指标，未配置 MeterProvider 时为空实现
type metrics struct {
	hits      metric.Int64Counter
	misses    metric.Int64Counter
	evictions metric.Int64Counter
	cycles    metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter(instrumentationName)
	return &metrics{
		hits:      counter(meter, "rbac.cache.hits", "permission cache hits"),
		misses:    counter(meter, "rbac.cache.misses", "permission cache misses"),
		evictions: counter(meter, "rbac.cache.evictions", "permission cache invalidations"),
		cycles:    counter(meter, "rbac.hierarchy.cycles", "hierarchy cycles detected during traversal"),
	}
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		c, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter(name)
	}
	return c
}

func (m *metrics) hit(ctx context.Context, table string) {
	m.hits.Add(ctx, 1, metric.WithAttributes(attribute.String("table", table)))
}

func (m *metrics) miss(ctx context.Context, table string) {
	m.misses.Add(ctx, 1, metric.WithAttributes(attribute.String("table", table)))
}

func (m *metrics) evict(ctx context.Context, reason string) {
	m.evictions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *metrics) cycle(ctx context.Context, kind string) {
	m.cycles.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// startSpan 开启引擎内部 span
func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
