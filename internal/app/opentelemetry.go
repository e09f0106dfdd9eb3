package app

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/ayxworxfr/go_rbac/internal/config"
	"github.com/ayxworxfr/go_rbac/pkg/logger"
)

type Shutdownable interface {
	Shutdown(context.Context) error
}

type noopShutdown struct{}

func (noopShutdown) Shutdown(context.Context) error { return nil }

// newExporter 根据协议选择 OTLP 客户端，默认 grpc
func newExporter(ctx context.Context, cfg config.OpenTelemetryConfig) (trace.SpanExporter, string, error) {
	switch cfg.Protocol {
	case "http", "http/protobuf":
		client := otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
		exporter, err := otlptrace.New(ctx, client)
		return exporter, "http/protobuf", err
	case "", "grpc":
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
		exporter, err := otlptrace.New(ctx, client)
		return exporter, "grpc", err
	default:
		return nil, "", errors.Errorf("unsupported otlp protocol %q", cfg.Protocol)
	}
}

// InitOpenTelemetry 安装全局 TracerProvider；未启用时返回空实现，
// 引擎与仓储的 span 落到 otel 默认的 noop provider 上
func InitOpenTelemetry(ctx context.Context, cfg config.OpenTelemetryConfig) (Shutdownable, error) {
	if !cfg.Enable {
		return noopShutdown{}, nil
	}

	exporter, protocol, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create OTLP exporter")
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.Service),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create resource")
	}

	tracerProvider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(cfg.Sampling))),
	)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetTracerProvider(tracerProvider)

	logger.Infof(ctx, "OpenTelemetry initialized: service=%s, endpoint=%s, protocol=%s, sampling=%.2f",
		cfg.Service, cfg.Endpoint, protocol, cfg.Sampling)

	return tracerProvider, nil
}
