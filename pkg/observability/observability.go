// Package observability exports OpenTelemetry metrics for the enforcement
// pipeline: outcome counters and per-stage latency. Disabled by default;
// when disabled all recording methods are no-ops on a nil-safe receiver.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config configures metric export.
type Config struct {
	ServiceName  string
	OTLPEndpoint string // e.g. "localhost:4317"
	Enabled      bool
	Insecure     bool
}

// Provider owns the meter provider and the pipeline instruments.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider

	requestCounter metric.Int64Counter
	blockedCounter metric.Int64Counter
	stageDuration  metric.Float64Histogram
}

// New builds a Provider. With cfg.Enabled false (or a nil cfg) it returns
// nil, which every recording method accepts.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "agent-gateway"
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("observability: create exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter("gateway/enforce")
	p := &Provider{meterProvider: mp}

	if p.requestCounter, err = meter.Int64Counter("gateway.requests",
		metric.WithDescription("Enforcement pipeline outcomes by route")); err != nil {
		return nil, err
	}
	if p.blockedCounter, err = meter.Int64Counter("gateway.blocked",
		metric.WithDescription("Blocked requests by failure code")); err != nil {
		return nil, err
	}
	if p.stageDuration, err = meter.Float64Histogram("gateway.stage.duration",
		metric.WithDescription("Pipeline stage latency in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return p, nil
}

// RecordOutcome counts one pipeline run for a route: outcome is one of
// allowed, challenge, blocked, error.
func (p *Provider) RecordOutcome(ctx context.Context, routeID, outcome string) {
	if p == nil {
		return
	}
	p.requestCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("route", routeID),
		attribute.String("outcome", outcome),
	))
}

// RecordBlocked counts one blocked request by failure code.
func (p *Provider) RecordBlocked(ctx context.Context, routeID, code string) {
	if p == nil {
		return
	}
	p.blockedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("route", routeID),
		attribute.String("code", code),
	))
}

// RecordStage records one stage's latency.
func (p *Provider) RecordStage(ctx context.Context, stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
	))
}

// Shutdown flushes pending metrics.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.meterProvider.Shutdown(ctx)
}
