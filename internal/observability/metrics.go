package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/onboardworks/chat-onboarding-backend/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

type AppMetrics struct {
	verificationCounter metric.Int64Counter
	sessionCounter      metric.Int64Counter
	collisionCounter    metric.Int64Counter
	repositoryCounter   metric.Int64Counter
	rateLimitCounter    metric.Int64Counter
	uploadCounter       metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter("chat-onboarding-backend")
	verificationCounter, err := meter.Int64Counter("verification.transitions")
	if err != nil {
		return nil, err
	}
	sessionCounter, err := meter.Int64Counter("session.persist.attempts")
	if err != nil {
		return nil, err
	}
	collisionCounter, err := meter.Int64Counter("session.id.collisions")
	if err != nil {
		return nil, err
	}
	repositoryCounter, err := meter.Int64Counter("repository.operations")
	if err != nil {
		return nil, err
	}
	rateLimitCounter, err := meter.Int64Counter("http.rate_limit.decisions")
	if err != nil {
		return nil, err
	}
	uploadCounter, err := meter.Int64Counter("upload.attempts")
	if err != nil {
		return nil, err
	}

	metricsMu.Lock()
	appMetrics = &AppMetrics{
		verificationCounter: verificationCounter,
		sessionCounter:      sessionCounter,
		collisionCounter:    collisionCounter,
		repositoryCounter:   repositoryCounter,
		rateLimitCounter:    rateLimitCounter,
		uploadCounter:       uploadCounter,
	}
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

// RecordVerificationTransition counts one terminal decision of the email
// verification state machine, tagged by operation and outcome.
func RecordVerificationTransition(ctx context.Context, operation, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.verificationCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("outcome", outcome),
		),
	)
}

func RecordSessionPersist(ctx context.Context, outcome string, created bool) {
	m := current()
	if m == nil {
		return
	}
	m.sessionCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.Bool("created", created),
		),
	)
}

func RecordSessionCollision(ctx context.Context, stage string) {
	m := current()
	if m == nil {
		return
	}
	m.collisionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.repositoryCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("entity", entity),
			attribute.String("operation", operation),
			attribute.String("outcome", outcome),
		),
	)
}

func RecordRateLimitDecision(ctx context.Context, scope, decision string) {
	m := current()
	if m == nil {
		return
	}
	m.rateLimitCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("scope", scope),
			attribute.String("decision", decision),
		),
	)
}

func RecordUpload(ctx context.Context, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.uploadCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
