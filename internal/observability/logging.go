package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/onboardworks/chat-onboarding-backend/internal/config"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
)

// NewBootstrapLogger builds the plain handler used before the OTLP log
// bridge is available (config loading, early startup failures).
func NewBootstrapLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// InitLogging wires the process-wide slog default. When the OTLP log
// exporter is enabled, records are bridged to the collector via otelslog;
// otherwise a text handler on stdout is installed.
func InitLogging(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdklog.LoggerProvider, error) {
	if !cfg.OTELLogsEnabled {
		slog.SetDefault(NewBootstrapLogger(cfg.LogLevel()))
		logger.Info("otel log bridge disabled")
		return nil, nil
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp log exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create log resource: %w", err)
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	slog.SetDefault(otelslog.NewLogger("chat-onboarding-backend", otelslog.WithLoggerProvider(lp)))

	logger.Info("otel log bridge initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return lp, nil
}
