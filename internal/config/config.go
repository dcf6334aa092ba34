package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries every tunable of the service. Values are resolved with
// the precedence: environment variables > config file > defaults.
type Config struct {
	Profile string `yaml:"profile"` // dev | prod

	HTTPAddr        string        `yaml:"http_addr"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	BodyLimitBytes  int64         `yaml:"body_limit_bytes"`
	APIRateLimitRPM int           `yaml:"api_rate_limit_rpm"`
	VerifyRateLimitRPM int        `yaml:"verify_rate_limit_rpm"`
	MaintenanceAPIKey  string     `yaml:"maintenance_api_key"`
	ReadHeaderTimeout  time.Duration `yaml:"read_header_timeout"`

	DatabaseDriver string `yaml:"database_driver"` // sqlite | postgres
	DatabaseDSN    string `yaml:"database_dsn"`

	RedisAddr     string `yaml:"redis_addr"` // empty disables redis-backed guards
	RedisPassword string `yaml:"redis_password"`

	ArtifactStorePath string `yaml:"artifact_store_path"`

	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	SMTPFrom     string `yaml:"smtp_from"`

	SessionTokenSecret string        `yaml:"session_token_secret"`
	SessionTokenTTL    time.Duration `yaml:"session_token_ttl"`

	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	CodeTTL                 time.Duration `yaml:"code_ttl"`
	ResendCooldown          time.Duration `yaml:"resend_cooldown"`
	CleanupMaxAge           time.Duration `yaml:"cleanup_max_age"`
	SendGuardLimitPerWindow int           `yaml:"send_guard_limit_per_window"`
	SendGuardWindow         time.Duration `yaml:"send_guard_window"`

	LogLevelName string `yaml:"log_level"`

	OTELServiceName           string        `yaml:"otel_service_name"`
	OTELEnvironment           string        `yaml:"otel_environment"`
	OTELExporterOTLPEndpoint  string        `yaml:"otel_exporter_otlp_endpoint"`
	OTELExporterOTLPInsecure  bool          `yaml:"otel_exporter_otlp_insecure"`
	OTELMetricsEnabled        bool          `yaml:"otel_metrics_enabled"`
	OTELTracesEnabled         bool          `yaml:"otel_traces_enabled"`
	OTELLogsEnabled           bool          `yaml:"otel_logs_enabled"`
	OTELMetricsExportInterval time.Duration `yaml:"otel_metrics_export_interval"`

	ShutdownTimeout              time.Duration `yaml:"shutdown_timeout"`
	ShutdownHTTPDrainTimeout     time.Duration `yaml:"shutdown_http_drain_timeout"`
	ShutdownObservabilityTimeout time.Duration `yaml:"shutdown_observability_timeout"`
}

func Default() *Config {
	return &Config{
		Profile:            "dev",
		HTTPAddr:           ":8080",
		CORSOrigins:        []string{"http://localhost:3000"},
		BodyLimitBytes:     1 << 20,
		APIRateLimitRPM:    120,
		VerifyRateLimitRPM: 20,
		ReadHeaderTimeout:  5 * time.Second,

		DatabaseDriver: "sqlite",
		DatabaseDSN:    "file:onboarding.db?_fk=1",

		ArtifactStorePath: "artifacts.db",

		SMTPPort: 587,

		SessionTokenSecret: "",
		SessionTokenTTL:    12 * time.Hour,

		MaxUploadBytes: 10 << 20,

		CodeTTL:                 10 * time.Minute,
		ResendCooldown:          30 * time.Second,
		CleanupMaxAge:           24 * time.Hour,
		SendGuardLimitPerWindow: 10,
		SendGuardWindow:         time.Hour,

		LogLevelName: "info",

		OTELServiceName:           "chat-onboarding-backend",
		OTELEnvironment:           "dev",
		OTELExporterOTLPEndpoint:  "localhost:4317",
		OTELExporterOTLPInsecure:  true,
		OTELMetricsEnabled:        false,
		OTELTracesEnabled:         false,
		OTELLogsEnabled:           false,
		OTELMetricsExportInterval: 15 * time.Second,

		ShutdownTimeout:              20 * time.Second,
		ShutdownHTTPDrainTimeout:     10 * time.Second,
		ShutdownObservabilityTimeout: 5 * time.Second,
	}
}

// Load resolves configuration from an optional YAML file plus environment
// overrides and validates the result. An empty path skips the file stage.
func Load(ctx context.Context, path string, logger *slog.Logger) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			recordConfigValidationEvent(ctx, cfg.Profile, "error", "load")
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			recordConfigValidationEvent(ctx, cfg.Profile, "error", "parse")
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		recordConfigValidationEvent(ctx, cfg.Profile, "error", "validation")
		return nil, fmt.Errorf("validate config: %w", err)
	}
	recordConfigValidationEvent(ctx, cfg.Profile, "success", "none")
	logger.Info("configuration loaded", "profile", cfg.Profile, "file", path)
	return cfg, nil
}

func (c *Config) applyEnv() {
	envString(&c.Profile, "ONBOARDING_PROFILE")
	envString(&c.HTTPAddr, "ONBOARDING_HTTP_ADDR")
	envStringSlice(&c.CORSOrigins, "ONBOARDING_CORS_ORIGINS")
	envString(&c.MaintenanceAPIKey, "ONBOARDING_MAINTENANCE_API_KEY")
	envString(&c.DatabaseDriver, "ONBOARDING_DATABASE_DRIVER")
	envString(&c.DatabaseDSN, "ONBOARDING_DATABASE_DSN")
	envString(&c.RedisAddr, "ONBOARDING_REDIS_ADDR")
	envString(&c.RedisPassword, "ONBOARDING_REDIS_PASSWORD")
	envString(&c.ArtifactStorePath, "ONBOARDING_ARTIFACT_STORE_PATH")
	envString(&c.SMTPHost, "ONBOARDING_SMTP_HOST")
	envInt(&c.SMTPPort, "ONBOARDING_SMTP_PORT")
	envString(&c.SMTPUser, "ONBOARDING_SMTP_USER")
	envString(&c.SMTPPassword, "ONBOARDING_SMTP_PASSWORD")
	envString(&c.SMTPFrom, "ONBOARDING_SMTP_FROM")
	envString(&c.SessionTokenSecret, "ONBOARDING_SESSION_TOKEN_SECRET")
	envString(&c.LogLevelName, "ONBOARDING_LOG_LEVEL")
	envString(&c.OTELServiceName, "OTEL_SERVICE_NAME")
	envString(&c.OTELExporterOTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	envBool(&c.OTELMetricsEnabled, "ONBOARDING_OTEL_METRICS_ENABLED")
	envBool(&c.OTELTracesEnabled, "ONBOARDING_OTEL_TRACES_ENABLED")
	envBool(&c.OTELLogsEnabled, "ONBOARDING_OTEL_LOGS_ENABLED")
}

func (c *Config) Validate() error {
	switch c.Profile {
	case "dev", "prod":
	default:
		return fmt.Errorf("unknown profile %q", c.Profile)
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database driver %q", c.DatabaseDriver)
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr must not be empty")
	}
	if c.SessionTokenSecret == "" {
		if c.Profile == "prod" {
			return fmt.Errorf("session_token_secret is required in prod")
		}
		c.SessionTokenSecret = "dev-insecure-session-token-secret"
	}
	if c.Profile == "prod" && c.SMTPHost == "" {
		return fmt.Errorf("smtp_host is required in prod")
	}
	if c.Profile == "prod" && c.MaintenanceAPIKey == "" {
		return fmt.Errorf("maintenance_api_key is required in prod")
	}
	if c.CodeTTL <= 0 || c.ResendCooldown <= 0 || c.CleanupMaxAge <= 0 {
		return fmt.Errorf("verification durations must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}
	return nil
}

func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevelName)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envStringSlice(dst *[]string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}

func envInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
