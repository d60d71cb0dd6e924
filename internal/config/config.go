package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment   string
	Server        ServerConfig
	Database      DatabaseConfig
	CRM           CRMConfig
	Aggregation   AggregationConfig
	Webhook       WebhookConfig
	Observability ObservabilityConfig
}

type ServerConfig struct {
	Port int
}

type DatabaseConfig struct {
	Path      string
	LogTiming bool
}

type CRMConfig struct {
	BaseURL              string
	APIVersion           string
	HTTPTimeoutMS        int
	PageSize             int
	MaxPages             int
	PageDelayMS          int
	RetryAttempts        int
	ConversationChannels []string
	ConversationMaxPages int
	SocialLookbackDays   int
	AgingThresholdDays   int
}

type AggregationConfig struct {
	CacheTTLSeconds         int
	ExtractorTimeoutSeconds int
}

type WebhookConfig struct {
	Secret string
}

type ObservabilityConfig struct {
	Enabled           bool
	OTLPEndpoint      string
	OTLPTraceHeaders  map[string]string
	OTLPMetricHeaders map[string]string
	ServiceName       string
	ServiceVer        string
	SamplingRatio     float64
	MetricsConsole    bool
}

func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("crmpulse_env", "")
	v.SetDefault("app_env", "")
	v.SetDefault("go_env", "")
	v.SetDefault("crmpulse_port", 8080)
	v.SetDefault("crmpulse_db_path", "data/default")
	v.SetDefault("crmpulse_db_log_timing", false)
	v.SetDefault("crm_base_url", "https://services.leadconnectorhq.com")
	v.SetDefault("crm_api_version", "2021-07-28")
	v.SetDefault("crm_http_timeout_ms", 15000)
	v.SetDefault("crm_page_size", 100)
	v.SetDefault("crm_max_pages", 10)
	v.SetDefault("crm_page_delay_ms", 150)
	v.SetDefault("crm_retry_attempts", 2)
	v.SetDefault("crm_conversation_channels", "sms")
	v.SetDefault("crm_conversation_max_pages", 3)
	v.SetDefault("crm_social_lookback_days", 30)
	v.SetDefault("crm_aging_threshold_days", 30)
	v.SetDefault("crmpulse_cache_ttl_s", 900)
	v.SetDefault("crmpulse_extractor_timeout_s", 20)
	v.SetDefault("crmpulse_webhook_secret", "")
	v.SetDefault("crmpulse_otel_enabled", false)
	v.SetDefault("otel_exporter_otlp_endpoint", "")
	v.SetDefault("otel_exporter_otlp_headers", "")
	v.SetDefault("otel_exporter_otlp_traces_headers", "")
	v.SetDefault("otel_exporter_otlp_metrics_headers", "")
	v.SetDefault("otel_service_name", "crmpulse")
	v.SetDefault("crmpulse_service_name", "crmpulse")
	v.SetDefault("crmpulse_version", "dev")
	v.SetDefault("otel_service_version", "")
	v.SetDefault("crmpulse_otel_sampling_ratio", 1.0)
	v.SetDefault("crmpulse_otel_metrics_console", false)

	env := resolveEnvironment(v)
	port := v.GetInt("crmpulse_port")
	if port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("invalid CRMPULSE_PORT: %d", port)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(v.GetString("crm_base_url")), "/")
	if baseURL == "" {
		return Config{}, fmt.Errorf("CRM_BASE_URL is required")
	}

	pageSize := clampInt(v.GetInt("crm_page_size"), 1, 500, 100)
	maxPages := clampInt(v.GetInt("crm_max_pages"), 1, 100, 10)
	pageDelay := clampInt(v.GetInt("crm_page_delay_ms"), 0, 10000, 150)
	retryAttempts := clampInt(v.GetInt("crm_retry_attempts"), 0, 5, 2)
	convMaxPages := clampInt(v.GetInt("crm_conversation_max_pages"), 1, maxPages, 3)
	socialLookback := clampInt(v.GetInt("crm_social_lookback_days"), 1, 365, 30)
	agingThreshold := clampInt(v.GetInt("crm_aging_threshold_days"), 1, 365, 30)
	cacheTTL := clampInt(v.GetInt("crmpulse_cache_ttl_s"), 1, 86400, 900)
	extractorTimeout := clampInt(v.GetInt("crmpulse_extractor_timeout_s"), 1, 300, 20)

	samplingRatio := v.GetFloat64("crmpulse_otel_sampling_ratio")
	if samplingRatio < 0 {
		samplingRatio = 0
	}
	if samplingRatio > 1 {
		samplingRatio = 1
	}

	serviceName := strings.TrimSpace(v.GetString("otel_service_name"))
	if serviceName == "" {
		serviceName = strings.TrimSpace(v.GetString("crmpulse_service_name"))
	}
	if serviceName == "" {
		serviceName = "crmpulse"
	}

	serviceVersion := strings.TrimSpace(v.GetString("crmpulse_version"))
	if serviceVersion == "" {
		serviceVersion = strings.TrimSpace(v.GetString("otel_service_version"))
	}
	if serviceVersion == "" {
		serviceVersion = "dev"
	}

	otlpEndpoint := strings.TrimSpace(v.GetString("otel_exporter_otlp_endpoint"))
	otlpCommonHeaders := parseOTLPHeaders(v.GetString("otel_exporter_otlp_headers"))
	otlpTraceHeaders := parseOTLPHeaders(v.GetString("otel_exporter_otlp_traces_headers"))
	otlpMetricHeaders := parseOTLPHeaders(v.GetString("otel_exporter_otlp_metrics_headers"))
	metricsConsole := v.GetBool("crmpulse_otel_metrics_console")
	otelEnabled := v.GetBool("crmpulse_otel_enabled") || otlpEndpoint != "" || metricsConsole

	cfg := Config{
		Environment: env,
		Server:      ServerConfig{Port: port},
		Database: DatabaseConfig{
			Path:      strings.TrimSpace(v.GetString("crmpulse_db_path")),
			LogTiming: v.GetBool("crmpulse_db_log_timing"),
		},
		CRM: CRMConfig{
			BaseURL:              baseURL,
			APIVersion:           strings.TrimSpace(v.GetString("crm_api_version")),
			HTTPTimeoutMS:        clampInt(v.GetInt("crm_http_timeout_ms"), 1000, 120000, 15000),
			PageSize:             pageSize,
			MaxPages:             maxPages,
			PageDelayMS:          pageDelay,
			RetryAttempts:        retryAttempts,
			ConversationChannels: splitList(v.GetString("crm_conversation_channels")),
			ConversationMaxPages: convMaxPages,
			SocialLookbackDays:   socialLookback,
			AgingThresholdDays:   agingThreshold,
		},
		Aggregation: AggregationConfig{
			CacheTTLSeconds:         cacheTTL,
			ExtractorTimeoutSeconds: extractorTimeout,
		},
		Webhook: WebhookConfig{
			Secret: strings.TrimSpace(v.GetString("crmpulse_webhook_secret")),
		},
		Observability: ObservabilityConfig{
			Enabled:           otelEnabled,
			OTLPEndpoint:      otlpEndpoint,
			OTLPTraceHeaders:  mergeHeaderMaps(otlpCommonHeaders, otlpTraceHeaders),
			OTLPMetricHeaders: mergeHeaderMaps(otlpCommonHeaders, otlpMetricHeaders),
			ServiceName:       serviceName,
			ServiceVer:        serviceVersion,
			SamplingRatio:     samplingRatio,
			MetricsConsole:    metricsConsole,
		},
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/default"
	}
	if len(cfg.CRM.ConversationChannels) == 0 {
		cfg.CRM.ConversationChannels = []string{"sms"}
	}
	if !cfg.IsLocalDevelopment() && cfg.Webhook.Secret == "" {
		return Config{}, fmt.Errorf("CRMPULSE_WEBHOOK_SECRET is required outside local/dev environments")
	}
	if cfg.IsLocalDevelopment() && cfg.Webhook.Secret == "" {
		cfg.Webhook.Secret = "crmpulse-local-dev"
	}

	return cfg, nil
}

func (c Config) IsLocalDevelopment() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "", "local", "dev", "development", "test":
		return true
	default:
		return false
	}
}

// HTTPTimeout is the upstream client request timeout.
func (c CRMConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMS) * time.Millisecond
}

// PageDelay is the lower bound between successive traversal requests.
func (c CRMConfig) PageDelay() time.Duration {
	return time.Duration(c.PageDelayMS) * time.Millisecond
}

// SocialLookback is the recent-post window for social engagement.
func (c CRMConfig) SocialLookback() time.Duration {
	return time.Duration(c.SocialLookbackDays) * 24 * time.Hour
}

// AgingThreshold is the open-opportunity age that marks it aging.
func (c CRMConfig) AgingThreshold() time.Duration {
	return time.Duration(c.AgingThresholdDays) * 24 * time.Hour
}

// CacheTTL is the aggregate memoization lifetime.
func (c AggregationConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// ExtractorTimeout bounds one extractor's traversal during fan-out.
func (c AggregationConfig) ExtractorTimeout() time.Duration {
	return time.Duration(c.ExtractorTimeoutSeconds) * time.Second
}

func clampInt(value, low, high, fallback int) int {
	if value == 0 {
		return fallback
	}
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseOTLPHeaders(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pair := strings.SplitN(part, "=", 2)
		if len(pair) != 2 {
			continue
		}
		key := strings.TrimSpace(pair[0])
		value := strings.TrimSpace(pair[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func mergeHeaderMaps(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func resolveEnvironment(v *viper.Viper) string {
	for _, key := range []string{"crmpulse_env", "app_env", "go_env"} {
		value := strings.TrimSpace(v.GetString(key))
		if value != "" {
			return strings.ToLower(value)
		}
	}
	return ""
}
