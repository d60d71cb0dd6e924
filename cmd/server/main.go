package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/doms-project/crmpulse/internal/adapters/sqlite"
	appservices "github.com/doms-project/crmpulse/internal/app/services"
	"github.com/doms-project/crmpulse/internal/cache"
	"github.com/doms-project/crmpulse/internal/config"
	"github.com/doms-project/crmpulse/internal/crm"
	"github.com/doms-project/crmpulse/internal/db"
	"github.com/doms-project/crmpulse/internal/observability"
	"github.com/doms-project/crmpulse/internal/server"
	"github.com/doms-project/crmpulse/internal/server/routes"
)

func Run() error {
	baseHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	log := slog.New(observability.WrapSlogHandler(baseHandler))
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.IsLocalDevelopment() && cfg.Webhook.Secret == "crmpulse-local-dev" {
		slog.Warn("CRMPULSE_WEBHOOK_SECRET not set, using local development fallback")
	}

	shutdownTelemetry, err := observability.Setup(context.Background(), log, observability.Config{
		Enabled:           cfg.Observability.Enabled,
		OTLPEndpoint:      cfg.Observability.OTLPEndpoint,
		OTLPTraceHeaders:  cfg.Observability.OTLPTraceHeaders,
		OTLPMetricHeaders: cfg.Observability.OTLPMetricHeaders,
		ServiceName:       cfg.Observability.ServiceName,
		ServiceVer:        cfg.Observability.ServiceVer,
		SamplingRatio:     cfg.Observability.SamplingRatio,
		MetricsConsole:    cfg.Observability.MetricsConsole,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Error("Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}()

	if cfg.Database.LogTiming {
		go logDBLatencyStats(log, database)
	}

	client := crm.NewClient(crm.ClientConfig{
		BaseURL:       cfg.CRM.BaseURL,
		APIVersion:    cfg.CRM.APIVersion,
		Timeout:       cfg.CRM.HTTPTimeout(),
		RetryAttempts: cfg.CRM.RetryAttempts,
	}, log)
	collector := crm.NewCollector(client, cfg.CRM.PageDelay(), log)

	metricCache := cache.New()
	failures := sqlite.NewFailureStore(database)

	aggregator := appservices.NewAggregationService(client, collector, metricCache, failures, appservices.AggregatorConfig{
		PageSize:             cfg.CRM.PageSize,
		MaxPages:             cfg.CRM.MaxPages,
		ConversationChannels: cfg.CRM.ConversationChannels,
		ConversationMaxPages: cfg.CRM.ConversationMaxPages,
		SocialLookback:       cfg.CRM.SocialLookback(),
		AgingThreshold:       cfg.CRM.AgingThreshold(),
		CacheTTL:             cfg.Aggregation.CacheTTL(),
		ExtractorTimeout:     cfg.Aggregation.ExtractorTimeout(),
	}, log)
	review := appservices.NewFailureReviewService(failures, client, log)
	invalidation := appservices.NewInvalidationService(metricCache, cfg.Webhook.Secret, log)

	srv := server.New(log, cfg.Observability.Enabled)
	srv.RegisterRouter(routes.NewMetricsRoutes(aggregator, log))
	srv.RegisterRouter(routes.NewFailureRoutes(review, log))
	srv.RegisterRouter(routes.NewWebhookRoutes(invalidation, log))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	slog.Info("Starting server", "port", cfg.Server.Port)
	return srv.Start(addr)
}

func main() {
	if err := Run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func logDBLatencyStats(log *slog.Logger, database *db.Database) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		stats := database.QueryLatencyStats()
		if len(stats) == 0 {
			continue
		}
		limit := 5
		if len(stats) < limit {
			limit = len(stats)
		}
		for _, stat := range stats[:limit] {
			log.Info("db query latency",
				"query", stat.Name,
				"count", stat.Count,
				"p50", stat.P50,
				"p95", stat.P95,
				"max", stat.Max,
			)
		}
	}
}
