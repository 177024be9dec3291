package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domain "github.com/davidleathers/cloud-posture-engine/internal/domain/analysis"
	"github.com/davidleathers/cloud-posture-engine/internal/infrastructure/ai"
	"github.com/davidleathers/cloud-posture-engine/internal/infrastructure/cache"
	"github.com/davidleathers/cloud-posture-engine/internal/infrastructure/config"
	storage "github.com/davidleathers/cloud-posture-engine/internal/infrastructure/registry"
	"github.com/davidleathers/cloud-posture-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/cloud-posture-engine/internal/metrics"
	"github.com/davidleathers/cloud-posture-engine/internal/service/analysis"
	"github.com/davidleathers/cloud-posture-engine/internal/service/registry"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		tenantID      = flag.String("tenant", "", "Tenant identifier (required)")
		projectID     = flag.String("project", "", "Project identifier")
		analysisID    = flag.String("analysis", "", "Analysis identifier (generated when empty)")
		frameworks    = flag.String("frameworks", "cloud-best-practices", "Comma-separated framework ids")
		resourcesPath = flag.String("resources", "", "Path to the resource inventory JSON file (required)")
		metricsAddr   = flag.String("metrics-addr", "", "Listen address for the Prometheus endpoint (disabled when empty)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *tenantID == "" || *resourcesPath == "" {
		flag.Usage()
		logger.Fatal("both -tenant and -resources are required")
	}
	if *analysisID == "" {
		*analysisID = uuid.NewString()
	}

	if err := run(ctx, cfg, logger, runOptions{
		TenantID:      *tenantID,
		ProjectID:     *projectID,
		AnalysisID:    *analysisID,
		FrameworkIDs:  splitList(*frameworks),
		ResourcesPath: *resourcesPath,
		MetricsAddr:   *metricsAddr,
	}); err != nil {
		logger.Fatal("analysis run failed", zap.Error(err))
	}
}

type runOptions struct {
	TenantID      string
	ProjectID     string
	AnalysisID    string
	FrameworkIDs  []string
	ResourcesPath string
	MetricsAddr   string
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts runOptions) error {
	provider, err := telemetry.InitializeOpenTelemetry(ctx, &telemetry.Config{
		ServiceName:    "cloud-posture-engine",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SamplingRate:   cfg.Telemetry.SamplingRate,
		ExportTimeout:  30 * time.Second,
		BatchTimeout:   5 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	if opts.MetricsAddr != "" {
		go serveMetrics(opts.MetricsAddr, logger)
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	frameworkCache, err := openCache(cfg, logger)
	if err != nil {
		return err
	}

	registrySvc := registry.NewService(store, frameworkCache, logger)
	if err := registrySvc.InitializeDefaultFrameworks(ctx); err != nil {
		return fmt.Errorf("seed default frameworks: %w", err)
	}

	aiClient, err := openAIClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer aiClient.Close()

	dispatcher := analysis.NewDispatcher(
		analysis.NewAIBackend(aiClient, analysis.AIBackendConfig{
			ModelID:           cfg.AI.ModelID,
			MaxTokens:         cfg.AI.MaxTokens,
			RequestsPerSecond: cfg.AI.RequestsPerSecond,
			Burst:             cfg.AI.Burst,
			Timeout:           cfg.AI.Timeout,
		}, logger),
		analysis.NewScriptBackend(cfg.Sandbox.Timeout, logger),
		logger,
	)
	engine := analysis.NewEngine(registrySvc, dispatcher, analysis.EngineConfig{
		RuleBatchSize:      cfg.Engine.RuleBatchSize,
		FrameworkBatchSize: cfg.Engine.FrameworkBatchSize,
	}, logger)

	resources, err := loadResources(opts.ResourcesPath)
	if err != nil {
		return err
	}
	logger.Info("loaded resource inventory",
		zap.String("path", opts.ResourcesPath),
		zap.Int("resources", len(resources)))

	result, err := engine.ExecuteMultiFrameworkAnalysis(ctx, opts.TenantID, opts.ProjectID, opts.AnalysisID, opts.FrameworkIDs, resources)
	if err != nil {
		return fmt.Errorf("execute analysis: %w", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

// openStore picks postgres when a database url is configured, otherwise the
// in-memory store.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	if cfg.Database.URL == "" {
		logger.Info("no database configured, using in-memory registry store")
		return storage.NewMemoryStore(), nil
	}
	store, err := storage.NewPostgresStore(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect registry store: %w", err)
	}
	return store, nil
}

func openCache(cfg *config.Config, logger *zap.Logger) (*cache.FrameworkCache, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	redisCache, err := cache.NewRedisCache(&cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("connect cache: %w", err)
	}
	return cache.NewFrameworkCache(redisCache, cfg.Cache.TTL, logger), nil
}

func openAIClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ai.Client, error) {
	if cfg.AI.APIKey == "" {
		logger.Warn("no ai api key configured, ai-inference rules will report errors")
		return ai.Disabled(), nil
	}
	client, err := ai.NewGeminiClient(ctx, cfg.AI.APIKey)
	if err != nil {
		return nil, fmt.Errorf("create ai client: %w", err)
	}
	return client, nil
}

func loadResources(path string) ([]domain.ResourceInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resources file: %w", err)
	}
	var resources []domain.ResourceInfo
	if err := json.Unmarshal(data, &resources); err != nil {
		return nil, fmt.Errorf("parse resources file: %w", err)
	}
	return resources, nil
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	logger.Info("serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}

func splitList(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
