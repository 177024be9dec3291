package analysis

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	domain "github.com/davidleathers/cloud-posture-engine/internal/domain/analysis"
	"github.com/davidleathers/cloud-posture-engine/internal/domain/framework"
	"github.com/davidleathers/cloud-posture-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/cloud-posture-engine/internal/metrics"
)

// EngineConfig bounds the engine's two fan-out stages.
type EngineConfig struct {
	RuleBatchSize      int
	FrameworkBatchSize int
}

// DefaultEngineConfig returns sane production bounds.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		RuleBatchSize:      5,
		FrameworkBatchSize: 3,
	}
}

// Engine runs compliance frameworks against a caller-supplied resource
// inventory. It is stateless between invocations; the registry and the
// dispatcher are the only shared handles and both are safe for concurrent
// use.
type Engine struct {
	registry   Registry
	dispatcher RuleDispatcher
	config     EngineConfig
	logger     *zap.Logger
	tracer     trace.Tracer
}

func NewEngine(registry Registry, dispatcher RuleDispatcher, config EngineConfig, logger *zap.Logger) *Engine {
	if config.RuleBatchSize <= 0 {
		config.RuleBatchSize = 5
	}
	if config.FrameworkBatchSize <= 0 {
		config.FrameworkBatchSize = 3
	}
	return &Engine{
		registry:   registry,
		dispatcher: dispatcher,
		config:     config,
		logger:     logger.Named("engine"),
		tracer:     telemetry.Tracer("analysis.engine"),
	}
}

// ExecuteSingleFramework evaluates one framework for a tenant. Pipeline-level
// failures (framework or tenant config missing) surface as a failed result,
// not as a Go error; the error return is reserved for invalid invocations.
func (e *Engine) ExecuteSingleFramework(ctx context.Context, tenantID, projectID, analysisID, frameworkID string, resources []domain.ResourceInfo) (*domain.FrameworkAnalysisResult, error) {
	if tenantID == "" || frameworkID == "" {
		return nil, fmt.Errorf("tenant id and framework id are required")
	}
	result := e.executeFramework(ctx, tenantID, projectID, analysisID, frameworkID, resources)
	return &result, nil
}

// ExecuteMultiFrameworkAnalysis evaluates a set of frameworks with bounded
// concurrency and rolls the outcomes into one aggregate result. Individual
// framework failures never abort siblings; they show up as failed framework
// results inside a partial (or failed) aggregate.
func (e *Engine) ExecuteMultiFrameworkAnalysis(ctx context.Context, tenantID, projectID, analysisID string, frameworkIDs []string, resources []domain.ResourceInfo) (*domain.MultiFrameworkAnalysisResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	if len(frameworkIDs) == 0 {
		return nil, fmt.Errorf("at least one framework id is required")
	}

	ctx, span := e.tracer.Start(ctx, "analysis.execute",
		trace.WithAttributes(
			attribute.String("analysis.id", analysisID),
			attribute.String("tenant.id", tenantID),
			attribute.Int("framework.count", len(frameworkIDs)),
		))
	defer span.End()

	start := time.Now()
	e.logger.Info("starting multi-framework analysis",
		zap.String("analysis_id", analysisID),
		zap.String("tenant_id", tenantID),
		zap.Int("frameworks", len(frameworkIDs)),
		zap.Int("resources", len(resources)))

	frameworkResults := runBatches(ctx, frameworkIDs, e.config.FrameworkBatchSize,
		func(ctx context.Context, frameworkID string) domain.FrameworkAnalysisResult {
			return e.executeFramework(ctx, tenantID, projectID, analysisID, frameworkID, resources)
		},
		func(frameworkID string, recovered any) domain.FrameworkAnalysisResult {
			e.logger.Error("framework execution panicked",
				zap.String("framework_id", frameworkID),
				zap.Any("panic", recovered))
			return domain.FrameworkAnalysisResult{
				AnalysisID:  analysisID,
				TenantID:    tenantID,
				ProjectID:   projectID,
				FrameworkID: frameworkID,
				Status:      domain.AnalysisFailed,
				Error:       panicMessage(recovered),
				StartedAt:   time.Now(),
				CompletedAt: time.Now(),
			}
		})

	completed := 0
	for _, fr := range frameworkResults {
		if fr.Status == domain.AnalysisCompleted {
			completed++
		}
	}
	status := domain.AnalysisPartial
	switch completed {
	case len(frameworkResults):
		status = domain.AnalysisCompleted
	case 0:
		status = domain.AnalysisFailed
	}

	end := time.Now()
	result := &domain.MultiFrameworkAnalysisResult{
		AnalysisID:       analysisID,
		TenantID:         tenantID,
		ProjectID:        projectID,
		Status:           status,
		FrameworkResults: frameworkResults,
		Summary:          domain.ComputeAggregatedSummary(frameworkResults),
		StartedAt:        start,
		CompletedAt:      end,
		DurationMs:       end.Sub(start).Milliseconds(),
	}

	metrics.RecordAnalysis(string(status), end.Sub(start))
	e.logger.Info("multi-framework analysis finished",
		zap.String("analysis_id", analysisID),
		zap.String("status", string(status)),
		zap.Int("completed_frameworks", completed),
		zap.Int64("duration_ms", result.DurationMs))
	return result, nil
}

func (e *Engine) executeFramework(ctx context.Context, tenantID, projectID, analysisID, frameworkID string, resources []domain.ResourceInfo) domain.FrameworkAnalysisResult {
	ctx, span := e.tracer.Start(ctx, "analysis.framework",
		trace.WithAttributes(
			attribute.String("analysis.id", analysisID),
			attribute.String("framework.id", frameworkID),
		))
	defer span.End()

	start := time.Now()
	result := domain.FrameworkAnalysisResult{
		AnalysisID:  analysisID,
		TenantID:    tenantID,
		ProjectID:   projectID,
		FrameworkID: frameworkID,
		StartedAt:   start,
	}
	fail := func(err error) domain.FrameworkAnalysisResult {
		telemetry.RecordError(span, err)
		e.logger.Warn("framework execution failed",
			zap.String("analysis_id", analysisID),
			zap.String("framework_id", frameworkID),
			zap.Error(err))
		end := time.Now()
		result.Status = domain.AnalysisFailed
		result.Error = err.Error()
		result.CompletedAt = end
		result.DurationMs = end.Sub(start).Milliseconds()
		metrics.RecordFrameworkExecution(frameworkID, string(domain.AnalysisFailed))
		return result
	}

	fw, err := e.registry.GetFramework(ctx, frameworkID)
	if err != nil {
		return fail(fmt.Errorf("resolve framework: %w", err))
	}
	result.FrameworkName = fw.Name

	tenantConfig, err := e.registry.GetTenantFrameworkConfig(ctx, tenantID, frameworkID)
	if err != nil {
		return fail(fmt.Errorf("resolve tenant config: %w", err))
	}

	rules, err := e.registry.GetAllFrameworkRules(ctx, frameworkID)
	if err != nil {
		return fail(fmt.Errorf("fetch framework rules: %w", err))
	}

	enabled := make([]framework.Rule, 0, len(rules))
	for _, rule := range rules {
		if tenantConfig.IsRuleEnabled(rule.RuleID) {
			enabled = append(enabled, rule)
		}
	}
	e.logger.Debug("evaluating framework rules",
		zap.String("framework_id", frameworkID),
		zap.Int("total_rules", len(rules)),
		zap.Int("enabled_rules", len(enabled)))

	ruleResults := runBatches(ctx, enabled, e.config.RuleBatchSize,
		func(ctx context.Context, rule framework.Rule) domain.RuleExecutionResult {
			return e.dispatcher.Dispatch(ctx, DispatchRequest{
				AnalysisID: analysisID,
				TenantID:   tenantID,
				Rule:       &rule,
				Parameters: tenantConfig.ParametersFor(&rule),
				Resources:  resources,
			})
		},
		func(rule framework.Rule, recovered any) domain.RuleExecutionResult {
			e.logger.Error("rule evaluation panicked",
				zap.String("rule_id", rule.RuleID),
				zap.Any("panic", recovered))
			return domain.RuleExecutionResult{
				RuleID: rule.RuleID,
				Status: domain.StatusError,
				Error:  panicMessage(recovered),
			}
		})

	findings := make([]domain.Finding, 0)
	for _, rr := range ruleResults {
		findings = append(findings, rr.Findings...)
	}

	end := time.Now()
	result.Status = domain.AnalysisCompleted
	result.RuleResults = ruleResults
	result.Findings = findings
	result.Summary = domain.ComputeFrameworkSummary(ruleResults)
	result.CompletedAt = end
	result.DurationMs = end.Sub(start).Milliseconds()

	telemetry.AddEvent(span, "framework.evaluated",
		attribute.Int("rules.evaluated", len(ruleResults)),
		attribute.Int("findings.count", len(findings)),
	)
	metrics.RecordFrameworkExecution(frameworkID, string(domain.AnalysisCompleted))
	return result
}
