package analysis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	domain "github.com/davidleathers/cloud-posture-engine/internal/domain/analysis"
	"github.com/davidleathers/cloud-posture-engine/internal/domain/framework"
	apperrors "github.com/davidleathers/cloud-posture-engine/internal/errors"
	"github.com/davidleathers/cloud-posture-engine/internal/metrics"
)

// Dispatcher routes one rule to the backend matching its implementation
// kind, maps the outcome to an execution result and assigns deterministic
// finding ids. It never retries and never lets a backend failure escape as
// an error; everything a backend can do wrong ends up inside the result.
type Dispatcher struct {
	aiBackend     Backend
	scriptBackend Backend
	logger        *zap.Logger
}

func NewDispatcher(aiBackend, scriptBackend Backend, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		aiBackend:     aiBackend,
		scriptBackend: scriptBackend,
		logger:        logger.Named("dispatcher"),
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) domain.RuleExecutionResult {
	start := time.Now()
	rule := req.Rule
	kind := rule.Implementation.Kind

	findings, metadata, err := d.evaluate(ctx, kind, req)
	elapsed := time.Since(start)

	result := domain.RuleExecutionResult{
		RuleID:          rule.RuleID,
		ExecutionTimeMs: elapsed.Milliseconds(),
		Metadata:        metadata,
	}
	switch {
	case err != nil:
		result.Status = domain.StatusError
		result.Error = err.Error()
		d.logger.Warn("rule evaluation failed",
			zap.String("rule_id", rule.RuleID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	case len(findings) > 0:
		result.Status = domain.StatusFail
	default:
		result.Status = domain.StatusPass
	}

	for i := range findings {
		findings[i].ID = domain.FindingID(req.AnalysisID, rule.RuleID, i+1)
		metrics.RecordFinding(string(findings[i].Severity))
	}
	result.Findings = findings

	metrics.RecordRuleDispatch(string(kind), string(result.Status), elapsed)
	return result
}

func (d *Dispatcher) evaluate(ctx context.Context, kind framework.ImplementationKind, req DispatchRequest) ([]domain.Finding, map[string]string, error) {
	switch kind {
	case framework.KindAIInference:
		return d.aiBackend.Evaluate(ctx, req)
	case framework.KindSandboxedScript:
		return d.scriptBackend.Evaluate(ctx, req)
	case framework.KindDeclarativePolicy, framework.KindExternalProcess:
		// Recognized extension points without an evaluator yet. Treated as
		// a clean pass so frameworks carrying them still score.
		d.logger.Warn("implementation kind has no evaluator",
			zap.String("rule_id", req.Rule.RuleID),
			zap.String("kind", string(kind)))
		return nil, map[string]string{"backend_implemented": "false"}, nil
	default:
		return nil, nil, apperrors.NewBackendError(fmt.Sprintf("unknown implementation kind %q", kind))
	}
}
