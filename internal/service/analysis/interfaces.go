package analysis

import (
	"context"

	"github.com/davidleathers/cloud-posture-engine/internal/domain/analysis"
	"github.com/davidleathers/cloud-posture-engine/internal/domain/framework"
)

// Registry is the engine's view of the framework registry. The concrete
// registry service satisfies this; tests substitute fakes.
type Registry interface {
	GetFramework(ctx context.Context, frameworkID string) (*framework.Framework, error)
	GetAllFrameworkRules(ctx context.Context, frameworkID string) ([]framework.Rule, error)
	GetTenantFrameworkConfig(ctx context.Context, tenantID, frameworkID string) (*framework.TenantFrameworkConfig, error)
}

// RuleDispatcher evaluates one rule against the resource set. Implementations
// never panic across this boundary and never return an error alongside a
// usable result: backend failure is reported inside the result.
type RuleDispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) analysis.RuleExecutionResult
}

// Backend evaluates rules of one implementation kind. Backends return raw
// findings; the dispatcher assigns ids and maps them to execution results.
type Backend interface {
	Evaluate(ctx context.Context, req DispatchRequest) ([]analysis.Finding, map[string]string, error)
}

// DispatchRequest carries everything a backend needs to evaluate one rule.
type DispatchRequest struct {
	AnalysisID string
	TenantID   string
	Rule       *framework.Rule
	Parameters map[string]any
	Resources  []analysis.ResourceInfo
}
