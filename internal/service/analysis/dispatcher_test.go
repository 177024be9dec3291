package analysis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	domain "github.com/davidleathers/cloud-posture-engine/internal/domain/analysis"
	"github.com/davidleathers/cloud-posture-engine/internal/domain/framework"
	"github.com/davidleathers/cloud-posture-engine/internal/service/analysis"
)

type stubBackend struct {
	findings []domain.Finding
	metadata map[string]string
	err      error
}

func (s *stubBackend) Evaluate(context.Context, analysis.DispatchRequest) ([]domain.Finding, map[string]string, error) {
	return s.findings, s.metadata, s.err
}

func ruleOfKind(kind framework.ImplementationKind) *framework.Rule {
	r := framework.NewRule("fw-1", "R.01", "Some rule", framework.SeverityMedium, framework.RuleImplementation{
		Kind:    kind,
		Payload: "payload",
	})
	r.Category = "governance"
	return r
}

func TestDispatcher_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		backend  *stubBackend
		validate func(t *testing.T, result domain.RuleExecutionResult)
	}{
		{
			name:    "zero findings maps to pass",
			backend: &stubBackend{},
			validate: func(t *testing.T, result domain.RuleExecutionResult) {
				assert.Equal(t, domain.StatusPass, result.Status)
				assert.Empty(t, result.Findings)
				assert.Empty(t, result.Error)
			},
		},
		{
			name: "findings map to fail",
			backend: &stubBackend{findings: []domain.Finding{
				{RuleID: "R.01", Severity: framework.SeverityMedium, Title: "violation"},
			}},
			validate: func(t *testing.T, result domain.RuleExecutionResult) {
				assert.Equal(t, domain.StatusFail, result.Status)
				require.Len(t, result.Findings, 1)
			},
		},
		{
			name:    "backend error maps to error status, never a Go error",
			backend: &stubBackend{err: errors.New("backend exploded")},
			validate: func(t *testing.T, result domain.RuleExecutionResult) {
				assert.Equal(t, domain.StatusError, result.Status)
				assert.Contains(t, result.Error, "backend exploded")
				assert.Empty(t, result.Findings)
			},
		},
		{
			name:    "backend metadata is preserved",
			backend: &stubBackend{metadata: map[string]string{"ai_response_parsed": "false"}},
			validate: func(t *testing.T, result domain.RuleExecutionResult) {
				assert.Equal(t, domain.StatusPass, result.Status)
				assert.Equal(t, "false", result.Metadata["ai_response_parsed"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := analysis.NewDispatcher(tt.backend, tt.backend, zaptest.NewLogger(t))
			result := d.Dispatch(context.Background(), analysis.DispatchRequest{
				AnalysisID: "an-1",
				Rule:       ruleOfKind(framework.KindSandboxedScript),
			})
			assert.Equal(t, "R.01", result.RuleID)
			tt.validate(t, result)
		})
	}
}

func TestDispatcher_AssignsDeterministicFindingIDs(t *testing.T) {
	backend := &stubBackend{findings: []domain.Finding{
		{RuleID: "R.01", Title: "first"},
		{RuleID: "R.01", Title: "second"},
		{RuleID: "R.01", Title: "third"},
	}}
	d := analysis.NewDispatcher(backend, backend, zaptest.NewLogger(t))

	result := d.Dispatch(context.Background(), analysis.DispatchRequest{
		AnalysisID: "an-1",
		Rule:       ruleOfKind(framework.KindSandboxedScript),
	})
	require.Len(t, result.Findings, 3)
	assert.Equal(t, "an-1-R.01-001", result.Findings[0].ID)
	assert.Equal(t, "an-1-R.01-002", result.Findings[1].ID)
	assert.Equal(t, "an-1-R.01-003", result.Findings[2].ID)
}

func TestDispatcher_RoutesByKind(t *testing.T) {
	aiBackend := &stubBackend{findings: []domain.Finding{{RuleID: "R.01", Title: "from ai"}}}
	scriptBackend := &stubBackend{findings: []domain.Finding{{RuleID: "R.01", Title: "from script"}}}
	d := analysis.NewDispatcher(aiBackend, scriptBackend, zaptest.NewLogger(t))

	result := d.Dispatch(context.Background(), analysis.DispatchRequest{
		AnalysisID: "an-1",
		Rule:       ruleOfKind(framework.KindAIInference),
	})
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "from ai", result.Findings[0].Title)

	result = d.Dispatch(context.Background(), analysis.DispatchRequest{
		AnalysisID: "an-1",
		Rule:       ruleOfKind(framework.KindSandboxedScript),
	})
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "from script", result.Findings[0].Title)
}

func TestDispatcher_StubKindsPassWithMarker(t *testing.T) {
	d := analysis.NewDispatcher(&stubBackend{}, &stubBackend{}, zaptest.NewLogger(t))

	for _, kind := range []framework.ImplementationKind{framework.KindDeclarativePolicy, framework.KindExternalProcess} {
		result := d.Dispatch(context.Background(), analysis.DispatchRequest{
			AnalysisID: "an-1",
			Rule:       ruleOfKind(kind),
		})
		assert.Equal(t, domain.StatusPass, result.Status, "kind %s", kind)
		assert.Empty(t, result.Findings)
		assert.Equal(t, "false", result.Metadata["backend_implemented"])
	}
}

func TestDispatcher_UnknownKindIsAnErrorResult(t *testing.T) {
	d := analysis.NewDispatcher(&stubBackend{}, &stubBackend{}, zaptest.NewLogger(t))

	result := d.Dispatch(context.Background(), analysis.DispatchRequest{
		AnalysisID: "an-1",
		Rule:       ruleOfKind("quantum-oracle"),
	})
	assert.Equal(t, domain.StatusError, result.Status)
	assert.Contains(t, result.Error, "BACKEND_ERROR")
	assert.Contains(t, result.Error, "unknown implementation kind")
}

func TestDispatcher_RecordsExecutionTime(t *testing.T) {
	slow := &slowBackend{delay: 20 * time.Millisecond}
	d := analysis.NewDispatcher(slow, slow, zaptest.NewLogger(t))

	result := d.Dispatch(context.Background(), analysis.DispatchRequest{
		AnalysisID: "an-1",
		Rule:       ruleOfKind(framework.KindSandboxedScript),
	})
	assert.GreaterOrEqual(t, result.ExecutionTimeMs, int64(20))
}

type slowBackend struct {
	delay time.Duration
}

func (s *slowBackend) Evaluate(ctx context.Context, _ analysis.DispatchRequest) ([]domain.Finding, map[string]string, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
	}
	return nil, nil, nil
}
