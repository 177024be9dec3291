package analysis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	domain "github.com/davidleathers/cloud-posture-engine/internal/domain/analysis"
	"github.com/davidleathers/cloud-posture-engine/internal/domain/framework"
	"github.com/davidleathers/cloud-posture-engine/internal/service/analysis"
)

func scriptRule(t *testing.T, script string) *framework.Rule {
	t.Helper()
	r := framework.NewRule("fw-1", "SEC.01", "Open security group", framework.SeverityCritical, framework.RuleImplementation{
		Kind:    framework.KindSandboxedScript,
		Payload: script,
		Runtime: "lua",
		Timeout: 5 * time.Second,
	})
	r.Category = "network-security"
	r.Pillar = framework.PillarSecurity
	r.Remediation = "Restrict ingress to known CIDRs."
	return r
}

const openSecurityGroupScript = `
for _, r in ipairs(resources) do
  if r.type == "AWS::EC2::SecurityGroup" then
    local props = r.properties or {}
    for _, ing in ipairs(props.ingressRules or {}) do
      if ing.cidr == "0.0.0.0/0" then
        utils.createFinding(r, "Security group open to the world",
          "Ingress rule allows 0.0.0.0/0 on port " .. tostring(ing.port))
      end
    end
  end
end
`

func securityGroupResources() []domain.ResourceInfo {
	return []domain.ResourceInfo{
		{
			Type: "AWS::EC2::SecurityGroup",
			Name: "web-sg",
			Properties: map[string]any{
				"ingressRules": []any{
					map[string]any{"cidr": "0.0.0.0/0", "port": 22},
					map[string]any{"cidr": "10.0.0.0/8", "port": 443},
				},
			},
		},
		{
			Type: "AWS::EC2::SecurityGroup",
			Name: "internal-sg",
			Properties: map[string]any{
				"ingressRules": []any{
					map[string]any{"cidr": "10.0.0.0/8", "port": 5432},
				},
			},
		},
		{Type: "AWS::S3::Bucket", Name: "logs-bucket"},
	}
}

func TestScriptBackend_DetectsOpenSecurityGroup(t *testing.T) {
	backend := analysis.NewScriptBackend(10*time.Second, zaptest.NewLogger(t))

	findings, metadata, err := backend.Evaluate(context.Background(), analysis.DispatchRequest{
		AnalysisID: "an-1",
		Rule:       scriptRule(t, openSecurityGroupScript),
		Resources:  securityGroupResources(),
	})
	require.NoError(t, err)
	assert.Nil(t, metadata)
	require.Len(t, findings, 1)

	f := findings[0]
	assert.Equal(t, "web-sg", f.Resource.Name)
	assert.Equal(t, "Security group open to the world", f.Title)
	assert.Contains(t, f.Description, "port 22")
	assert.Equal(t, framework.SeverityCritical, f.Severity)
	assert.Equal(t, "network-security", f.Category)
	assert.Equal(t, framework.PillarSecurity, f.Pillar)
}

func TestScriptBackend_Deterministic(t *testing.T) {
	backend := analysis.NewScriptBackend(10*time.Second, zaptest.NewLogger(t))
	req := analysis.DispatchRequest{
		AnalysisID: "an-1",
		Rule:       scriptRule(t, openSecurityGroupScript),
		Resources:  securityGroupResources(),
	}

	first, _, err := backend.Evaluate(context.Background(), req)
	require.NoError(t, err)
	second, _, err := backend.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second, "identical inputs must produce identical findings")
}

func TestScriptBackend_ReadsParameters(t *testing.T) {
	backend := analysis.NewScriptBackend(10*time.Second, zaptest.NewLogger(t))

	rule := scriptRule(t, `
local limit = params.maxPort or 0
for _, r in ipairs(resources) do
  if r.type == "AWS::EC2::SecurityGroup" then
    for _, ing in ipairs((r.properties or {}).ingressRules or {}) do
      if ing.port > limit then
        utils.createFinding(r, "Port above limit", "port " .. tostring(ing.port))
      end
    end
  end
end
`)

	findings, _, err := backend.Evaluate(context.Background(), analysis.DispatchRequest{
		AnalysisID: "an-1",
		Rule:       rule,
		Parameters: map[string]any{"maxPort": 1000},
		Resources:  securityGroupResources(),
	})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].Description, "5432")
}

func TestScriptBackend_SandboxHasNoFileAccess(t *testing.T) {
	backend := analysis.NewScriptBackend(10*time.Second, zaptest.NewLogger(t))

	tests := []struct {
		name   string
		script string
	}{
		{name: "os library absent", script: `os.exit(1)`},
		{name: "io library absent", script: `io.open("/etc/passwd")`},
		{name: "dofile removed", script: `dofile("/etc/passwd")`},
		{name: "loadfile removed", script: `loadfile("/etc/passwd")`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := backend.Evaluate(context.Background(), analysis.DispatchRequest{
				AnalysisID: "an-1",
				Rule:       scriptRule(t, tt.script),
				Resources:  nil,
			})
			require.Error(t, err, "escaping the sandbox must fail the script")
		})
	}
}

func TestScriptBackend_SyntaxErrorSurfacesAsError(t *testing.T) {
	backend := analysis.NewScriptBackend(10*time.Second, zaptest.NewLogger(t))

	_, _, err := backend.Evaluate(context.Background(), analysis.DispatchRequest{
		AnalysisID: "an-1",
		Rule:       scriptRule(t, `for broken syntax here`),
		Resources:  nil,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script execution failed")
}

func TestScriptBackend_Timeout(t *testing.T) {
	backend := analysis.NewScriptBackend(10*time.Second, zaptest.NewLogger(t))

	rule := scriptRule(t, `while true do end`)
	rule.Implementation.Timeout = 100 * time.Millisecond

	start := time.Now()
	_, _, err := backend.Evaluate(context.Background(), analysis.DispatchRequest{
		AnalysisID: "an-1",
		Rule:       rule,
		Resources:  nil,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestScriptBackend_RejectsUnknownRuntime(t *testing.T) {
	backend := analysis.NewScriptBackend(10*time.Second, zaptest.NewLogger(t))

	rule := scriptRule(t, `-- noop`)
	rule.Implementation.Runtime = "javascript"

	_, _, err := backend.Evaluate(context.Background(), analysis.DispatchRequest{
		AnalysisID: "an-1",
		Rule:       rule,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported script runtime")
}

func TestScriptBackend_FreshStatePerRun(t *testing.T) {
	backend := analysis.NewScriptBackend(10*time.Second, zaptest.NewLogger(t))

	// First run leaves a global behind; the second must not see it.
	_, _, err := backend.Evaluate(context.Background(), analysis.DispatchRequest{
		AnalysisID: "an-1",
		Rule:       scriptRule(t, `leaked = "value"`),
	})
	require.NoError(t, err)

	findings, _, err := backend.Evaluate(context.Background(), analysis.DispatchRequest{
		AnalysisID: "an-1",
		Rule: scriptRule(t, `
if leaked ~= nil then
  utils.createFinding({}, "state leaked", "saw a global from another run")
end
`),
	})
	require.NoError(t, err)
	assert.Empty(t, findings)
}
