package framework_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/davidleathers/cloud-posture-engine/internal/domain/framework"
)

func TestTenantFrameworkConfig_IsRuleEnabled(t *testing.T) {
	cfg := framework.NewTenantFrameworkConfig("tenant-1", "fw-1", []string{"SEC.01", "SEC.02"})

	assert.True(t, cfg.IsRuleEnabled("SEC.01"))
	assert.True(t, cfg.IsRuleEnabled("SEC.02"))
	assert.False(t, cfg.IsRuleEnabled("SEC.03"))

	empty := framework.NewTenantFrameworkConfig("tenant-1", "fw-1", nil)
	assert.False(t, empty.IsRuleEnabled("SEC.01"))
}

func TestTenantFrameworkConfig_ParametersFor(t *testing.T) {
	rule := framework.NewRule("fw-1", "TAG.01", "Required tags", framework.SeverityLow, luaImpl())
	rule.Parameters = map[string]any{
		"requiredTags": []string{"owner"},
		"maxAge":       30,
	}

	tests := []struct {
		name      string
		overrides map[string]map[string]any
		validate  func(t *testing.T, params map[string]any)
	}{
		{
			name: "no overrides returns rule parameters",
			validate: func(t *testing.T, params map[string]any) {
				assert.Equal(t, []string{"owner"}, params["requiredTags"])
				assert.Equal(t, 30, params["maxAge"])
			},
		},
		{
			name: "overrides win over rule parameters",
			overrides: map[string]map[string]any{
				"TAG.01": {"maxAge": 7},
			},
			validate: func(t *testing.T, params map[string]any) {
				assert.Equal(t, 7, params["maxAge"])
				assert.Equal(t, []string{"owner"}, params["requiredTags"])
			},
		},
		{
			name: "overrides for other rules are ignored",
			overrides: map[string]map[string]any{
				"TAG.99": {"maxAge": 1},
			},
			validate: func(t *testing.T, params map[string]any) {
				assert.Equal(t, 30, params["maxAge"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := framework.NewTenantFrameworkConfig("tenant-1", "fw-1", []string{"TAG.01"})
			cfg.RuleOverrides = tt.overrides

			params := cfg.ParametersFor(rule)
			tt.validate(t, params)

			// Merging never mutates the rule's own parameter map.
			assert.Equal(t, 30, rule.Parameters["maxAge"])
		})
	}
}
