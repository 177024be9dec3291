package framework

import (
	"time"
)

// TenantFrameworkConfig is a tenant's selection of which rules run for a
// framework and with what parameter overrides. A rule absent from
// EnabledRules is skipped entirely: not executed, not counted, not scored.
type TenantFrameworkConfig struct {
	TenantID      string                    `json:"tenant_id" validate:"required"`
	FrameworkID   string                    `json:"framework_id" validate:"required"`
	EnabledRules  []string                  `json:"enabled_rules" validate:"dive,required"`
	CustomRules   []Rule                    `json:"custom_rules,omitempty"`
	RuleOverrides map[string]map[string]any `json:"rule_overrides,omitempty"`
	Settings      ConfigSettings            `json:"settings"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConfigSettings are per-tenant evaluation toggles.
type ConfigSettings struct {
	StrictMode           bool `json:"strict_mode"`
	IncludeInformational bool `json:"include_informational"`
}

// NewTenantFrameworkConfig creates a config with every given rule enabled.
func NewTenantFrameworkConfig(tenantID, frameworkID string, enabledRules []string) *TenantFrameworkConfig {
	now := time.Now()
	return &TenantFrameworkConfig{
		TenantID:     tenantID,
		FrameworkID:  frameworkID,
		EnabledRules: enabledRules,
		Settings:     ConfigSettings{IncludeInformational: true},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsRuleEnabled reports whether the tenant enabled the given rule code.
func (c *TenantFrameworkConfig) IsRuleEnabled(ruleID string) bool {
	for _, id := range c.EnabledRules {
		if id == ruleID {
			return true
		}
	}
	return false
}

// ParametersFor merges a rule's own parameters with the tenant's overrides,
// overrides winning. The rule's map is not mutated.
func (c *TenantFrameworkConfig) ParametersFor(rule *Rule) map[string]any {
	merged := make(map[string]any, len(rule.Parameters))
	for k, v := range rule.Parameters {
		merged[k] = v
	}
	for k, v := range c.RuleOverrides[rule.RuleID] {
		merged[k] = v
	}
	return merged
}
