package framework

import (
	"fmt"
	"time"
)

// Rule is a single checkable condition within a framework. The RuleID is the
// human-facing code (e.g. "SEC.01"), unique within its framework but not
// globally. The Implementation tag selects which evaluation backend
// understands the payload.
type Rule struct {
	ID          string   `json:"id"`
	FrameworkID string   `json:"framework_id"`
	RuleID      string   `json:"rule_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Pillar      Pillar   `json:"pillar,omitempty"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags,omitempty"`

	Implementation RuleImplementation `json:"implementation"`
	Conditions     map[string]any     `json:"conditions,omitempty"`
	Parameters     map[string]any     `json:"parameters,omitempty"`
	Remediation    string             `json:"remediation,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RuleImplementation is a tagged union: Kind selects the backend that
// understands Payload (a prompt template for ai-inference, a script body for
// sandboxed-script).
type RuleImplementation struct {
	Kind        ImplementationKind `json:"kind"`
	Payload     string             `json:"payload"`
	Runtime     string             `json:"runtime,omitempty"`
	Timeout     time.Duration      `json:"timeout,omitempty"`
	MaxMemoryMB int                `json:"max_memory_mb,omitempty"`
}

type ImplementationKind string

const (
	KindAIInference       ImplementationKind = "ai-inference"
	KindSandboxedScript   ImplementationKind = "sandboxed-script"
	KindDeclarativePolicy ImplementationKind = "declarative-policy"
	KindExternalProcess   ImplementationKind = "external-process"
)

func (k ImplementationKind) Valid() bool {
	switch k {
	case KindAIInference, KindSandboxedScript, KindDeclarativePolicy, KindExternalProcess:
		return true
	}
	return false
}

type Severity string

const (
	SeverityCritical      Severity = "critical"
	SeverityHigh          Severity = "high"
	SeverityMedium        Severity = "medium"
	SeverityLow           Severity = "low"
	SeverityInformational Severity = "informational"
)

// Severities lists all severities in descending order of impact. Summary
// tallies iterate this so every bucket is always present.
func Severities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInformational}
}

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInformational:
		return true
	}
	return false
}

// Pillar is an optional high-level categorization axis orthogonal to
// category and severity.
type Pillar string

const (
	PillarSecurity              Pillar = "security"
	PillarReliability           Pillar = "reliability"
	PillarPerformance           Pillar = "performance"
	PillarCostOptimization      Pillar = "cost-optimization"
	PillarOperationalExcellence Pillar = "operational-excellence"
)

// Pillars lists the fixed pillar enumeration used for zero-initialized
// summary buckets.
func Pillars() []Pillar {
	return []Pillar{PillarSecurity, PillarReliability, PillarPerformance, PillarCostOptimization, PillarOperationalExcellence}
}

// NewRule creates a rule belonging to the given framework.
func NewRule(frameworkID, ruleID, name string, severity Severity, impl RuleImplementation) *Rule {
	now := time.Now()
	return &Rule{
		ID:             frameworkID + "/" + ruleID,
		FrameworkID:    frameworkID,
		RuleID:         ruleID,
		Name:           name,
		Severity:       severity,
		Implementation: impl,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Validate validates the rule definition.
func (r *Rule) Validate() error {
	if r.RuleID == "" {
		return fmt.Errorf("rule id cannot be empty")
	}
	if r.FrameworkID == "" {
		return fmt.Errorf("rule %s has no framework id", r.RuleID)
	}
	if r.Name == "" {
		return fmt.Errorf("rule %s has no name", r.RuleID)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("rule %s has invalid severity: %s", r.RuleID, r.Severity)
	}
	if !r.Implementation.Kind.Valid() {
		return fmt.Errorf("rule %s has invalid implementation kind: %s", r.RuleID, r.Implementation.Kind)
	}
	if r.Implementation.Payload == "" {
		return fmt.Errorf("rule %s has an empty implementation payload", r.RuleID)
	}
	return nil
}
