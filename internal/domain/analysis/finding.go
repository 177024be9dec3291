package analysis

import (
	"fmt"

	"github.com/davidleathers/cloud-posture-engine/internal/domain/framework"
)

// ResourceInfo is an opaque passthrough of the caller-supplied resource
// shape. The engine never validates resource schemas; it only reads the
// identity fields when attributing findings.
type ResourceInfo struct {
	Type       string         `json:"type,omitempty"`
	Name       string         `json:"name,omitempty"`
	ARN        string         `json:"arn,omitempty"`
	Region     string         `json:"region,omitempty"`
	AccountID  string         `json:"account_id,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Finding is one detected violation of a rule against a specific resource.
// Findings are generated once and never mutated.
type Finding struct {
	ID          string             `json:"id"`
	RuleID      string             `json:"rule_id"`
	RuleName    string             `json:"rule_name"`
	Severity    framework.Severity `json:"severity"`
	Category    string             `json:"category"`
	Pillar      framework.Pillar   `json:"pillar,omitempty"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Resource    ResourceInfo       `json:"resource"`
	Remediation string             `json:"remediation,omitempty"`
	References  []string           `json:"references,omitempty"`
	Metadata    map[string]string  `json:"metadata,omitempty"`
}

// FindingID derives a deterministic finding identifier so re-running the
// same analysis with the same inputs reproduces the same ids. The ordinal is
// the 1-based position of the finding within its rule's result.
func FindingID(analysisID, ruleID string, sequence int) string {
	return fmt.Sprintf("%s-%s-%03d", analysisID, ruleID, sequence)
}

// NewFinding builds a finding attributed to the given rule. Severity,
// category, pillar and remediation are always copied from the rule so
// findings carry consistent classification regardless of which backend
// produced them.
func NewFinding(rule *framework.Rule, resource ResourceInfo, title, description string) Finding {
	return Finding{
		RuleID:      rule.RuleID,
		RuleName:    rule.Name,
		Severity:    rule.Severity,
		Category:    rule.Category,
		Pillar:      rule.Pillar,
		Title:       title,
		Description: description,
		Resource:    resource,
		Remediation: rule.Remediation,
	}
}
