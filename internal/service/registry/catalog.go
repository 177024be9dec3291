package registry

import (
	"time"

	"github.com/davidleathers/cloud-posture-engine/internal/domain/framework"
)

// CatalogEntry is one built-in framework and its rule templates.
type CatalogEntry struct {
	Framework *framework.Framework
	Rules     []framework.Rule
}

// DefaultCatalog returns the built-in frameworks seeded by
// InitializeDefaultFrameworks. Script payloads run in the Lua sandbox;
// ai-inference payloads are prompt fragments describing what the model
// should look for.
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{Framework: bestPracticesFramework(), Rules: bestPracticesRules()},
		{Framework: postureManagementFramework(), Rules: postureManagementRules()},
	}
}

func bestPracticesFramework() *framework.Framework {
	fw := framework.NewFramework("cloud-best-practices", framework.TypeGenericBestPractice, "Cloud Best Practices", "1.0.0")
	fw.Status = framework.StatusActive
	fw.Categories = []string{"security", "reliability", "cost"}
	return fw
}

func bestPracticesRules() []framework.Rule {
	return []framework.Rule{
		scriptRule("cloud-best-practices", "BP.SEC.01", "Security group open to the world",
			"Detects security group ingress rules that allow traffic from 0.0.0.0/0.",
			framework.SeverityCritical, "network-security", framework.PillarSecurity,
			"Restrict ingress rules to known CIDR ranges.",
			`
for _, r in ipairs(resources) do
  if r.type == "AWS::EC2::SecurityGroup" then
    local props = r.properties or {}
    local ingress = props.ingressRules or {}
    for _, ing in ipairs(ingress) do
      if ing.cidr == "0.0.0.0/0" then
        utils.createFinding(r, "Security group open to the world",
          "Ingress rule allows 0.0.0.0/0 on port " .. tostring(ing.port))
      end
    end
  end
end
`),
		scriptRule("cloud-best-practices", "BP.SEC.02", "Storage bucket publicly accessible",
			"Detects object storage buckets with public access enabled.",
			framework.SeverityHigh, "data-protection", framework.PillarSecurity,
			"Block public access at the bucket level.",
			`
for _, r in ipairs(resources) do
  if r.type == "AWS::S3::Bucket" then
    local props = r.properties or {}
    if props.publicAccess == true then
      utils.createFinding(r, "Storage bucket publicly accessible",
        "Bucket " .. tostring(r.name) .. " allows public access")
    end
  end
end
`),
		scriptRule("cloud-best-practices", "BP.SEC.03", "Volume not encrypted at rest",
			"Detects block storage volumes without encryption at rest.",
			framework.SeverityHigh, "data-protection", framework.PillarSecurity,
			"Enable encryption at rest for all volumes.",
			`
for _, r in ipairs(resources) do
  if r.type == "AWS::EC2::Volume" then
    local props = r.properties or {}
    if props.encrypted ~= true then
      utils.createFinding(r, "Volume not encrypted at rest",
        "Volume " .. tostring(r.name) .. " has no encryption at rest")
    end
  end
end
`),
		scriptRule("cloud-best-practices", "BP.REL.01", "Database without multi-AZ",
			"Detects database instances running in a single availability zone.",
			framework.SeverityMedium, "availability", framework.PillarReliability,
			"Enable multi-AZ deployment for production databases.",
			`
for _, r in ipairs(resources) do
  if r.type == "AWS::RDS::DBInstance" then
    local props = r.properties or {}
    if props.multiAZ ~= true then
      utils.createFinding(r, "Database without multi-AZ",
        "Database " .. tostring(r.name) .. " runs in a single availability zone")
    end
  end
end
`),
		aiRule("cloud-best-practices", "BP.AI.01", "Over-privileged IAM policies",
			"Reviews IAM policies for wildcard actions and overly broad resource grants.",
			framework.SeverityHigh, "identity", framework.PillarSecurity,
			"Scope IAM policies to the specific actions and resources each workload needs.",
			"Review every IAM policy document in the resource list. Report policies that grant wildcard actions (\"*\" or \"service:*\") or apply to all resources."),
		aiRule("cloud-best-practices", "BP.COST.01", "Idle or oversized resources",
			"Identifies compute resources that appear idle or oversized for their workload.",
			framework.SeverityLow, "cost", framework.PillarCostOptimization,
			"Right-size or decommission idle resources.",
			"Look for compute instances whose properties suggest they are idle or oversized, such as very large instance types with low utilization hints."),
	}
}

func postureManagementFramework() *framework.Framework {
	fw := framework.NewFramework("posture-management", framework.TypePostureManagement, "Security Posture Management", "1.0.0")
	fw.Status = framework.StatusActive
	fw.Categories = []string{"network-security", "governance"}
	return fw
}

func postureManagementRules() []framework.Rule {
	return []framework.Rule{
		aiRule("posture-management", "PM.NET.01", "Unintended network exposure",
			"Assesses whether resources are reachable from networks they should not be.",
			framework.SeverityHigh, "network-security", framework.PillarSecurity,
			"Place internal services behind private subnets and load balancers.",
			"Assess the network exposure of each resource. Report resources that appear internet-reachable but whose names or tags suggest internal use."),
		scriptRule("posture-management", "PM.TAG.01", "Required tags missing",
			"Checks that every resource carries the tags required by governance policy.",
			framework.SeverityLow, "governance", framework.PillarOperationalExcellence,
			"Apply the required tags to all resources.",
			`
local required = params.requiredTags or {"owner", "environment"}
for _, r in ipairs(resources) do
  local props = r.properties or {}
  local tags = props.tags or {}
  for _, want in ipairs(required) do
    if tags[want] == nil then
      utils.createFinding(r, "Required tags missing",
        "Resource " .. tostring(r.name) .. " is missing required tag '" .. want .. "'")
    end
  end
end
`),
		policyRule("posture-management", "PM.POL.01", "Declarative network policy",
			"Placeholder for the declarative policy evaluator.",
			framework.SeverityMedium, "network-security", framework.PillarSecurity,
			`package posture
deny[msg] { input.resource.public == true }`),
	}
}

func scriptRule(frameworkID, ruleID, name, description string, sev framework.Severity, category string, pillar framework.Pillar, remediation, script string) framework.Rule {
	r := framework.NewRule(frameworkID, ruleID, name, sev, framework.RuleImplementation{
		Kind:    framework.KindSandboxedScript,
		Payload: script,
		Runtime: "lua",
		Timeout: 10 * time.Second,
	})
	r.Description = description
	r.Category = category
	r.Pillar = pillar
	r.Remediation = remediation
	return *r
}

func aiRule(frameworkID, ruleID, name, description string, sev framework.Severity, category string, pillar framework.Pillar, remediation, prompt string) framework.Rule {
	r := framework.NewRule(frameworkID, ruleID, name, sev, framework.RuleImplementation{
		Kind:    framework.KindAIInference,
		Payload: prompt,
		Timeout: 60 * time.Second,
	})
	r.Description = description
	r.Category = category
	r.Pillar = pillar
	r.Remediation = remediation
	return *r
}

func policyRule(frameworkID, ruleID, name, description string, sev framework.Severity, category string, pillar framework.Pillar, policy string) framework.Rule {
	r := framework.NewRule(frameworkID, ruleID, name, sev, framework.RuleImplementation{
		Kind:    framework.KindDeclarativePolicy,
		Payload: policy,
	})
	r.Description = description
	r.Category = category
	r.Pillar = pillar
	return *r
}
