package analysis

import (
	"fmt"

	"github.com/davidleathers/cloud-posture-engine/internal/domain/framework"
)

// FrameworkSummary is the per-framework score card. Scoring is
// intentionally simple: a rule either passed or it did not, 10 points per
// rule, severity-blind.
type FrameworkSummary struct {
	TotalRules    int `json:"total_rules"`
	ExecutedRules int `json:"executed_rules"`
	SkippedRules  int `json:"skipped_rules"`
	PassedRules   int `json:"passed_rules"`
	FailedRules   int `json:"failed_rules"`
	TotalFindings int `json:"total_findings"`

	FindingsBySeverity map[framework.Severity]int `json:"findings_by_severity"`
	FindingsByCategory map[string]int             `json:"findings_by_category"`
	FindingsByPillar   map[framework.Pillar]int   `json:"findings_by_pillar"`

	Score      int     `json:"score"`
	MaxScore   int     `json:"max_score"`
	Percentage float64 `json:"percentage"`
}

// AggregatedSummary is the cross-framework roll-up. Tallies sum only over
// frameworks whose status is completed; failed frameworks contribute zero.
type AggregatedSummary struct {
	TotalFrameworks     int `json:"total_frameworks"`
	CompletedFrameworks int `json:"completed_frameworks"`
	FailedFrameworks    int `json:"failed_frameworks"`
	TotalFindings       int `json:"total_findings"`

	FindingsBySeverity map[framework.Severity]int `json:"findings_by_severity"`
	FindingsByCategory map[string]int             `json:"findings_by_category"`
	FindingsByPillar   map[framework.Pillar]int   `json:"findings_by_pillar"`

	TotalScore      int                `json:"total_score"`
	TotalMaxScore   int                `json:"total_max_score"`
	OverallScore    float64            `json:"overall_score"`
	FrameworkScores map[string]float64 `json:"framework_scores"`
	Recommendations []string           `json:"recommendations"`
}

func newSeverityBuckets() map[framework.Severity]int {
	m := make(map[framework.Severity]int, len(framework.Severities()))
	for _, s := range framework.Severities() {
		m[s] = 0
	}
	return m
}

func newPillarBuckets() map[framework.Pillar]int {
	m := make(map[framework.Pillar]int, len(framework.Pillars()))
	for _, p := range framework.Pillars() {
		m[p] = 0
	}
	return m
}

// ComputeFrameworkSummary scores one framework's rule results. Every result
// in the slice corresponds to an enabled rule, so TotalRules and
// ExecutedRules are both the slice length and SkippedRules is always zero
// (rules the tenant did not enable never reach the result set).
func ComputeFrameworkSummary(results []RuleExecutionResult) FrameworkSummary {
	s := FrameworkSummary{
		TotalRules:         len(results),
		ExecutedRules:      len(results),
		FindingsBySeverity: newSeverityBuckets(),
		FindingsByCategory: make(map[string]int),
		FindingsByPillar:   newPillarBuckets(),
	}

	for _, r := range results {
		if len(r.Findings) > 0 {
			s.FailedRules++
		}
		for _, f := range r.Findings {
			s.TotalFindings++
			s.FindingsBySeverity[f.Severity]++
			if f.Category != "" {
				s.FindingsByCategory[f.Category]++
			}
			// Findings with no pillar are dropped from the pillar tally.
			if f.Pillar != "" {
				s.FindingsByPillar[f.Pillar]++
			}
		}
	}

	s.PassedRules = s.TotalRules - s.FailedRules
	s.Score = s.PassedRules * 10
	s.MaxScore = s.TotalRules * 10
	if s.MaxScore > 0 {
		s.Percentage = float64(s.Score) / float64(s.MaxScore) * 100
	}
	return s
}

// ComputeAggregatedSummary rolls framework results into a cross-framework
// aggregate. Only completed frameworks contribute to findings tallies,
// scores and the FrameworkScores map.
func ComputeAggregatedSummary(results []FrameworkAnalysisResult) AggregatedSummary {
	agg := AggregatedSummary{
		TotalFrameworks:    len(results),
		FindingsBySeverity: newSeverityBuckets(),
		FindingsByCategory: make(map[string]int),
		FindingsByPillar:   newPillarBuckets(),
		FrameworkScores:    make(map[string]float64),
	}

	for _, fr := range results {
		if fr.Status != AnalysisCompleted {
			agg.FailedFrameworks++
			continue
		}
		agg.CompletedFrameworks++
		agg.TotalFindings += fr.Summary.TotalFindings
		agg.TotalScore += fr.Summary.Score
		agg.TotalMaxScore += fr.Summary.MaxScore
		agg.FrameworkScores[fr.FrameworkID] = fr.Summary.Percentage

		for sev, n := range fr.Summary.FindingsBySeverity {
			agg.FindingsBySeverity[sev] += n
		}
		for cat, n := range fr.Summary.FindingsByCategory {
			agg.FindingsByCategory[cat] += n
		}
		for p, n := range fr.Summary.FindingsByPillar {
			agg.FindingsByPillar[p] += n
		}
	}

	if agg.TotalMaxScore > 0 {
		agg.OverallScore = float64(agg.TotalScore) / float64(agg.TotalMaxScore) * 100
	}
	agg.Recommendations = deriveRecommendations(agg)
	return agg
}

// deriveRecommendations is a heuristic summarizer, not a planner: at most
// one message per condition, ordered critical, high, top category.
func deriveRecommendations(agg AggregatedSummary) []string {
	recs := []string{}

	if n := agg.FindingsBySeverity[framework.SeverityCritical]; n > 0 {
		recs = append(recs, fmt.Sprintf("Remediate %d critical finding(s) immediately; these represent the highest risk to your environment", n))
	}
	if n := agg.FindingsBySeverity[framework.SeverityHigh]; n > 0 {
		recs = append(recs, fmt.Sprintf("Prioritize %d high-severity finding(s) in your next sprint", n))
	}

	topCategory := ""
	topCount := 0
	for cat, n := range agg.FindingsByCategory {
		if n > topCount || (n == topCount && topCategory != "" && cat < topCategory) {
			topCategory, topCount = cat, n
		}
	}
	if topCategory != "" {
		recs = append(recs, fmt.Sprintf("Focus on the %q category, which accounts for %d finding(s)", topCategory, topCount))
	}
	return recs
}
