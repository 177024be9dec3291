package analysis

import (
	"time"
)

// ExecutionStatus is the terminal state of a single rule evaluation.
type ExecutionStatus string

const (
	StatusPass  ExecutionStatus = "pass"
	StatusFail  ExecutionStatus = "fail"
	StatusSkip  ExecutionStatus = "skip"
	StatusError ExecutionStatus = "error"
)

// AnalysisStatus is the terminal state of a framework or multi-framework
// analysis. Partial and failed are legitimate terminal states the caller
// renders, never exceptions.
type AnalysisStatus string

const (
	AnalysisCompleted AnalysisStatus = "completed"
	AnalysisFailed    AnalysisStatus = "failed"
	AnalysisPartial   AnalysisStatus = "partial"
	AnalysisTimeout   AnalysisStatus = "timeout"
)

// RuleExecutionResult is the outcome of evaluating one rule. Fail means the
// rule produced at least one finding; pass means zero findings; error means
// the backend itself could not complete.
type RuleExecutionResult struct {
	RuleID          string            `json:"rule_id"`
	Status          ExecutionStatus   `json:"status"`
	Findings        []Finding         `json:"findings,omitempty"`
	ExecutionTimeMs int64             `json:"execution_time_ms"`
	Error           string            `json:"error,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// FrameworkAnalysisResult is the write-once record of one framework's
// evaluation for a tenant. Completed means the resolve-and-evaluate
// pipeline ran to completion regardless of individual rule outcomes; failed
// means a pipeline-level step aborted.
type FrameworkAnalysisResult struct {
	AnalysisID    string                `json:"analysis_id"`
	TenantID      string                `json:"tenant_id"`
	ProjectID     string                `json:"project_id"`
	FrameworkID   string                `json:"framework_id"`
	FrameworkName string                `json:"framework_name,omitempty"`
	Status        AnalysisStatus        `json:"status"`
	RuleResults   []RuleExecutionResult `json:"rule_results"`
	Findings      []Finding             `json:"findings"`
	Summary       FrameworkSummary      `json:"summary"`
	Error         string                `json:"error,omitempty"`
	StartedAt     time.Time             `json:"started_at"`
	CompletedAt   time.Time             `json:"completed_at"`
	DurationMs    int64                 `json:"duration_ms"`
}

// MultiFrameworkAnalysisResult aggregates framework results for one
// analysis invocation. It is the engine's sole output and is handed to
// external persistence unchanged.
type MultiFrameworkAnalysisResult struct {
	AnalysisID       string                    `json:"analysis_id"`
	TenantID         string                    `json:"tenant_id"`
	ProjectID        string                    `json:"project_id"`
	Status           AnalysisStatus            `json:"status"`
	FrameworkResults []FrameworkAnalysisResult `json:"framework_results"`
	Summary          AggregatedSummary         `json:"aggregated_summary"`
	StartedAt        time.Time                 `json:"started_at"`
	CompletedAt      time.Time                 `json:"completed_at"`
	DurationMs       int64                     `json:"duration_ms"`
}
