package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	domain "github.com/davidleathers/cloud-posture-engine/internal/domain/analysis"
	"github.com/davidleathers/cloud-posture-engine/internal/infrastructure/ai"
	"github.com/davidleathers/cloud-posture-engine/internal/metrics"
)

// AIBackend evaluates ai-inference rules by rendering the rule's prompt
// template against the resource set and asking the model for a JSON array of
// violations. Model output is untrusted: responses that cannot be parsed are
// treated as zero findings with a metadata marker rather than an execution
// error, so one chatty response never fails a whole framework.
type AIBackend struct {
	client    ai.Client
	modelID   string
	maxTokens int
	limiter   *rate.Limiter
	timeout   time.Duration
	logger    *zap.Logger
}

type AIBackendConfig struct {
	ModelID           string
	MaxTokens         int
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

func NewAIBackend(client ai.Client, cfg AIBackendConfig, logger *zap.Logger) *AIBackend {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &AIBackend{
		client:    client,
		modelID:   cfg.ModelID,
		maxTokens: cfg.MaxTokens,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		timeout:   cfg.Timeout,
		logger:    logger.Named("ai_backend"),
	}
}

// aiFinding is the shape the model is asked to emit per violation.
type aiFinding struct {
	ResourceName string `json:"resourceName"`
	ResourceType string `json:"resourceType"`
	ResourceArn  string `json:"resourceArn"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Remediation  string `json:"remediation"`
}

func (b *AIBackend) Evaluate(ctx context.Context, req DispatchRequest) ([]domain.Finding, map[string]string, error) {
	rule := req.Rule

	timeout := rule.Implementation.Timeout
	if timeout <= 0 {
		timeout = b.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := b.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("rate limit wait: %w", err)
	}

	prompt, err := renderPrompt(rule.Implementation.Payload, req)
	if err != nil {
		return nil, nil, fmt.Errorf("render prompt: %w", err)
	}

	response, err := b.client.Generate(ctx, ai.Request{
		ModelID:   b.modelID,
		Prompt:    prompt,
		MaxTokens: b.maxTokens,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("model invocation failed: %w", err)
	}

	parsed, ok := parseFindings(response)
	if !ok {
		b.logger.Warn("model response contained no parseable findings array",
			zap.String("rule_id", rule.RuleID),
			zap.Int("response_length", len(response)))
		metrics.RecordAIParseFailure()
		return nil, map[string]string{"ai_response_parsed": "false"}, nil
	}

	findings := make([]domain.Finding, 0, len(parsed))
	for _, pf := range parsed {
		if pf.Title == "" {
			continue
		}
		f := domain.NewFinding(rule, matchResource(req.Resources, pf), pf.Title, pf.Description)
		if pf.Remediation != "" {
			f.Remediation = pf.Remediation
		}
		findings = append(findings, f)
	}
	return findings, nil, nil
}

// matchResource attributes a model-reported violation back to a supplied
// resource by ARN or name, falling back to whatever identity the model echoed.
func matchResource(resources []domain.ResourceInfo, pf aiFinding) domain.ResourceInfo {
	for _, r := range resources {
		if pf.ResourceArn != "" && r.ARN == pf.ResourceArn {
			return r
		}
		if pf.ResourceName != "" && r.Name == pf.ResourceName {
			return r
		}
	}
	return domain.ResourceInfo{Type: pf.ResourceType, Name: pf.ResourceName, ARN: pf.ResourceArn}
}

// renderPrompt builds the full prompt: the rule's instruction payload, any
// conditions and parameters, the resource inventory as JSON, and a strict
// output contract.
func renderPrompt(instruction string, req DispatchRequest) (string, error) {
	resourceJSON, err := json.MarshalIndent(req.Resources, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal resources: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("You are a cloud compliance analyst.\n\n")
	sb.WriteString("Task:\n")
	sb.WriteString(instruction)
	sb.WriteString("\n")
	if len(req.Rule.Conditions) > 0 {
		condJSON, err := json.MarshalIndent(req.Rule.Conditions, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal conditions: %w", err)
		}
		sb.WriteString("\nConditions:\n")
		sb.Write(condJSON)
		sb.WriteString("\n")
	}
	if len(req.Parameters) > 0 {
		paramJSON, err := json.MarshalIndent(req.Parameters, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal parameters: %w", err)
		}
		sb.WriteString("\nParameters:\n")
		sb.Write(paramJSON)
		sb.WriteString("\n")
	}
	sb.WriteString("\nResources:\n")
	sb.Write(resourceJSON)
	sb.WriteString("\n\nRespond with only a JSON array. Each element must be an object with ")
	sb.WriteString(`"resourceName", "resourceType", "resourceArn", "title", "description" and "remediation" string fields. `)
	sb.WriteString("Return an empty array [] when no resource violates the rule.")
	return sb.String(), nil
}

// parseFindings scans text for balanced top-level JSON arrays and returns the
// first one that unmarshals into the findings shape. Prose ahead of the real
// array can itself contain brackets, citation style markers like "[1]" among
// them, so candidates of the wrong shape are skipped rather than treated as
// the model's answer.
func parseFindings(text string) ([]aiFinding, bool) {
	for offset := 0; offset < len(text); {
		raw, next, ok := nextJSONArray(text[offset:])
		if !ok {
			return nil, false
		}
		var parsed []aiFinding
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			return parsed, true
		}
		offset += next
	}
	return nil, false
}

// nextJSONArray returns the first balanced top-level JSON array in text and
// the offset just past its closing bracket. Bracket characters inside JSON
// strings do not affect balance tracking.
func nextJSONArray(text string) (string, int, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, c := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if start >= 0 {
				inString = true
			}
		case '[':
			if start < 0 {
				start = i
			}
			depth++
		case ']':
			if start < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return text[start : i+1], i + 1, true
			}
		}
	}
	return "", 0, false
}
