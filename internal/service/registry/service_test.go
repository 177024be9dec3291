package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/cloud-posture-engine/internal/domain/framework"
	apperrors "github.com/davidleathers/cloud-posture-engine/internal/errors"
	storage "github.com/davidleathers/cloud-posture-engine/internal/infrastructure/registry"
	"github.com/davidleathers/cloud-posture-engine/internal/service/registry"
)

func newTestService(t *testing.T) *registry.Service {
	t.Helper()
	return registry.NewService(storage.NewMemoryStore(), nil, zaptest.NewLogger(t))
}

func seededService(t *testing.T) *registry.Service {
	t.Helper()
	svc := newTestService(t)
	require.NoError(t, svc.InitializeDefaultFrameworks(context.Background()))
	return svc
}

func assertAppErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

func TestService_InitializeDefaultFrameworks(t *testing.T) {
	ctx := context.Background()
	svc := seededService(t)

	fw, err := svc.GetFramework(ctx, "cloud-best-practices")
	require.NoError(t, err)
	assert.Equal(t, framework.TypeGenericBestPractice, fw.Type)
	assert.Equal(t, framework.StatusActive, fw.Status)

	fw, err = svc.GetFramework(ctx, "posture-management")
	require.NoError(t, err)
	assert.Equal(t, framework.TypePostureManagement, fw.Type)

	rules, err := svc.GetAllFrameworkRules(ctx, "cloud-best-practices")
	require.NoError(t, err)
	assert.NotEmpty(t, rules)
	for _, r := range rules {
		assert.NoError(t, r.Validate())
		assert.Equal(t, "cloud-best-practices", r.FrameworkID)
	}
}

func TestService_InitializeDefaultFrameworks_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc := seededService(t)

	// Edit a seeded framework, then reseed; the edit must survive.
	fw, err := svc.GetFramework(ctx, "cloud-best-practices")
	require.NoError(t, err)
	fw.Name = "Renamed By Operator"
	require.NoError(t, svc.SaveFramework(ctx, fw, nil))

	require.NoError(t, svc.InitializeDefaultFrameworks(ctx))

	got, err := svc.GetFramework(ctx, "cloud-best-practices")
	require.NoError(t, err)
	assert.Equal(t, "Renamed By Operator", got.Name)
}

func TestService_GetFramework_NotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetFramework(context.Background(), "absent")
	assertAppErrorCode(t, err, "NOT_FOUND")
}

func TestService_GetFrameworkRules_Filters(t *testing.T) {
	ctx := context.Background()
	svc := seededService(t)

	tests := []struct {
		name     string
		filter   registry.RuleFilter
		validate func(t *testing.T, rules []framework.Rule)
	}{
		{
			name:   "no filter returns every rule",
			filter: registry.RuleFilter{},
			validate: func(t *testing.T, rules []framework.Rule) {
				assert.NotEmpty(t, rules)
			},
		},
		{
			name:   "category filter",
			filter: registry.RuleFilter{Category: "data-protection"},
			validate: func(t *testing.T, rules []framework.Rule) {
				require.NotEmpty(t, rules)
				for _, r := range rules {
					assert.Equal(t, "data-protection", r.Category)
				}
			},
		},
		{
			name:   "severity filter",
			filter: registry.RuleFilter{Severity: framework.SeverityCritical},
			validate: func(t *testing.T, rules []framework.Rule) {
				require.NotEmpty(t, rules)
				for _, r := range rules {
					assert.Equal(t, framework.SeverityCritical, r.Severity)
				}
			},
		},
		{
			name:   "filter matching nothing yields empty page",
			filter: registry.RuleFilter{Category: "no-such-category"},
			validate: func(t *testing.T, rules []framework.Rule) {
				assert.Empty(t, rules)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.GetFrameworkRules(ctx, "cloud-best-practices", tt.filter, registry.PageRequest{Limit: 100})
			require.NoError(t, err)
			tt.validate(t, page.Rules)
		})
	}
}

func TestService_GetFrameworkRules_Pagination(t *testing.T) {
	ctx := context.Background()
	svc := seededService(t)

	all, err := svc.GetAllFrameworkRules(ctx, "cloud-best-practices")
	require.NoError(t, err)
	require.Greater(t, len(all), 2)

	var paged []framework.Rule
	page := registry.PageRequest{Limit: 2}
	for {
		rp, err := svc.GetFrameworkRules(ctx, "cloud-best-practices", registry.RuleFilter{}, page)
		require.NoError(t, err)
		paged = append(paged, rp.Rules...)
		if rp.NextCursor == "" {
			break
		}
		page.Cursor = rp.NextCursor
	}
	assert.Equal(t, len(all), len(paged))
}

func TestService_ListFrameworks(t *testing.T) {
	ctx := context.Background()
	svc := seededService(t)

	page, err := svc.ListFrameworks(ctx, registry.FrameworkFilter{}, registry.PageRequest{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Frameworks, 2)

	page, err = svc.ListFrameworks(ctx, registry.FrameworkFilter{Type: framework.TypePostureManagement}, registry.PageRequest{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Frameworks, 1)
	assert.Equal(t, "posture-management", page.Frameworks[0].ID)
}

func TestService_TenantFrameworkConfig(t *testing.T) {
	ctx := context.Background()
	svc := seededService(t)

	_, err := svc.GetTenantFrameworkConfig(ctx, "tenant-1", "cloud-best-practices")
	assertAppErrorCode(t, err, "NOT_FOUND")

	cfg := framework.NewTenantFrameworkConfig("tenant-1", "cloud-best-practices", []string{"BP.SEC.01", "BP.SEC.02"})
	saved, err := svc.SaveTenantFrameworkConfig(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, saved.UpdatedAt.IsZero())

	got, err := svc.GetTenantFrameworkConfig(ctx, "tenant-1", "cloud-best-practices")
	require.NoError(t, err)
	assert.Equal(t, []string{"BP.SEC.01", "BP.SEC.02"}, got.EnabledRules)
	assert.True(t, got.IsRuleEnabled("BP.SEC.01"))
	assert.False(t, got.IsRuleEnabled("BP.REL.01"))
}

func TestService_SaveTenantFrameworkConfig_Validation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	tests := []struct {
		name string
		cfg  *framework.TenantFrameworkConfig
	}{
		{
			name: "missing tenant id",
			cfg:  framework.NewTenantFrameworkConfig("", "fw-1", []string{"SEC.01"}),
		},
		{
			name: "missing framework id",
			cfg:  framework.NewTenantFrameworkConfig("tenant-1", "", []string{"SEC.01"}),
		},
		{
			name: "empty rule id entry",
			cfg:  framework.NewTenantFrameworkConfig("tenant-1", "fw-1", []string{"SEC.01", ""}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SaveTenantFrameworkConfig(ctx, tt.cfg)
			assertAppErrorCode(t, err, "VALIDATION_ERROR")
		})
	}
}

func TestService_SaveFramework_RejectsInvalid(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	fw := framework.NewFramework("fw-1", "bogus-type", "Broken", "1.0.0")
	err := svc.SaveFramework(ctx, fw, nil)
	assertAppErrorCode(t, err, "VALIDATION_ERROR")

	valid := framework.NewFramework("fw-1", framework.TypeCustom, "Custom", "1.0.0")
	badRule := framework.NewRule("fw-1", "R.01", "Rule", "unranked", framework.RuleImplementation{
		Kind:    framework.KindSandboxedScript,
		Payload: "-- noop",
	})
	err = svc.SaveFramework(ctx, valid, []framework.Rule{*badRule})
	assertAppErrorCode(t, err, "VALIDATION_ERROR")
}
