package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/davidleathers/cloud-posture-engine/internal/domain/framework"
	apperrors "github.com/davidleathers/cloud-posture-engine/internal/errors"
	"github.com/davidleathers/cloud-posture-engine/internal/infrastructure/cache"
	"github.com/davidleathers/cloud-posture-engine/internal/infrastructure/registry"
)

// Service resolves framework, rule and tenant-config identities to their
// current definitions. It holds no evaluation logic.
type Service struct {
	store    registry.Store
	cache    *cache.FrameworkCache
	logger   *zap.Logger
	validate *validator.Validate
}

// NewService creates a registry service. The cache is optional; pass nil to
// read straight through to the store.
func NewService(store registry.Store, frameworkCache *cache.FrameworkCache, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		cache:    frameworkCache,
		logger:   logger,
		validate: validator.New(),
	}
}

// RuleFilter narrows a rule listing. Zero values match everything.
type RuleFilter struct {
	Category string
	Severity framework.Severity
}

// FrameworkFilter narrows a framework listing. Zero values match everything.
type FrameworkFilter struct {
	Type   framework.FrameworkType
	Status framework.FrameworkStatus
}

// PageRequest is a paginated read request. Cursor is an opaque continuation
// token from a previous page; Limit <= 0 means no limit.
type PageRequest struct {
	Limit  int
	Cursor string
}

type RulePage struct {
	Rules      []framework.Rule
	NextCursor string
}

type FrameworkPage struct {
	Frameworks []framework.Framework
	NextCursor string
}

// GetFramework resolves a framework by id.
func (s *Service) GetFramework(ctx context.Context, frameworkID string) (*framework.Framework, error) {
	if s.cache != nil {
		if fw := s.cache.GetFramework(ctx, frameworkID); fw != nil {
			return fw, nil
		}
	}

	item, err := s.store.Get(ctx, registry.FrameworkPK(frameworkID), registry.MetadataSK)
	if errors.Is(err, registry.ErrItemNotFound) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("framework %s not found", frameworkID))
	}
	if err != nil {
		return nil, apperrors.NewRegistryError("framework lookup failed").WithCause(err)
	}

	var fw framework.Framework
	if err := json.Unmarshal(item.Payload, &fw); err != nil {
		return nil, apperrors.NewRegistryError("framework record corrupted").WithCause(err)
	}

	if s.cache != nil {
		s.cache.SetFramework(ctx, &fw)
	}
	return &fw, nil
}

// GetFrameworkRules returns one page of the framework's rules, optionally
// filtered by category and severity. Filtering happens after the page read,
// so a filtered page may carry fewer rules than the limit while still
// having a continuation cursor.
func (s *Service) GetFrameworkRules(ctx context.Context, frameworkID string, filter RuleFilter, page PageRequest) (*RulePage, error) {
	items, next, err := s.store.Query(ctx, registry.FrameworkPK(frameworkID), "RULE#", page.Limit, page.Cursor)
	if err != nil {
		return nil, apperrors.NewRegistryError("rule listing failed").WithCause(err)
	}

	rules := make([]framework.Rule, 0, len(items))
	for _, item := range items {
		var rule framework.Rule
		if err := json.Unmarshal(item.Payload, &rule); err != nil {
			return nil, apperrors.NewRegistryError(fmt.Sprintf("rule record %s corrupted", item.SK)).WithCause(err)
		}
		if filter.Category != "" && rule.Category != filter.Category {
			continue
		}
		if filter.Severity != "" && rule.Severity != filter.Severity {
			continue
		}
		rules = append(rules, rule)
	}

	return &RulePage{Rules: rules, NextCursor: next}, nil
}

// GetAllFrameworkRules walks every page of a framework's rule set.
func (s *Service) GetAllFrameworkRules(ctx context.Context, frameworkID string) ([]framework.Rule, error) {
	var rules []framework.Rule
	page := PageRequest{Limit: 100}
	for {
		rp, err := s.GetFrameworkRules(ctx, frameworkID, RuleFilter{}, page)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rp.Rules...)
		if rp.NextCursor == "" {
			return rules, nil
		}
		page.Cursor = rp.NextCursor
	}
}

// GetTenantFrameworkConfig resolves a tenant's configuration for one
// framework.
func (s *Service) GetTenantFrameworkConfig(ctx context.Context, tenantID, frameworkID string) (*framework.TenantFrameworkConfig, error) {
	if s.cache != nil {
		if cfg := s.cache.GetTenantConfig(ctx, tenantID, frameworkID); cfg != nil {
			return cfg, nil
		}
	}

	item, err := s.store.Get(ctx, registry.TenantPK(tenantID), registry.FrameworkSK(frameworkID))
	if errors.Is(err, registry.ErrItemNotFound) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no configuration for tenant %s on framework %s", tenantID, frameworkID))
	}
	if err != nil {
		return nil, apperrors.NewRegistryError("tenant config lookup failed").WithCause(err)
	}

	var cfg framework.TenantFrameworkConfig
	if err := json.Unmarshal(item.Payload, &cfg); err != nil {
		return nil, apperrors.NewRegistryError("tenant config record corrupted").WithCause(err)
	}

	if s.cache != nil {
		s.cache.SetTenantConfig(ctx, &cfg)
	}
	return &cfg, nil
}

// SaveTenantFrameworkConfig upserts a tenant's framework configuration.
// The write is idempotent and bumps UpdatedAt.
func (s *Service) SaveTenantFrameworkConfig(ctx context.Context, cfg *framework.TenantFrameworkConfig) (*framework.TenantFrameworkConfig, error) {
	if err := s.validate.Struct(cfg); err != nil {
		return nil, apperrors.NewValidationError("invalid tenant framework config").WithCause(err)
	}

	now := time.Now()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	payload, err := json.Marshal(cfg)
	if err != nil {
		return nil, apperrors.NewValidationError("tenant framework config not serializable").WithCause(err)
	}

	item := registry.Item{
		PK:      registry.TenantPK(cfg.TenantID),
		SK:      registry.FrameworkSK(cfg.FrameworkID),
		Payload: payload,
	}
	if err := s.store.Put(ctx, item); err != nil {
		return nil, apperrors.NewRegistryError("tenant config write failed").WithCause(err)
	}

	if s.cache != nil {
		s.cache.InvalidateTenantConfig(ctx, cfg.TenantID, cfg.FrameworkID)
	}

	s.logger.Info("tenant framework config saved",
		zap.String("tenant_id", cfg.TenantID),
		zap.String("framework_id", cfg.FrameworkID),
		zap.Int("enabled_rules", len(cfg.EnabledRules)))
	return cfg, nil
}

// ListFrameworks returns one page of the framework catalog, optionally
// filtered by type and status.
func (s *Service) ListFrameworks(ctx context.Context, filter FrameworkFilter, page PageRequest) (*FrameworkPage, error) {
	items, next, err := s.store.Query(ctx, registry.CatalogPK, "FRAMEWORK#", page.Limit, page.Cursor)
	if err != nil {
		return nil, apperrors.NewRegistryError("framework listing failed").WithCause(err)
	}

	frameworks := make([]framework.Framework, 0, len(items))
	for _, item := range items {
		var fw framework.Framework
		if err := json.Unmarshal(item.Payload, &fw); err != nil {
			return nil, apperrors.NewRegistryError(fmt.Sprintf("catalog record %s corrupted", item.SK)).WithCause(err)
		}
		if filter.Type != "" && fw.Type != filter.Type {
			continue
		}
		if filter.Status != "" && fw.Status != filter.Status {
			continue
		}
		frameworks = append(frameworks, fw)
	}

	return &FrameworkPage{Frameworks: frameworks, NextCursor: next}, nil
}

// SaveFramework writes a framework and its rules. The framework metadata is
// written both under its own partition and into the catalog partition so
// listings stay within the store's key contract.
func (s *Service) SaveFramework(ctx context.Context, fw *framework.Framework, rules []framework.Rule) error {
	if err := fw.Validate(); err != nil {
		return apperrors.NewValidationError("invalid framework").WithCause(err)
	}
	for i := range rules {
		if err := rules[i].Validate(); err != nil {
			return apperrors.NewValidationError("invalid rule").WithCause(err)
		}
	}

	payload, err := json.Marshal(fw)
	if err != nil {
		return apperrors.NewValidationError("framework not serializable").WithCause(err)
	}

	writes := []registry.Item{
		{PK: registry.FrameworkPK(fw.ID), SK: registry.MetadataSK, Payload: payload},
		{PK: registry.CatalogPK, SK: registry.FrameworkSK(fw.ID), Payload: payload},
	}
	for i := range rules {
		rulePayload, err := json.Marshal(&rules[i])
		if err != nil {
			return apperrors.NewValidationError("rule not serializable").WithCause(err)
		}
		writes = append(writes, registry.Item{
			PK:      registry.FrameworkPK(fw.ID),
			SK:      registry.RuleSK(rules[i].RuleID),
			Payload: rulePayload,
		})
	}

	for _, item := range writes {
		if err := s.store.Put(ctx, item); err != nil {
			return apperrors.NewRegistryError("framework write failed").WithCause(err)
		}
	}

	s.logger.Info("framework saved",
		zap.String("framework_id", fw.ID),
		zap.String("version", fw.Version),
		zap.Int("rules", len(rules)))
	return nil
}

// InitializeDefaultFrameworks seeds the registry with the built-in catalog.
// Seeding is idempotent: a framework that already exists (keyed by its id)
// is left untouched, including any rule edits made since it was seeded.
func (s *Service) InitializeDefaultFrameworks(ctx context.Context) error {
	for _, entry := range DefaultCatalog() {
		_, err := s.store.Get(ctx, registry.FrameworkPK(entry.Framework.ID), registry.MetadataSK)
		if err == nil {
			s.logger.Debug("framework already seeded", zap.String("framework_id", entry.Framework.ID))
			continue
		}
		if !errors.Is(err, registry.ErrItemNotFound) {
			return apperrors.NewRegistryError("seed lookup failed").WithCause(err)
		}

		if err := s.SaveFramework(ctx, entry.Framework, entry.Rules); err != nil {
			return fmt.Errorf("seeding framework %s: %w", entry.Framework.ID, err)
		}
	}
	return nil
}
