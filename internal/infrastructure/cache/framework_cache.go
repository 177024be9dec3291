package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/davidleathers/cloud-posture-engine/internal/domain/framework"
)

// FrameworkCache is a read-through cache over the registry's hot lookups:
// framework metadata and tenant framework configuration. Redis outages
// degrade to the backing store; a cache failure is never surfaced to the
// caller as a read failure.
type FrameworkCache struct {
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewFrameworkCache(cache Cache, ttl time.Duration, logger *zap.Logger) *FrameworkCache {
	return &FrameworkCache{cache: cache, ttl: ttl, logger: logger}
}

func frameworkKey(frameworkID string) string {
	return "framework:" + frameworkID
}

func tenantConfigKey(tenantID, frameworkID string) string {
	return fmt.Sprintf("tenantconfig:%s:%s", tenantID, frameworkID)
}

// GetFramework returns the cached framework, or nil on miss.
func (c *FrameworkCache) GetFramework(ctx context.Context, frameworkID string) *framework.Framework {
	var fw framework.Framework
	err := c.cache.GetJSON(ctx, frameworkKey(frameworkID), &fw)
	if errors.Is(err, ErrCacheMiss) {
		return nil
	}
	if err != nil {
		c.logger.Warn("framework cache read failed",
			zap.String("framework_id", frameworkID),
			zap.Error(err))
		return nil
	}
	return &fw
}

func (c *FrameworkCache) SetFramework(ctx context.Context, fw *framework.Framework) {
	if err := c.cache.SetJSON(ctx, frameworkKey(fw.ID), fw, c.ttl); err != nil {
		c.logger.Warn("framework cache write failed",
			zap.String("framework_id", fw.ID),
			zap.Error(err))
	}
}

// GetTenantConfig returns the cached tenant config, or nil on miss.
func (c *FrameworkCache) GetTenantConfig(ctx context.Context, tenantID, frameworkID string) *framework.TenantFrameworkConfig {
	var cfg framework.TenantFrameworkConfig
	err := c.cache.GetJSON(ctx, tenantConfigKey(tenantID, frameworkID), &cfg)
	if errors.Is(err, ErrCacheMiss) {
		return nil
	}
	if err != nil {
		c.logger.Warn("tenant config cache read failed",
			zap.String("tenant_id", tenantID),
			zap.String("framework_id", frameworkID),
			zap.Error(err))
		return nil
	}
	return &cfg
}

func (c *FrameworkCache) SetTenantConfig(ctx context.Context, cfg *framework.TenantFrameworkConfig) {
	if err := c.cache.SetJSON(ctx, tenantConfigKey(cfg.TenantID, cfg.FrameworkID), cfg, c.ttl); err != nil {
		c.logger.Warn("tenant config cache write failed",
			zap.String("tenant_id", cfg.TenantID),
			zap.Error(err))
	}
}

// InvalidateTenantConfig drops the cached config after an upsert.
func (c *FrameworkCache) InvalidateTenantConfig(ctx context.Context, tenantID, frameworkID string) {
	if err := c.cache.Delete(ctx, tenantConfigKey(tenantID, frameworkID)); err != nil {
		c.logger.Warn("tenant config cache invalidation failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}
}
