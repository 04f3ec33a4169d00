package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/approval-service/internal/domain"
)

const statsCacheTTL = 60 * time.Second

// StatsCache is a read-through redis cache for approver workload counters.
// All operations degrade to cache misses on redis errors.
type StatsCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewStatsCache builds the cache. A nil client yields a cache that always
// misses.
func NewStatsCache(client *redis.Client, logger *zap.Logger) *StatsCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsCache{client: client, logger: logger}
}

func statsKey(approverID string) string {
	return "approver:stats:" + approverID
}

// Get returns cached stats and whether the lookup hit.
func (c *StatsCache) Get(ctx context.Context, approverID string) (*domain.ApproverStats, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, statsKey(approverID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("stats cache get", zap.Error(err))
		}
		return nil, false
	}
	var stats domain.ApproverStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, false
	}
	return &stats, true
}

// Set stores stats with a short TTL.
func (c *StatsCache) Set(ctx context.Context, approverID string, stats *domain.ApproverStats) {
	if c == nil || c.client == nil || stats == nil {
		return
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, statsKey(approverID), raw, statsCacheTTL).Err(); err != nil {
		c.logger.Debug("stats cache set", zap.Error(err))
	}
}

// Invalidate drops the cached entry after an approval action.
func (c *StatsCache) Invalidate(ctx context.Context, approverID string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, statsKey(approverID)).Err(); err != nil {
		c.logger.Debug("stats cache invalidate", zap.Error(err))
	}
}
