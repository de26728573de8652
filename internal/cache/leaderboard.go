package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"nexus4/internal/domain"
	"nexus4/internal/logger"

	"github.com/redis/go-redis/v9"
)

// LeaderboardCache - сквозной кэш таблицы лидеров с коротким TTL,
// разгружает Postgres от повторных запросов с лобби-экранов.
// Терпит nil-клиент (Redis не настроен) - тогда всегда промах.
type LeaderboardCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLeaderboardCache(rdb *redis.Client, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{rdb: rdb, ttl: ttl}
}

func key(limit int) string {
	return fmt.Sprintf("leaderboard:%d", limit)
}

// Get возвращает закэшированный срез и признак попадания
func (c *LeaderboardCache) Get(ctx context.Context, limit int) ([]domain.LeaderboardEntry, bool) {
	if c.rdb == nil {
		return nil, false
	}

	data, err := c.rdb.Get(ctx, key(limit)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("cache: leaderboard get failed", "error", err)
		}
		return nil, false
	}

	var entries []domain.LeaderboardEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		logger.Warn("cache: leaderboard decode failed", "error", err)
		return nil, false
	}
	return entries, true
}

// Set кладет срез в кэш; ошибки записи только логируются
func (c *LeaderboardCache) Set(ctx context.Context, limit int, entries []domain.LeaderboardEntry) {
	if c.rdb == nil {
		return
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key(limit), data, c.ttl).Err(); err != nil {
		logger.Warn("cache: leaderboard set failed", "error", err)
	}
}
