package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tradeledger/backend/internal/domain"
)

const (
	reportGenerationKey = "tradeledger:report:gen"
	reportKeyPrefix     = "tradeledger:report"
	revokedTokenPrefix  = "tradeledger:revoked"
)

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// RedisReportCache namespaces entries by a generation counter, so bumping
// the counter orphans every older entry and TTL reclaims them.
type RedisReportCache struct {
	client *redis.Client
}

func NewRedisReportCache(client *redis.Client) *RedisReportCache {
	return &RedisReportCache{client: client}
}

func (c *RedisReportCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, reportGenerationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisReportCache) entryKey(gen int64, key string) string {
	return fmt.Sprintf("%s:g%d:%s", reportKeyPrefix, gen, key)
}

func (c *RedisReportCache) Get(ctx context.Context, key string) (*domain.ReportSummary, int64, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return nil, 0, false, err
	}

	val, err := c.client.Get(ctx, c.entryKey(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gen, false, nil
	}
	if err != nil {
		return nil, gen, false, err
	}

	var summary domain.ReportSummary
	if err := json.Unmarshal(val, &summary); err != nil {
		return nil, gen, false, err
	}
	return &summary, gen, true, nil
}

// Set writes under gen, not the current generation. After an Invalidate
// the entry lands in an orphaned namespace and TTL reclaims it.
func (c *RedisReportCache) Set(ctx context.Context, gen int64, key string, value *domain.ReportSummary, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.entryKey(gen, key), payload, ttl).Err()
}

func (c *RedisReportCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, reportGenerationKey).Err()
}

type RedisTokenDenylist struct {
	client *redis.Client
}

func NewRedisTokenDenylist(client *redis.Client) *RedisTokenDenylist {
	return &RedisTokenDenylist{client: client}
}

func (d *RedisTokenDenylist) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, revokedTokenPrefix+":"+tokenID, "1", ttl).Err()
}

func (d *RedisTokenDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := d.client.Exists(ctx, revokedTokenPrefix+":"+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
