// internal/cache/redis.go
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/coursehub/backend/internal/config"
)

const affiliateCodeTTL = 5 * time.Minute

// Client wraps the Redis connection used for checkout-time affiliate code
// lookups. Every method is safe on a nil receiver so callers degrade to
// the database path when Redis is not configured.
type Client struct {
	rdb *redis.Client
}

func New(cfg config.RedisConfig) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logrus.WithError(err).Warn("Redis unavailable, affiliate code cache disabled")
		return nil
	}

	return &Client{rdb: rdb}
}

func affiliateCodeKey(code string) string {
	return "affiliate:code:" + code
}

// GetAffiliateID returns the cached affiliate id for a code, or "" on a
// miss. Only active, non-revoked affiliates are ever cached.
func (c *Client) GetAffiliateID(ctx context.Context, code string) string {
	if c == nil {
		return ""
	}

	val, err := c.rdb.Get(ctx, affiliateCodeKey(code)).Result()
	if err != nil {
		if err != redis.Nil {
			logrus.WithError(err).Debug("affiliate code cache read failed")
		}
		return ""
	}
	return val
}

func (c *Client) SetAffiliateID(ctx context.Context, code, affiliateID string) {
	if c == nil {
		return
	}

	if err := c.rdb.Set(ctx, affiliateCodeKey(code), affiliateID, affiliateCodeTTL).Err(); err != nil {
		logrus.WithError(err).Debug("affiliate code cache write failed")
	}
}

// InvalidateCode drops a cached code, e.g. after revocation or a profile
// update that deactivates the affiliate.
func (c *Client) InvalidateCode(ctx context.Context, code string) {
	if c == nil {
		return
	}

	if err := c.rdb.Del(ctx, affiliateCodeKey(code)).Err(); err != nil {
		logrus.WithError(err).Debug("affiliate code cache invalidation failed")
	}
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
