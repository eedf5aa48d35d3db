package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/carebill/internal/config"
	"go.uber.org/zap"
)

const keyWebhookIntake = "carebill:ratelimit:webhook:%s:%s"

// WebhookLimiter bounds gateway callbacks per provider and client address.
// A nil limiter allows everything.
type WebhookLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewWebhookLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *WebhookLimiter {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil
	}
	if client == nil {
		log.Named("ratelimit").Warn("rate limiting enabled without REDIS_ADDR, webhook intake is unbounded")
		return nil
	}
	if limitCfg.WebhookRate <= 0 || limitCfg.WebhookBurst <= 0 {
		log.Named("ratelimit").Warn("invalid webhook rate limit, webhook intake is unbounded",
			zap.Float64("rate", limitCfg.WebhookRate),
			zap.Int("burst", limitCfg.WebhookBurst),
		)
		return nil
	}
	return &WebhookLimiter{
		bucket: NewTokenBucket(client),
		rate:   limitCfg.WebhookRate,
		burst:  limitCfg.WebhookBurst,
	}
}

func (l *WebhookLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *WebhookLimiter) Allow(ctx context.Context, provider, clientIP string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyWebhookIntake,
		strings.ToLower(strings.TrimSpace(provider)),
		strings.TrimSpace(clientIP),
	)
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}
