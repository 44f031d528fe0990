package middleware

import (
	"context"
	"fmt"
	"strings"
	"time"

	appErr "arete/pkg/errors"
	"arete/pkg/utils/logger"
	"arete/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const rateKeyPrefix = "arete:rate"

// Counter is the cache subset a fixed-window limiter needs.
type Counter interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// RateLimiter enforces fixed-window limits in Redis.
type RateLimiter struct {
	counter Counter
	window  time.Duration
	timeout time.Duration
}

// NewRateLimiter creates a limiter. window is used when a policy has none.
func NewRateLimiter(counter Counter, window, timeout time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	return &RateLimiter{counter: counter, window: window, timeout: timeout}
}

// Allow counts one hit on key and fails with TooManyRequests past max.
func (l *RateLimiter) Allow(ctx context.Context, key string, max int, window time.Duration) error {
	if l.counter == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}
	if max <= 0 {
		return nil
	}
	if window <= 0 {
		window = l.window
	}

	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	acquired, err := l.counter.SetNX(cctx, key, 1, window)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	count := int64(1)
	if !acquired {
		count, err = l.counter.Incr(cctx, key)
		if err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
		}
		// A key that lost its TTL would never reset.
		if ttl, ttlErr := l.counter.TTL(cctx, key); ttlErr == nil && ttl <= 0 {
			_ = l.counter.Expire(cctx, key, window)
		}
	}
	if int(count) > max {
		return appErr.New(appErr.TooManyRequests).WithMessage(fmt.Sprintf("rate limit exceeded for %s", key))
	}
	return nil
}

// RateLimitPolicy bounds hits per window. Zero maxima are not enforced.
type RateLimitPolicy struct {
	Window     time.Duration `yaml:"window"`
	IPMax      int           `yaml:"ipMax"`
	SessionMax int           `yaml:"sessionMax"`
}

type limitKey struct {
	key string
	max int
}

// Check applies policy to one hit on routeKey from clientIP within sessionID.
// Empty identifiers skip their limit. It returns nil when the cache fails, so
// only a TooManyRequests error should reject the caller.
func (l *RateLimiter) Check(ctx context.Context, routeKey, clientIP, sessionID string, policy RateLimitPolicy) error {
	if l == nil {
		return nil
	}
	var keys []limitKey
	if clientIP = strings.TrimSpace(clientIP); policy.IPMax > 0 && clientIP != "" {
		keys = append(keys, limitKey{fmt.Sprintf("%s:ip:%s:%s", rateKeyPrefix, clientIP, routeKey), policy.IPMax})
	}
	if sessionID = strings.TrimSpace(sessionID); policy.SessionMax > 0 && sessionID != "" {
		keys = append(keys, limitKey{fmt.Sprintf("%s:session:%s:%s", rateKeyPrefix, sessionID, routeKey), policy.SessionMax})
	}

	for _, k := range keys {
		err := l.Allow(ctx, k.key, k.max, policy.Window)
		if err == nil {
			continue
		}
		if appErr.Is(err, appErr.TooManyRequests) {
			return err
		}
		logger.Warn(ctx, "rate limit check skipped", zap.String("route", routeKey), zap.Error(err))
		return nil
	}
	return nil
}

// RateLimitMiddleware limits a route per client IP and per :session_id.
// A nil limiter disables limiting. Cache failures let the request through.
func RateLimitMiddleware(limiter *RateLimiter, routeKey string, policy RateLimitPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := limiter.Check(c.Request.Context(), routeKey, c.ClientIP(), c.Param("session_id"), policy); err != nil {
			response.AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
