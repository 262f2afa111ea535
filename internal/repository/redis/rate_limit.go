package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/port"
)

const defaultRateLimitPrefix = "authz:ratelimit"

// RateLimitRepository maintains per-token fixed-window counters in Redis.
// INCR is the check and the increment in one atomic step; the window expiry
// is attached when the counter is first created.
type RateLimitRepository struct {
	client *red.Client
	prefix string
}

// NewRateLimitRepository constructs a repository using the provided Redis client.
func NewRateLimitRepository(client *red.Client, keyPrefix string) *RateLimitRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultRateLimitPrefix
	}

	return &RateLimitRepository{client: client, prefix: prefix}
}

// Allow counts one use of the token inside the current window and reports
// whether the limit still admits it. A non-positive limit admits everything.
func (r *RateLimitRepository) Allow(ctx context.Context, tokenID string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	if window <= 0 {
		return false, errors.New("window must be positive")
	}

	key := r.key(tokenID)
	if key == "" {
		return false, errors.New("token id must not be empty")
	}

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis incr rate limit: %w", err)
	}

	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("redis expire rate limit: %w", err)
		}
	}

	return count <= int64(limit), nil
}

func (r *RateLimitRepository) key(tokenID string) string {
	trimmed := strings.TrimSpace(tokenID)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", r.prefix, trimmed)
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
