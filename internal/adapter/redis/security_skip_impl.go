package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	securitySkipKey = "harvester:security_skip"
	securitySkipTTL = 7 * 24 * time.Hour
)

// SecuritySkipImpl keeps checkpoint hit counts in a Redis hash keyed by listing fingerprint.
type SecuritySkipImpl struct {
	client *redis.Client
}

// NewSecuritySkipRepo creates a new instance of SecuritySkipImpl.
func NewSecuritySkipRepo(client *redis.Client) *SecuritySkipImpl {
	return &SecuritySkipImpl{client: client}
}

// Hits returns 0 for fingerprints that were never recorded.
func (r *SecuritySkipImpl) Hits(ctx context.Context, fingerprint string) (int, error) {
	n, err := r.client.HGet(ctx, securitySkipKey, fingerprint).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// RecordHit increments the counter and refreshes the hash expiry so stale
// blocks eventually clear.
func (r *SecuritySkipImpl) RecordHit(ctx context.Context, fingerprint string) (int, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.HIncrBy(ctx, securitySkipKey, fingerprint, 1)
	pipe.Expire(ctx, securitySkipKey, securitySkipTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

// Clear removes the counter for fingerprint.
func (r *SecuritySkipImpl) Clear(ctx context.Context, fingerprint string) error {
	return r.client.HDel(ctx, securitySkipKey, fingerprint).Err()
}
