package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/port"
	"github.com/bshelton-songtrust/publishing-platform/internal/repository"
)

const defaultResolverPrefix = "authz:resolved"

// ResolverCacheRepository stores permission resolutions keyed by the
// (principal, publisher) pair. Entries carry the membership version they
// were computed under; staleness is detected by the resolver, the TTL is
// only a backstop.
type ResolverCacheRepository struct {
	client *red.Client
	prefix string
}

// NewResolverCacheRepository wires a Redis client into a resolver cache.
func NewResolverCacheRepository(client *red.Client, keyPrefix string) *ResolverCacheRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultResolverPrefix
	}

	return &ResolverCacheRepository{client: client, prefix: prefix}
}

// Get returns the cached resolution, or repository.ErrNotFound on a miss.
func (r *ResolverCacheRepository) Get(ctx context.Context, principalID, publisherID string) (*port.ResolvedGrant, error) {
	key, err := r.key(principalID, publisherID)
	if err != nil {
		return nil, err
	}

	payload, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get resolved grant: %w", err)
	}

	var grant port.ResolvedGrant
	if err := json.Unmarshal(payload, &grant); err != nil {
		return nil, fmt.Errorf("unmarshal resolved grant: %w", err)
	}

	return &grant, nil
}

// Set stores the resolution with a backstop TTL.
func (r *ResolverCacheRepository) Set(ctx context.Context, principalID, publisherID string, grant port.ResolvedGrant, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	key, err := r.key(principalID, publisherID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("marshal resolved grant: %w", err)
	}

	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set resolved grant: %w", err)
	}

	return nil
}

// Invalidate drops the cached resolution for the pair. Deleting an absent
// key is not an error.
func (r *ResolverCacheRepository) Invalidate(ctx context.Context, principalID, publisherID string) error {
	key, err := r.key(principalID, publisherID)
	if err != nil {
		return err
	}

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del resolved grant: %w", err)
	}

	return nil
}

func (r *ResolverCacheRepository) key(principalID, publisherID string) (string, error) {
	principalID = strings.TrimSpace(principalID)
	publisherID = strings.TrimSpace(publisherID)
	if principalID == "" || publisherID == "" {
		return "", errors.New("principal and publisher ids must not be empty")
	}
	return fmt.Sprintf("%s:%s:%s", r.prefix, principalID, publisherID), nil
}

var _ port.ResolverCache = (*ResolverCacheRepository)(nil)
