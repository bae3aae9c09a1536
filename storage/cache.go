package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"taskboard/domain"
)

// BoardCache wraps a domain.Store with a Redis read-through cache for
// project trees. All other operations pass straight through.
type BoardCache struct {
	domain.Store
	redis *redis.Client
	ttl   time.Duration
}

// NewBoardCache creates a caching wrapper using the provided Redis client and TTL.
func NewBoardCache(base domain.Store, client *redis.Client, ttl time.Duration) *BoardCache {
	if base == nil {
		panic("storage.NewBoardCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &BoardCache{Store: base, redis: client, ttl: ttl}
}

// GetProject serves the cached tree when the cached owner matches. A foreign
// owner falls through to the store so NotFound stays authoritative.
//
// Entries are keyed by the project's generation, which EvictBoard bumps. A
// fill that read the store before an eviction lands under the old generation
// and is never served.
func (c *BoardCache) GetProject(ctx context.Context, projectID, ownerID string) (*domain.Project, error) {
	gen, ok := c.generation(ctx, projectID)
	if ok {
		if p, hit := c.load(ctx, projectID, gen); hit && p.OwnerID == ownerID {
			return p, nil
		}
	}

	p, err := c.Store.GetProject(ctx, projectID, ownerID)
	if err != nil {
		return nil, err
	}

	if ok {
		c.store(ctx, p, gen)
	}
	return p, nil
}

// EvictBoard moves projectID to a new generation and drops the current entry.
func (c *BoardCache) EvictBoard(ctx context.Context, projectID string) {
	if c.redis == nil {
		return
	}
	gen, err := c.redis.Incr(ctx, boardGenerationKey(projectID)).Result()
	if err != nil {
		return
	}
	_ = c.redis.Del(ctx, boardCacheKey(projectID, gen-1)).Err()
}

// generation reports the current generation of projectID. ok is false when
// Redis is unavailable, in which case the cache is bypassed.
func (c *BoardCache) generation(ctx context.Context, projectID string) (int64, bool) {
	if c.redis == nil {
		return 0, false
	}
	gen, err := c.redis.Get(ctx, boardGenerationKey(projectID)).Int64()
	switch {
	case err == redis.Nil:
		return 0, true
	case err != nil:
		return 0, false
	}
	return gen, true
}

func (c *BoardCache) load(ctx context.Context, projectID string, gen int64) (*domain.Project, bool) {
	key := boardCacheKey(projectID, gen)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var p domain.Project
	if err := sonic.Unmarshal(data, &p); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return &p, true
}

func (c *BoardCache) store(ctx context.Context, p *domain.Project, gen int64) {
	if c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(p)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, boardCacheKey(p.ID, gen), data, c.ttl).Err()
}

func boardCacheKey(projectID string, gen int64) string {
	return "board:" + projectID + ":" + strconv.FormatInt(gen, 10)
}

func boardGenerationKey(projectID string) string {
	return "board:" + projectID + ":gen"
}
