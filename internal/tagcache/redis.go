// Package tagcache keeps each owner's character tags in Redis so chat lines
// without a known tag never reach the store.
package tagcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
)

const (
	DefaultTTL    = 10 * time.Minute
	DefaultPrefix = "rpxp:tags"
)

type Config struct {
	Client redis.UniversalClient
	TTL    time.Duration
	Prefix string
}

type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

var _ rpxp.TagCache = (*Cache)(nil)

func New(cfg Config) (*Cache, error) {
	if cfg.Client == nil {
		return nil, errors.New("tagcache: redis client is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	return &Cache{client: cfg.Client, ttl: cfg.TTL, prefix: cfg.Prefix}, nil
}

// Dial connects to a single Redis instance and checks it answers.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("tagcache: redis address is required")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (c *Cache) key(guildID, ownerID string) string {
	return c.prefix + ":" + guildID + ":" + ownerID
}

// Tags returns the cached tags. An owner with no characters is cached as an
// empty list, which is still a hit.
func (c *Cache) Tags(ctx context.Context, guildID, ownerID string) ([]string, bool, error) {
	raw, err := c.client.Get(ctx, c.key(guildID, ownerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get tags: %w", err)
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, false, fmt.Errorf("decode tags: %w", err)
	}
	return tags, true, nil
}

func (c *Cache) StoreTags(ctx context.Context, guildID, ownerID string, tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	if err := c.client.Set(ctx, c.key(guildID, ownerID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set tags: %w", err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, guildID, ownerID string) error {
	if err := c.client.Del(ctx, c.key(guildID, ownerID)).Err(); err != nil {
		return fmt.Errorf("delete tags: %w", err)
	}
	return nil
}
