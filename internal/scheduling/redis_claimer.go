package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds the caller's owner value.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisClaimer stores claims as SET NX keys so several daemons can share one
// slot pool. Keys expire after ttl, long after the slot has been published.
type RedisClaimer struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisClaimer builds a claimer. prefix namespaces the keys.
func NewRedisClaimer(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisClaimer {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisClaimer{client: client, prefix: prefix, ttl: ttl}
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (c *RedisClaimer) key(k SlotKey) string {
	return c.prefix + "slot:" + k.String()
}

func (c *RedisClaimer) Claim(ctx context.Context, key SlotKey, owner string) (ClaimOutcome, error) {
	ok, err := c.client.SetNX(ctx, c.key(key), owner, c.ttl).Result()
	if err != nil {
		return ClaimLost, fmt.Errorf("claim %s: %w", key, err)
	}
	if ok {
		return ClaimWon, nil
	}
	holder, err := c.client.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return ClaimLost, nil
	}
	if err != nil {
		return ClaimLost, fmt.Errorf("read claim %s: %w", key, err)
	}
	if holder == owner {
		return ClaimAlreadyHeld, nil
	}
	return ClaimLost, nil
}

func (c *RedisClaimer) Release(ctx context.Context, key SlotKey, owner string) error {
	if err := releaseScript.Run(ctx, c.client, []string{c.key(key)}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

// Holdings reads every hour of day in one MGET.
func (c *RedisClaimer) Holdings(ctx context.Context, brand, day string) ([]SlotHolding, error) {
	keys := make([]string, 24)
	for hour := range 24 {
		keys[hour] = c.key(SlotKey{Brand: brand, Day: day, Hour: hour})
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list claims %s:%s: %w", brand, day, err)
	}
	var out []SlotHolding
	for hour, value := range values {
		if owner, ok := value.(string); ok {
			out = append(out, SlotHolding{Hour: hour, Owner: owner})
		}
	}
	return out, nil
}
