package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fjod/coffee_saga/internal/cart/domain"
)

const (
	defaultTTL = 15 * time.Minute
	// generation keys outlive any fill that could still be in flight
	generationTTL = 24 * time.Hour
)

// fillScript writes the cart only while the generation key still holds the
// value the caller read before loading the cart. A missing key counts as 0.
var fillScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2])
if (gen or '0') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

type Options struct {
	TTL time.Duration
	// Jitter is added to TTL at random so carts filled together expire apart.
	Jitter time.Duration
}

type RedisCache struct {
	client redis.UniversalClient
	opts   Options
}

func NewRedisCache(client redis.UniversalClient, opts Options) *RedisCache {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	return &RedisCache{client: client, opts: opts}
}

func (r *RedisCache) Get(ctx context.Context, customerID string) (*domain.Cart, error) {
	raw, err := r.client.Get(ctx, cartKey(customerID)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrCacheMiss
	case err != nil:
		return nil, fmt.Errorf("redis get cart %s: %w", customerID, err)
	}

	cart := new(domain.Cart)
	if err := json.Unmarshal(raw, cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return cart, nil
}

func (r *RedisCache) Generation(ctx context.Context, customerID string) (uint64, error) {
	gen, err := r.client.Get(ctx, generationKey(customerID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get cart generation %s: %w", customerID, err)
	}
	return gen, nil
}

func (r *RedisCache) Fill(ctx context.Context, customerID string, cart *domain.Cart, gen uint64) (bool, error) {
	raw, err := json.Marshal(cart)
	if err != nil {
		return false, fmt.Errorf("marshal cart failed: %w", err)
	}

	keys := []string{cartKey(customerID), generationKey(customerID)}
	stored, err := fillScript.Run(ctx, r.client, keys, strconv.FormatUint(gen, 10), raw, r.ttl().Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis fill cart %s: %w", customerID, err)
	}
	return stored == 1, nil
}

// Invalidate drops the cached cart and bumps its generation in one MULTI block.
func (r *RedisCache) Invalidate(ctx context.Context, customerID string) error {
	gk := generationKey(customerID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, gk)
		pipe.Expire(ctx, gk, generationTTL)
		pipe.Del(ctx, cartKey(customerID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate cart %s: %w", customerID, err)
	}
	return nil
}

func (r *RedisCache) ttl() time.Duration {
	if r.opts.Jitter <= 0 {
		return r.opts.TTL
	}
	return r.opts.TTL + rand.N(r.opts.Jitter)
}

// Both keys share a hash tag so the fill script stays on one cluster slot.
func cartKey(customerID string) string {
	return "cart:{" + customerID + "}"
}

func generationKey(customerID string) string {
	return "cart:{" + customerID + "}:gen"
}
