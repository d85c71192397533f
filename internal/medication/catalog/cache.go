package catalog

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/medflow/medication-ledger/pkg/logger"
	redis "github.com/redis/go-redis/v9"
)

// Cache stores JSON-encodable lookups. A miss is (false, nil).
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// NoopCache never hits.
type NoopCache struct{}

func (NoopCache) Get(_ context.Context, _ string, _ interface{}) (bool, error) {
	return false, nil
}

func (NoopCache) Set(_ context.Context, _ string, _ interface{}, _ time.Duration) error {
	return nil
}

// RedisCache keeps catalog answers in Redis as JSON.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to Redis. Keys are namespaced under "catalog:".
func NewRedisCache(addr, password string, db int) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisCacheWithClient(client)
}

// NewRedisCacheWithClient adopts an existing client.
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: "catalog:"}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, payload, ttl).Err()
}

// CachedOracle serves repeated catalog questions from a Cache. Cache failures
// are logged and fall through to the wrapped oracle; not-found answers are not cached.
type CachedOracle struct {
	next   Oracle
	cache  Cache
	ttl    time.Duration
	logger *logger.Logger
}

// NewCachedOracle decorates next. A nil cache disables caching.
func NewCachedOracle(next Oracle, cache Cache, ttl time.Duration, log *logger.Logger) *CachedOracle {
	if cache == nil {
		cache = NoopCache{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CachedOracle{next: next, cache: cache, ttl: ttl, logger: log}
}

func (o *CachedOracle) Search(ctx context.Context, query string) ([]Product, error) {
	key := "search:" + strings.ToLower(strings.TrimSpace(query))

	var cached []Product
	if o.lookup(ctx, key, &cached) {
		return cached, nil
	}

	products, err := o.next.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	o.store(ctx, key, products)
	return products, nil
}

func (o *CachedOracle) Product(ctx context.Context, code string) (*Product, error) {
	key := "product:" + code

	var cached Product
	if o.lookup(ctx, key, &cached) {
		return &cached, nil
	}

	p, err := o.next.Product(ctx, code)
	if err != nil {
		return nil, err
	}
	o.store(ctx, key, p)
	return p, nil
}

func (o *CachedOracle) SupplierName(ctx context.Context, supplierID string) (string, error) {
	key := "supplier:" + supplierID

	var cached string
	if o.lookup(ctx, key, &cached) {
		return cached, nil
	}

	name, err := o.next.SupplierName(ctx, supplierID)
	if err != nil {
		return "", err
	}
	o.store(ctx, key, name)
	return name, nil
}

func (o *CachedOracle) lookup(ctx context.Context, key string, dest interface{}) bool {
	ok, err := o.cache.Get(ctx, key, dest)
	if err != nil {
		o.logger.Warn().Err(err).Str("key", key).Msg("catalog cache read failed")
		return false
	}
	return ok
}

func (o *CachedOracle) store(ctx context.Context, key string, value interface{}) {
	if err := o.cache.Set(ctx, key, value, o.ttl); err != nil {
		o.logger.Warn().Err(err).Str("key", key).Msg("catalog cache write failed")
	}
}

var (
	_ Oracle = (*CachedOracle)(nil)
	_ Cache  = (*RedisCache)(nil)
	_ Cache  = NoopCache{}
)
