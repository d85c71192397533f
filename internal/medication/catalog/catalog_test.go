package catalog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/medflow/medication-ledger/pkg/errors"
	"github.com/medflow/medication-ledger/pkg/logger"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `suppliers:
  - id: SUP-PHARMA
    name: Stadt-Apotheke
products:
  - code: PZN-001
    name: Metformin 500mg
    active_ingredient: metformin
    form: tablet
    unit: tablet
    unit_price: 0.12
    supplier_id: SUP-PHARMA
  - code: PZN-002
    name: Ibuprofen 400mg
    active_ingredient: ibuprofen
    form: tablet
    unit: tablet
    unit_price: 0.08
    supplier_id: SUP-PHARMA
`

func loadTestOracle(t *testing.T) *StaticOracle {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))
	o, err := LoadStaticOracle(path)
	require.NoError(t, err)
	return o
}

func TestStaticOracle(t *testing.T) {
	ctx := context.Background()
	o := loadTestOracle(t)

	p, err := o.Product(ctx, "PZN-001")
	require.NoError(t, err)
	assert.Equal(t, "Metformin 500mg", p.Name)
	assert.True(t, p.UnitPrice.Equal(decimal.RequireFromString("0.12")))

	_, err = o.Product(ctx, "PZN-999")
	assert.True(t, errors.IsNotFound(err))

	hits, err := o.Search(ctx, "IBU")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "PZN-002", hits[0].Code)

	all, err := o.Search(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	name, err := o.SupplierName(ctx, "SUP-PHARMA")
	require.NoError(t, err)
	assert.Equal(t, "Stadt-Apotheke", name)

	_, err = o.SupplierName(ctx, "SUP-NONE")
	assert.True(t, errors.IsNotFound(err))
}

// countingOracle records how often the wrapped oracle is reached.
type countingOracle struct {
	Oracle
	mu    sync.Mutex
	calls int
}

func (c *countingOracle) Product(ctx context.Context, code string) (*Product, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.Oracle.Product(ctx, code)
}

// mapCache is an in-process Cache for tests.
type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (m *mapCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *mapCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
	return nil
}

func TestCachedOracle_ServesRepeatsFromCache(t *testing.T) {
	ctx := context.Background()
	inner := &countingOracle{Oracle: loadTestOracle(t)}
	cache := newMapCache()
	o := NewCachedOracle(inner, cache, time.Minute, logger.Nop())

	for i := 0; i < 3; i++ {
		p, err := o.Product(ctx, "PZN-002")
		require.NoError(t, err)
		assert.Equal(t, "Ibuprofen 400mg", p.Name)
		assert.True(t, p.UnitPrice.Equal(decimal.RequireFromString("0.08")))
	}
	assert.Equal(t, 1, inner.calls)

	_, err := o.Product(ctx, "PZN-404")
	assert.True(t, errors.IsNotFound(err))
	_, cachedMiss := cache.data["product:PZN-404"]
	assert.False(t, cachedMiss, "not-found answers are not cached")

	name, err := o.SupplierName(ctx, "SUP-PHARMA")
	require.NoError(t, err)
	assert.Equal(t, "Stadt-Apotheke", name)
	assert.Contains(t, cache.data, "supplier:SUP-PHARMA")

	hits, err := o.Search(ctx, " Metformin ")
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	assert.Contains(t, cache.data, "search:metformin")
}

func TestCachedOracle_FallsThroughWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	cache := NewRedisCacheWithClient(client)
	defer cache.Close()

	o := NewCachedOracle(loadTestOracle(t), cache, time.Minute, logger.Nop())

	p, err := o.Product(context.Background(), "PZN-001")
	require.NoError(t, err)
	assert.Equal(t, "Metformin 500mg", p.Name)
}
