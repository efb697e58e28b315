package cache

import (
	"context"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/searcher/parser"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore { return &memStore{data: map[string]string{}} }

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value.([]byte))
	return nil
}

func (m *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func mustParse(t *testing.T, q string) *parser.QueryPlan {
	t.Helper()
	plan, err := parser.Parse(q)
	require.NoError(t, err)
	return plan
}

func TestGetOrCompute(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	plan := mustParse(t, "typeReferences:a/B")
	calls := 0
	compute := func() (*executor.LookupResult, error) {
		calls++
		return &executor.LookupResult{Query: plan.RawQuery, TotalHits: 1, Values: []string{"x!/A.class"}}, nil
	}

	first, hit, err := c.GetOrCompute(context.Background(), plan, 10, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	second, hit, err := c.GetOrCompute(context.Background(), plan, 10, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first.Values, second.Values)
	assert.Equal(t, 1, calls)

	hits, misses := c.Stats()
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 1, misses)
}

func TestKeyIgnoresTermOrder(t *testing.T) {
	a := buildKey(mustParse(t, "x OR y NOT z"), 10)
	b := buildKey(mustParse(t, "y OR x NOT z"), 10)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, buildKey(mustParse(t, "x OR y NOT z"), 20))
	assert.NotEqual(t, a, buildKey(mustParse(t, "x y NOT z"), 10))
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	store.data["other"] = "kept"
	c := New(store, time.Minute, nil)
	plan := mustParse(t, "run")
	c.Set(context.Background(), plan, 5, &executor.LookupResult{Query: "run"})
	_, ok := c.Get(context.Background(), plan, 5)
	require.True(t, ok)

	require.NoError(t, c.Invalidate(context.Background()))
	_, ok = c.Get(context.Background(), plan, 5)
	assert.False(t, ok)
	assert.Equal(t, "kept", store.data["other"])
}

func TestConcurrentMissesShareComputation(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	plan := mustParse(t, "strings:hello")
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (*executor.LookupResult, error) {
		calls.Add(1)
		<-release
		return &executor.LookupResult{Query: "strings:hello"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), plan, 1, compute)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}
