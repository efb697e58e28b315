package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/redis"
)

const keyPrefix = "lookup:"

// Store is the key-value backend. *pkgredis.Client satisfies it.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New builds a cache over store. m may be nil.
func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, plan *parser.QueryPlan, limit int) (*executor.LookupResult, bool) {
	key := buildKey(plan, limit)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result executor.LookupResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.CacheHit()
	c.logger.Debug("cache hit", "query", plan.RawQuery, "key", key)
	return &result, true
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	c.metrics.CacheMiss()
}

func (c *QueryCache) Set(ctx context.Context, plan *parser.QueryPlan, limit int, result *executor.LookupResult) {
	key := buildKey(plan, limit)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for plan or computes and stores it.
// Concurrent callers for the same key share one computation. The bool reports
// a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	plan *parser.QueryPlan,
	limit int,
	computeFn func() (*executor.LookupResult, error),
) (*executor.LookupResult, bool, error) {
	if result, ok := c.Get(ctx, plan, limit); ok {
		return result, true, nil
	}
	key := buildKey(plan, limit)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, plan, limit, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.LookupResult), false, nil
}

// Invalidate drops every cached lookup. It runs whenever new modules have been
// indexed.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// buildKey hashes the normalized plan, so "a OR b" and "b OR a" share a key.
func buildKey(plan *parser.QueryPlan, limit int) string {
	raw := fmt.Sprintf("%s|%s|NOT:%s|limit=%d",
		plan.Type, joinTerms(plan.Terms), joinTerms(plan.ExcludeTerms), limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

func joinTerms(terms []parser.Term) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		parts = append(parts, t.String())
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
