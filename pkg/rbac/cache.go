package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DecisionKey identifies a cached capability decision. Policy is the
// fingerprint of the policy the decision was made under, so a policy change
// never serves an older decision.
type DecisionKey struct {
	ProjectID  int64
	Policy     string
	Login      string
	Capability Capability
}

func (k DecisionKey) String() string {
	return fmt.Sprintf("%s%s:%s:%s", projectPrefix(k.ProjectID), k.Policy, k.Login, k.Capability)
}

func projectPrefix(projectID int64) string {
	return fmt.Sprintf("authz:%d:", projectID)
}

// DecisionCache memoizes capability decisions. Any grant change in a project
// must invalidate that project's decisions.
type DecisionCache interface {
	Get(ctx context.Context, key DecisionKey) (*Decision, bool)
	Set(ctx context.Context, key DecisionKey, decision *Decision)
	InvalidateProject(ctx context.Context, projectID int64) error
}

// NoopDecisionCache never stores anything
type NoopDecisionCache struct{}

func (NoopDecisionCache) Get(context.Context, DecisionKey) (*Decision, bool) { return nil, false }
func (NoopDecisionCache) Set(context.Context, DecisionKey, *Decision)        {}
func (NoopDecisionCache) InvalidateProject(context.Context, int64) error     { return nil }

// MemoryDecisionCache is an in-process LRU with a per-entry TTL
type MemoryDecisionCache struct {
	cache *lru.LRU[string, Decision]
}

// NewMemoryDecisionCache creates an LRU holding at most size decisions
func NewMemoryDecisionCache(size int, ttl time.Duration) *MemoryDecisionCache {
	if size < 1 {
		size = 1
	}
	return &MemoryDecisionCache{
		cache: lru.NewLRU[string, Decision](size, nil, ttl),
	}
}

// Get returns a copy of the cached decision
func (c *MemoryDecisionCache) Get(_ context.Context, key DecisionKey) (*Decision, bool) {
	d, ok := c.cache.Get(key.String())
	if !ok {
		return nil, false
	}
	return &d, true
}

func (c *MemoryDecisionCache) Set(_ context.Context, key DecisionKey, decision *Decision) {
	if decision == nil {
		return
	}
	c.cache.Add(key.String(), *decision)
}

func (c *MemoryDecisionCache) InvalidateProject(_ context.Context, projectID int64) error {
	prefix := projectPrefix(projectID)
	for _, k := range c.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.cache.Remove(k)
		}
	}
	return nil
}

// Len returns the number of cached decisions
func (c *MemoryDecisionCache) Len() int {
	return c.cache.Len()
}

// RedisDecisionCache shares decisions between processes
type RedisDecisionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDecisionCache creates a cache backed by client
func NewRedisDecisionCache(client *redis.Client, ttl time.Duration) *RedisDecisionCache {
	return &RedisDecisionCache{client: client, ttl: ttl}
}

// Get treats any redis failure as a miss
func (c *RedisDecisionCache) Get(ctx context.Context, key DecisionKey) (*Decision, bool) {
	cached, err := c.client.Get(ctx, key.String()).Result()
	if err != nil {
		return nil, false
	}

	var d Decision
	if err := json.Unmarshal([]byte(cached), &d); err != nil {
		return nil, false
	}
	return &d, true
}

func (c *RedisDecisionCache) Set(ctx context.Context, key DecisionKey, decision *Decision) {
	if decision == nil {
		return
	}
	data, err := json.Marshal(decision)
	if err != nil {
		return
	}
	c.client.Set(ctx, key.String(), data, c.ttl)
}

func (c *RedisDecisionCache) InvalidateProject(ctx context.Context, projectID int64) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, projectPrefix(projectID)+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cached decisions: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete cached decisions: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
