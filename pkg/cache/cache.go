// Package cache 实现容量固定、相关性感知的编译结果缓存。
//
// 满员插入时淘汰 (相关性 × 新近度权重) 综合得分最低的条目，
// 同分淘汰创建时间最早者。
package cache

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/easyops/contextcore/pkg/schema"
)

// Key 缓存键。
//
// Fingerprint 覆盖来源集合与预算等请求参数，
// 同主体不同参数的请求互不命中。
type Key struct {
	Subject     string
	AgentType   string
	Fingerprint uint64
}

// Entry 缓存条目
//
// 由缓存独占持有；淘汰即销毁，外部不得保留引用。
type Entry struct {
	// Key 缓存键
	Key Key

	// Value 编译结果（不可变）
	Value *schema.Compiled

	// Relevance 贡献片段的最大相关性分数
	Relevance float64

	// CreatedAt 创建时间
	CreatedAt time.Time

	// LastAccess 最近访问时间
	LastAccess time.Time

	// Hits 命中次数
	Hits int64
}

// EvictionScore 计算条目的淘汰综合得分。
//
// 得分为 relevance × exp(-age/tau)，其中 age 为距最近访问的
// 时长；得分随年龄单调衰减，老旧低相关条目优先被淘汰。
func EvictionScore(relevance float64, age time.Duration, tau time.Duration) float64 {
	if tau <= 0 {
		tau = time.Hour
	}
	if age < 0 {
		age = 0
	}
	return relevance * math.Exp(-age.Seconds()/tau.Seconds())
}

// Option 缓存配置选项。
type Option func(*Cache)

// WithCapacity 设置缓存容量。
func WithCapacity(capacity int) Option {
	return func(c *Cache) {
		if capacity > 0 {
			c.capacity = capacity
		}
	}
}

// WithTTL 设置条目过期时间。零值表示不过期。
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithRecencyTau 设置新近度衰减时间常数。
func WithRecencyTau(tau time.Duration) Option {
	return func(c *Cache) {
		if tau > 0 {
			c.tau = tau
		}
	}
}

// WithClock 注入时钟，供测试控制时间。
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// Cache 相关性感知缓存
//
// 并发安全；读写均持互斥锁，正确性优先于读并行度。
type Cache struct {
	mu       sync.Mutex
	entries  map[Key]*Entry
	capacity int
	ttl      time.Duration
	tau      time.Duration
	now      func() time.Time

	evictions int64
}

// New 创建缓存。默认容量 100，衰减常数 1 小时。
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:  make(map[Key]*Entry),
		capacity: 100,
		tau:      time.Hour,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup 查找缓存条目。
//
// 命中会刷新最近访问时间并累加命中计数，但不改变相关性分数。
// 过期条目视为未命中并被移除。
func (c *Cache) Lookup(key Key) (*schema.Compiled, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	now := c.now()
	if c.ttl > 0 && now.Sub(entry.CreatedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}

	entry.LastAccess = now
	entry.Hits++
	return entry.Value, true
}

// Insert 插入条目。已存在的键被覆盖并重置元数据。
//
// 满员时先淘汰综合得分最低的条目，同分淘汰创建最早者。
func (c *Cache) Insert(key Key, value *schema.Compiled, relevance float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictLowest(now)
	}

	c.entries[key] = &Entry{
		Key:        key,
		Value:      value,
		Relevance:  relevance,
		CreatedAt:  now,
		LastAccess: now,
	}
}

// evictLowest 淘汰综合得分最低的条目。调用方必须持锁。
func (c *Cache) evictLowest(now time.Time) {
	var victim *Entry
	lowest := math.Inf(1)

	for _, entry := range c.entries {
		score := EvictionScore(entry.Relevance, now.Sub(entry.LastAccess), c.tau)
		if score < lowest || (score == lowest && victim != nil && entry.CreatedAt.Before(victim.CreatedAt)) {
			lowest = score
			victim = entry
		}
	}

	if victim != nil {
		delete(c.entries, victim.Key)
		c.evictions++
	}
}

// Len 返回当前条目数。
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear 清空缓存。
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]*Entry)
}

// Evictions 返回累计淘汰次数。
func (c *Cache) Evictions() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictions
}

// Snapshot 条目元数据快照，供巡检接口使用。
type Snapshot struct {
	Key        Key
	Relevance  float64
	CreatedAt  time.Time
	LastAccess time.Time
	Hits       int64
}

// Recent 返回最近访问的至多 limit 个条目的元数据，按访问时间降序。
func (c *Cache) Recent(limit int) []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshots := make([]Snapshot, 0, len(c.entries))
	for _, entry := range c.entries {
		snapshots = append(snapshots, Snapshot{
			Key:        entry.Key,
			Relevance:  entry.Relevance,
			CreatedAt:  entry.CreatedAt,
			LastAccess: entry.LastAccess,
			Hits:       entry.Hits,
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		if !snapshots[i].LastAccess.Equal(snapshots[j].LastAccess) {
			return snapshots[i].LastAccess.After(snapshots[j].LastAccess)
		}
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})

	if limit > 0 && len(snapshots) > limit {
		snapshots = snapshots[:limit]
	}
	return snapshots
}
