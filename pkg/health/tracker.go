// Package health 跟踪服务运行时长与请求健康统计。
package health

import (
	"sync"
	"time"

	"github.com/easyops/contextcore/pkg/kb"
)

// Status 服务状态
type Status string

const (
	// StatusServing 正常服务
	StatusServing Status = "serving"

	// StatusNotServing 停止服务（关闭中或未初始化）
	StatusNotServing Status = "not_serving"
)

// Snapshot 健康统计快照
//
// 不可变值；返回后与跟踪器状态无关。
type Snapshot struct {
	// Status 当前服务状态
	Status Status `json:"status"`

	// Uptime 服务运行时长
	Uptime time.Duration `json:"uptime"`

	// StartedAt 服务启动时间
	StartedAt time.Time `json:"started_at"`

	// Requests 累计请求数
	Requests int64 `json:"requests"`

	// Failures 累计失败请求数
	Failures int64 `json:"failures"`

	// Degraded 累计降级响应数
	Degraded int64 `json:"degraded"`

	// CacheHits 累计缓存命中数
	CacheHits int64 `json:"cache_hits"`

	// CacheMisses 累计缓存未命中数
	CacheMisses int64 `json:"cache_misses"`

	// SourceErrors 按来源划分的失败计数
	SourceErrors map[string]int64 `json:"source_errors,omitempty"`
}

// HitRate 返回缓存命中率，无查询时为 0。
func (s Snapshot) HitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// TrackerOption 跟踪器配置选项。
type TrackerOption func(*Tracker)

// WithClock 注入时钟，供测试控制时间。
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// Tracker 健康统计跟踪器
//
// 并发安全；作为进程级共享状态，所有变更持锁进行。
type Tracker struct {
	mu           sync.Mutex
	startedAt    time.Time
	requests     int64
	failures     int64
	degraded     int64
	cacheHits    int64
	cacheMisses  int64
	sourceErrors map[string]int64
	serving      bool
	now          func() time.Time
}

// NewTracker 创建健康跟踪器，启动时间取创建时刻。
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		sourceErrors: make(map[string]int64),
		serving:      true,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.startedAt = t.now()
	return t
}

// RecordRequest 记录一次请求结束。
func (t *Tracker) RecordRequest(failed bool, degraded bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.requests++
	if failed {
		t.failures++
	}
	if degraded {
		t.degraded++
	}
}

// RecordCacheHit 记录一次缓存命中。
func (t *Tracker) RecordCacheHit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cacheHits++
}

// RecordCacheMiss 记录一次缓存未命中。
func (t *Tracker) RecordCacheMiss() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cacheMisses++
}

// RecordSourceError 记录一次来源失败
func (t *Tracker) RecordSourceError(source string, status kb.FetchStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sourceErrors[source]++
}

// SetServing 切换服务状态，关闭流程中置为 false。
func (t *Tracker) SetServing(serving bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.serving = serving
}

// Snapshot 返回当前统计的不可变快照。
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	errors := make(map[string]int64, len(t.sourceErrors))
	for source, count := range t.sourceErrors {
		errors[source] = count
	}

	status := StatusServing
	if !t.serving {
		status = StatusNotServing
	}

	return Snapshot{
		Status:       status,
		Uptime:       t.now().Sub(t.startedAt),
		StartedAt:    t.startedAt,
		Requests:     t.requests,
		Failures:     t.failures,
		Degraded:     t.degraded,
		CacheHits:    t.cacheHits,
		CacheMisses:  t.cacheMisses,
		SourceErrors: errors,
	}
}

// compile-time interface check
var _ kb.ErrorRecorder = (*Tracker)(nil)
