package kb

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/easyops/contextcore/pkg/core/errors"
)

// QueryResult 知识源查询结果。
type QueryResult struct {
	// Facts 有序事实列表
	Facts []string
	// Relevance 相关性分数（0.0-1.0）
	Relevance float64
}

// Source 知识源接口。
//
// Query 必须尊重 ctx 的截止时间；超时应返回 ctx.Err()。
type Source interface {
	// Name 返回知识源标识
	Name() string

	// Query 查询指定主体的相关事实
	Query(ctx context.Context, subject string, hint string) (*QueryResult, error)
}

// Registry 知识源注册表。
//
// 并发安全；查询未注册的来源立即失败，不做网络调用。
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry 创建知识源注册表。
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]Source),
	}
}

// Register 注册知识源。重名会覆盖旧实现。
func (r *Registry) Register(source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.Name()] = source
}

// Get 获取指定名称的知识源。
func (r *Registry) Get(name string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	source, ok := r.sources[name]
	if !ok {
		return nil, errors.WrapError(errors.ErrUnknownSource, name)
	}
	return source, nil
}

// Resolve 批量解析来源名称。任一名称未注册时整体失败。
func (r *Registry) Resolve(names []string) ([]Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resolved := make([]Source, 0, len(names))
	for _, name := range names {
		source, ok := r.sources[name]
		if !ok {
			return nil, errors.WrapError(errors.ErrUnknownSource, name)
		}
		resolved = append(resolved, source)
	}
	return resolved, nil
}

// Names 返回已注册来源名称，字典序排列。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len 返回已注册来源数量。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}

// String 实现 fmt.Stringer。
func (r *Registry) String() string {
	return fmt.Sprintf("Registry(%d sources)", r.Len())
}
