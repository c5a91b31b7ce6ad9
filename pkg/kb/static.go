package kb

import (
	"context"
	"sync"
)

// StaticSource 内存静态知识源
//
// 用于测试和演示；数据在创建后通过 Seed 写入，查询按写入顺序返回。
type StaticSource struct {
	name string

	mu      sync.RWMutex
	facts   map[string][]string
	scores  map[string]float64
	latency func(ctx context.Context) error
}

// NewStaticSource 创建静态知识源。
func NewStaticSource(name string) *StaticSource {
	return &StaticSource{
		name:   name,
		facts:  make(map[string][]string),
		scores: make(map[string]float64),
	}
}

// Name 返回知识源标识
func (s *StaticSource) Name() string {
	return s.name
}

// Seed 写入主体的事实与整体相关性，覆盖已有数据。
func (s *StaticSource) Seed(subject string, facts []string, relevance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]string, len(facts))
	copy(copied, facts)
	s.facts[subject] = copied
	s.scores[subject] = relevance
}

// SetDelay 注入调用前的等待逻辑，供超时测试使用。
func (s *StaticSource) SetDelay(fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = fn
}

// Query 返回主体的预置事实。未知主体返回空结果。
func (s *StaticSource) Query(ctx context.Context, subject string, hint string) (*QueryResult, error) {
	s.mu.RLock()
	delay := s.latency
	s.mu.RUnlock()

	if delay != nil {
		if err := delay(ctx); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	facts, ok := s.facts[subject]
	if !ok {
		return &QueryResult{}, nil
	}

	copied := make([]string, len(facts))
	copy(copied, facts)
	return &QueryResult{Facts: copied, Relevance: s.scores[subject]}, nil
}

// compile-time interface check
var _ Source = (*StaticSource)(nil)
