// Package aggregator 编排上下文聚合流水线。
//
// 单个请求依次经过 缓存探测 → 并行取数 → 预算裁剪 → 契约编译 →
// 缓存写入；相同缓存键的并发请求合并为一次执行。
package aggregator

import (
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"

	"github.com/easyops/contextcore/pkg/cache"
)

// AgentType 智能体类型。
type AgentType string

const (
	// AgentRedTeam 红队推演智能体
	AgentRedTeam AgentType = "red-team"

	// AgentBlueTeam 蓝队防守智能体
	AgentBlueTeam AgentType = "blue-team"

	// AgentMaster 主控智能体
	AgentMaster AgentType = "master"

	// AgentOther 其他智能体
	AgentOther AgentType = "other"
)

// Valid 返回智能体类型是否合法。
func (t AgentType) Valid() bool {
	switch t {
	case AgentRedTeam, AgentBlueTeam, AgentMaster, AgentOther:
		return true
	}
	return false
}

// Request 上下文请求
//
// 创建后不可变；零值字段在执行时由配置默认值补齐。
type Request struct {
	// ID 请求标识
	ID string

	// AgentType 发起请求的智能体类型
	AgentType AgentType

	// Subject 主体身份（可为空）
	Subject string

	// Sources 要查询的知识源名称（为空时使用默认集合）
	Sources []string

	// TokenBudget 令牌预算覆盖值（nil 时使用默认预算）
	TokenBudget *int

	// Hint 透传给知识源的查询提示
	Hint string
}

// RequestOption 请求配置选项。
type RequestOption func(*Request)

// WithSubject 设置主体身份。
func WithSubject(subject string) RequestOption {
	return func(r *Request) {
		r.Subject = subject
	}
}

// WithSources 设置要查询的知识源。
func WithSources(sources ...string) RequestOption {
	return func(r *Request) {
		copied := make([]string, len(sources))
		copy(copied, sources)
		r.Sources = copied
	}
}

// WithTokenBudget 覆盖令牌预算。
func WithTokenBudget(budget int) RequestOption {
	return func(r *Request) {
		r.TokenBudget = &budget
	}
}

// WithHint 设置查询提示。
func WithHint(hint string) RequestOption {
	return func(r *Request) {
		r.Hint = hint
	}
}

// NewRequest 创建上下文请求，自动分配请求标识。
func NewRequest(agentType AgentType, opts ...RequestOption) *Request {
	r := &Request{
		ID:        uuid.NewString(),
		AgentType: agentType,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// cacheKey 计算请求的缓存键。
//
// 指纹覆盖来源集合与预算，相同主体不同参数的请求互不命中。
func cacheKey(r *Request, sources []string, tokenBudget int) cache.Key {
	h := fnv.New64a()
	for _, source := range sources {
		h.Write([]byte(source))
		h.Write([]byte{0})
	}
	fmt.Fprintf(h, "budget=%d;hint=%s", tokenBudget, r.Hint)

	return cache.Key{
		Subject:     r.Subject,
		AgentType:   string(r.AgentType),
		Fingerprint: h.Sum64(),
	}
}

// flightKey 计算请求的合并执行键。
func flightKey(key cache.Key) string {
	return fmt.Sprintf("%s|%s|%x", key.Subject, key.AgentType, key.Fingerprint)
}
