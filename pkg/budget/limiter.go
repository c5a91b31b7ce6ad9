package budget

import (
	"sort"

	"github.com/easyops/contextcore/pkg/kb"
)

// Aggregated 预算裁剪后的合并上下文
//
// 创建后不再修改；写入缓存后作为不可变值共享。
type Aggregated struct {
	// Facts 保留的事实，按相关性降序、同分按请求顺序排列
	Facts []string

	// Entities 关键实体集合（来自画像，不占预算）
	Entities []string

	// Tools 工具定义引用集合
	Tools []string

	// Intent 最近一次已知的用户意图
	Intent string

	// AgentType 发起请求的智能体类型
	AgentType string

	// Statuses 各知识源的获取状态，按请求顺序排列
	Statuses []kb.SourceStatus

	// TokenCount 保留事实的令牌总数
	TokenCount int

	// DroppedFacts 因超出预算被丢弃的事实数
	DroppedFacts int
}

// Degraded 返回是否存在失败的知识源。
func (a *Aggregated) Degraded() bool {
	for _, s := range a.Statuses {
		if s.Status.Failed() {
			return true
		}
	}
	return false
}

// maxRelevance 返回成功片段的最大相关性，用于缓存评分。
func maxRelevance(fragments []kb.Fragment) float64 {
	max := 0.0
	for _, f := range fragments {
		if f.Status == kb.StatusOK && f.Relevance > max {
			max = f.Relevance
		}
	}
	return max
}

// Input 裁剪输入。
//
// Entities、Tools 和 Intent 独立于事实流水线，不占令牌预算，
// 预算为零时仍然保留。
type Input struct {
	Fragments []kb.Fragment
	Entities  []string
	Tools     []string
	Intent    string
	AgentType string
}

// Limiter 令牌预算裁剪器
//
// 按相关性降序贪心保留完整事实，令牌总数不超过预算；
// 放不下的事实整条跳过，绝不截断。
type Limiter struct {
	counter TokenCounter
}

// NewLimiter 创建预算裁剪器。counter 为 nil 时使用默认计数器。
func NewLimiter(counter TokenCounter) *Limiter {
	if counter == nil {
		counter = DefaultTokenCounter()
	}
	return &Limiter{counter: counter}
}

// Limit 在给定预算内裁剪输入，返回合并上下文。
//
// 片段先按相关性降序稳定排序（同分保持请求顺序），
// 再按序贪心接纳完整事实；预算为零时事实列表为空，
// 实体与意图字段照常保留。
func (l *Limiter) Limit(input Input, tokenBudget int) *Aggregated {
	ordered := make([]kb.Fragment, len(input.Fragments))
	copy(ordered, input.Fragments)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Relevance > ordered[j].Relevance
	})

	var facts []string
	remaining := tokenBudget
	used := 0
	dropped := 0

	for _, fragment := range ordered {
		if fragment.Status.Failed() {
			continue
		}
		for _, fact := range fragment.Facts {
			cost := l.counter.Count(fact)
			if cost > remaining {
				dropped++
				continue
			}
			facts = append(facts, fact)
			remaining -= cost
			used += cost
		}
	}

	return &Aggregated{
		Facts:        facts,
		Entities:     input.Entities,
		Tools:        input.Tools,
		Intent:       input.Intent,
		AgentType:    input.AgentType,
		Statuses:     kb.Statuses(input.Fragments),
		TokenCount:   used,
		DroppedFacts: dropped,
	}
}

// Relevance 返回输入中成功片段的最大相关性分数。
//
// 该分数随编译结果一起写入缓存，参与淘汰评分。
func (l *Limiter) Relevance(input Input) float64 {
	return maxRelevance(input.Fragments)
}
