// Package kb 提供对分布式知识源的并行查询与结果归一化能力。
//
// 每个知识源独立成功、超时或失败；失败的来源产生带状态的空片段，
// 不会中断整个请求。
package kb

// FetchStatus 表示单次知识源调用的结果状态。
type FetchStatus string

const (
	// StatusOK 调用成功
	StatusOK FetchStatus = "ok"

	// StatusTimedOut 调用超时
	StatusTimedOut FetchStatus = "timed_out"

	// StatusUnavailable 知识源不可达
	StatusUnavailable FetchStatus = "unavailable"

	// StatusError 调用返回错误
	StatusError FetchStatus = "error"
)

// Failed 返回该状态是否属于失败。
func (s FetchStatus) Failed() bool {
	return s != StatusOK
}

// Fragment 表示单个知识源的归一化回复。
//
// 创建后不再修改；事实列表保持来源返回的顺序。
type Fragment struct {
	// Source 知识源标识
	Source string

	// Facts 有序事实列表
	Facts []string

	// Relevance 相关性分数（0.0-1.0）
	Relevance float64

	// Status 获取状态
	Status FetchStatus

	// Err 失败时的错误描述（Status 为 error/unavailable 时有值）
	Err string
}

// NewFragment 创建成功片段。相关性会被钳制到 [0.0, 1.0]。
func NewFragment(source string, facts []string, relevance float64) Fragment {
	if relevance < 0 {
		relevance = 0
	}
	if relevance > 1 {
		relevance = 1
	}

	copied := make([]string, len(facts))
	copy(copied, facts)

	return Fragment{
		Source:    source,
		Facts:     copied,
		Relevance: relevance,
		Status:    StatusOK,
	}
}

// NewFailedFragment 创建失败片段：空事实、零相关性、对应状态。
func NewFailedFragment(source string, status FetchStatus, errMsg string) Fragment {
	return Fragment{
		Source:    source,
		Relevance: 0.0,
		Status:    status,
		Err:       errMsg,
	}
}

// SourceStatus 供响应元数据使用的来源状态摘要。
type SourceStatus struct {
	// Source 知识源标识
	Source string
	// Status 获取状态
	Status FetchStatus
	// Err 错误描述（如有）
	Err string
}

// Statuses 提取片段列表的来源状态摘要，保持请求顺序。
func Statuses(fragments []Fragment) []SourceStatus {
	result := make([]SourceStatus, 0, len(fragments))
	for _, f := range fragments {
		result = append(result, SourceStatus{
			Source: f.Source,
			Status: f.Status,
			Err:    f.Err,
		})
	}
	return result
}

// AllFailed 返回是否所有片段均失败。空列表视为失败。
func AllFailed(fragments []Fragment) bool {
	if len(fragments) == 0 {
		return true
	}
	for _, f := range fragments {
		if !f.Status.Failed() {
			return false
		}
	}
	return true
}

// MaxRelevance 返回片段列表中的最大相关性分数。
func MaxRelevance(fragments []Fragment) float64 {
	max := 0.0
	for _, f := range fragments {
		if f.Relevance > max {
			max = f.Relevance
		}
	}
	return max
}
