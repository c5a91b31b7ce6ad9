package otel

import "go.opentelemetry.io/otel/attribute"

// 预定义的语义属性键
// 遵循 OpenTelemetry 语义约定
const (
	// 请求相关属性
	AttrRequestID   = "request.id"
	AttrAgentType   = "request.agent_type"
	AttrSubject     = "request.subject"
	AttrTokenBudget = "request.token_budget"

	// 知识源相关属性
	AttrSourceName   = "source.name"
	AttrSourceKind   = "source.kind"
	AttrSourceStatus = "source.status"

	// 缓存相关属性
	AttrCacheKey      = "cache.key"
	AttrCacheHit      = "cache.hit"
	AttrCacheCapacity = "cache.capacity"

	// 模式相关属性
	AttrSchemaID      = "schema.id"
	AttrSchemaVersion = "schema.version"
	AttrSchemaField   = "schema.field"

	// 预算相关属性
	AttrTokensRetained = "budget.tokens_retained"
	AttrFactsRetained  = "budget.facts_retained"

	// Error 相关属性
	AttrErrorType      = "error.type"
	AttrErrorMessage   = "error.message"
	AttrErrorRetryable = "error.retryable"
)

// RequestID 创建请求标识属性
func RequestID(id string) attribute.KeyValue {
	return attribute.String(AttrRequestID, id)
}

// AgentType 创建 Agent 类型属性
func AgentType(typ string) attribute.KeyValue {
	return attribute.String(AttrAgentType, typ)
}

// SourceName 创建知识源名称属性
func SourceName(name string) attribute.KeyValue {
	return attribute.String(AttrSourceName, name)
}

// SourceStatus 创建知识源状态属性
func SourceStatus(status string) attribute.KeyValue {
	return attribute.String(AttrSourceStatus, status)
}

// CacheHit 创建缓存命中属性
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// SchemaID 创建模式标识属性
func SchemaID(id string) attribute.KeyValue {
	return attribute.String(AttrSchemaID, id)
}

// TokensRetained 创建保留 Token 数属性
func TokensRetained(n int) attribute.KeyValue {
	return attribute.Int(AttrTokensRetained, n)
}

// ErrorAttrs 创建错误属性
func ErrorAttrs(errType, message string, retryable bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, errType),
		attribute.String(AttrErrorMessage, message),
		attribute.Bool(AttrErrorRetryable, retryable),
	}
}
