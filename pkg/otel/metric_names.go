package otel

// 预定义的指标名称
// 遵循 OpenTelemetry 语义约定
const (
	// 上下文请求指标
	MetricContextRequests        = "context.requests"         // 计数器: 上下文请求次数
	MetricContextRequestDuration = "context.request.duration" // 直方图: 请求处理时间(ms)
	MetricContextErrors          = "context.errors"           // 计数器: 请求失败次数
	MetricContextDegraded        = "context.degraded"         // 计数器: 降级响应次数

	// 缓存指标
	MetricCacheHits      = "cache.hits"      // 计数器: 缓存命中次数
	MetricCacheMisses    = "cache.misses"    // 计数器: 缓存未命中次数
	MetricCacheEvictions = "cache.evictions" // 计数器: 缓存淘汰次数
	MetricCacheSize      = "cache.size"      // 仪表: 缓存当前条目数

	// 知识源扇出指标
	MetricFanoutCalls        = "fanout.calls"         // 计数器: 知识源调用次数
	MetricFanoutCallDuration = "fanout.call.duration" // 直方图: 知识源调用时间(ms)
	MetricFanoutErrors       = "fanout.errors"        // 计数器: 知识源失败次数
	MetricFanoutTimeouts     = "fanout.timeouts"      // 计数器: 知识源超时次数

	// Token 预算指标
	MetricBudgetTokensRetained = "budget.tokens.retained" // 直方图: 保留的 Token 数
	MetricBudgetFactsDropped   = "budget.facts.dropped"   // 计数器: 被丢弃的事实数

	// 编译指标
	MetricCompileCalls      = "compile.calls"       // 计数器: 编译调用次数
	MetricCompileDuration   = "compile.duration"    // 直方图: 编译时间(ms)
	MetricCompileErrors     = "compile.errors"      // 计数器: 编译失败次数
	MetricCompileViolations = "compile.violations"  // 计数器: 模式校验失败次数
)

// MetricUnit 指标单位
type MetricUnit string

const (
	UnitNone         MetricUnit = ""
	UnitMilliseconds MetricUnit = "ms"
	UnitSeconds      MetricUnit = "s"
	UnitCount        MetricUnit = "1"
)

// MetricDescription 指标描述
type MetricDescription struct {
	Name        string
	Description string
	Unit        MetricUnit
	Type        string // counter, histogram, gauge
}

// PredefinedMetrics 预定义指标列表
var PredefinedMetrics = []MetricDescription{
	{MetricContextRequests, "Number of context requests", UnitCount, "counter"},
	{MetricContextRequestDuration, "Duration of context requests", UnitMilliseconds, "histogram"},
	{MetricContextErrors, "Number of failed context requests", UnitCount, "counter"},
	{MetricContextDegraded, "Number of degraded responses", UnitCount, "counter"},

	{MetricCacheHits, "Number of cache hits", UnitCount, "counter"},
	{MetricCacheMisses, "Number of cache misses", UnitCount, "counter"},
	{MetricCacheEvictions, "Number of cache evictions", UnitCount, "counter"},
	{MetricCacheSize, "Current number of cache entries", UnitCount, "gauge"},

	{MetricFanoutCalls, "Number of knowledge source calls", UnitCount, "counter"},
	{MetricFanoutCallDuration, "Duration of knowledge source calls", UnitMilliseconds, "histogram"},
	{MetricFanoutErrors, "Number of knowledge source failures", UnitCount, "counter"},
	{MetricFanoutTimeouts, "Number of knowledge source timeouts", UnitCount, "counter"},

	{MetricBudgetTokensRetained, "Tokens retained after limiting", UnitCount, "histogram"},
	{MetricBudgetFactsDropped, "Facts dropped by the limiter", UnitCount, "counter"},

	{MetricCompileCalls, "Number of compile calls", UnitCount, "counter"},
	{MetricCompileDuration, "Duration of compile calls", UnitMilliseconds, "histogram"},
	{MetricCompileErrors, "Number of compile failures", UnitCount, "counter"},
	{MetricCompileViolations, "Number of schema validation failures", UnitCount, "counter"},
}
