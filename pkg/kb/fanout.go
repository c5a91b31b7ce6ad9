package kb

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/easyops/contextcore/pkg/otel"
)

// ErrorRecorder 接收来源失败事件，用于健康统计。
type ErrorRecorder interface {
	// RecordSourceError 记录一次来源失败
	RecordSourceError(source string, status FetchStatus)
}

// FanoutOption Fanout 配置选项。
type FanoutOption func(*Fanout)

// WithCallTimeout 设置单次来源调用的超时时间。
func WithCallTimeout(timeout time.Duration) FanoutOption {
	return func(f *Fanout) {
		f.callTimeout = timeout
	}
}

// WithRecorder 设置来源失败事件接收器。
func WithRecorder(recorder ErrorRecorder) FanoutOption {
	return func(f *Fanout) {
		f.recorder = recorder
	}
}

// WithLogger 设置日志器。
func WithLogger(logger otel.Logger) FanoutOption {
	return func(f *Fanout) {
		f.logger = logger
	}
}

// WithMetrics 设置指标收集器。
func WithMetrics(metrics otel.Metrics) FanoutOption {
	return func(f *Fanout) {
		f.metrics = metrics
	}
}

// Fanout 并行查询多个知识源并归一化结果。
//
// 每个来源使用独立的超时预算；单个来源的失败或超时
// 不影响其他来源，结果按请求顺序返回。
type Fanout struct {
	registry    *Registry
	callTimeout time.Duration
	recorder    ErrorRecorder
	logger      otel.Logger
	metrics     otel.Metrics
}

// NewFanout 创建知识源并行查询器。
func NewFanout(registry *Registry, opts ...FanoutOption) *Fanout {
	f := &Fanout{
		registry:    registry,
		callTimeout: 5 * time.Second,
		logger:      otel.NewNoopLogger(),
		metrics:     otel.NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch 并行查询指定来源，返回与请求等长、顺序一致的片段列表。
//
// 任一来源名称未注册时立即整体失败，不发起任何调用。
// ctx 取消会传播到所有进行中的调用。
func (f *Fanout) Fetch(ctx context.Context, sources []string, subject string, hint string) ([]Fragment, error) {
	resolved, err := f.registry.Resolve(sources)
	if err != nil {
		return nil, err
	}

	fragments := make([]Fragment, len(resolved))
	var wg sync.WaitGroup

	for i, source := range resolved {
		wg.Add(1)
		go func(idx int, src Source) {
			defer wg.Done()
			fragments[idx] = f.fetchOne(ctx, src, subject, hint)
		}(i, source)
	}

	wg.Wait()
	return fragments, nil
}

// fetchOne 查询单个来源，将所有失败转换为带状态的空片段。
func (f *Fanout) fetchOne(ctx context.Context, source Source, subject string, hint string) Fragment {
	callCtx, cancel := context.WithTimeout(ctx, f.callTimeout)
	defer cancel()

	start := time.Now()
	result, err := source.Query(callCtx, subject, hint)
	elapsed := time.Since(start)

	f.metrics.Histogram(otel.MetricFanoutCallDuration).Record(ctx, float64(elapsed.Milliseconds()),
		otel.NewAttr("source", source.Name()))
	f.metrics.Counter(otel.MetricFanoutCalls).Add(ctx, 1,
		otel.NewAttr("source", source.Name()))

	if err != nil {
		status := classifyError(err)
		f.logger.WithContext(ctx).Warn("知识源查询失败",
			"source", source.Name(),
			"status", string(status),
			"error", err.Error(),
			"elapsed", elapsed.String())
		f.metrics.Counter(otel.MetricFanoutErrors).Add(ctx, 1,
			otel.NewAttr("source", source.Name()),
			otel.NewAttr("status", string(status)))
		if status == StatusTimedOut {
			f.metrics.Counter(otel.MetricFanoutTimeouts).Add(ctx, 1,
				otel.NewAttr("source", source.Name()))
		}
		if f.recorder != nil {
			f.recorder.RecordSourceError(source.Name(), status)
		}
		return NewFailedFragment(source.Name(), status, err.Error())
	}

	f.logger.WithContext(ctx).Debug("知识源查询成功",
		"source", source.Name(),
		"facts", len(result.Facts),
		"relevance", result.Relevance,
		"elapsed", elapsed.String())

	return NewFragment(source.Name(), result.Facts, result.Relevance)
}

// classifyError 将来源错误映射为获取状态。
func classifyError(err error) FetchStatus {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return StatusTimedOut
	case stderrors.Is(err, context.Canceled):
		return StatusTimedOut
	case stderrors.Is(err, ErrSourceClosed):
		return StatusUnavailable
	default:
		return StatusError
	}
}

// ErrSourceClosed 表示来源已关闭不可用。
var ErrSourceClosed = stderrors.New("kb: source closed")
