package aggregator

import (
	"context"
	stderrors "errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/easyops/contextcore/pkg/budget"
	"github.com/easyops/contextcore/pkg/cache"
	"github.com/easyops/contextcore/pkg/compiler"
	"github.com/easyops/contextcore/pkg/core/errors"
	"github.com/easyops/contextcore/pkg/health"
	"github.com/easyops/contextcore/pkg/kb"
	"github.com/easyops/contextcore/pkg/otel"
	"github.com/easyops/contextcore/pkg/schema"
)

// Response 上下文响应。
type Response struct {
	// Compiled 契约合规的编译结果
	Compiled *schema.Compiled

	// Sources 各知识源的获取状态（缓存命中时为空）
	Sources []kb.SourceStatus

	// Degraded 是否存在失败的知识源
	Degraded bool

	// CacheHit 是否命中缓存
	CacheHit bool

	// TokensUsed 保留事实占用的令牌数
	TokensUsed int

	// RequestID 请求标识
	RequestID string
}

// Option 聚合器配置选项。
type Option func(*Aggregator)

// WithDefaultSources 设置默认知识源集合。
func WithDefaultSources(sources ...string) Option {
	return func(a *Aggregator) {
		a.defaultSources = sources
	}
}

// WithDefaultBudget 设置默认令牌预算。
func WithDefaultBudget(tokens int) Option {
	return func(a *Aggregator) {
		a.defaultBudget = tokens
	}
}

// WithProfileFetcher 设置主体画像获取器。
func WithProfileFetcher(fetcher *kb.ProfileFetcher) Option {
	return func(a *Aggregator) {
		a.profiles = fetcher
	}
}

// WithTracker 设置健康统计跟踪器。
func WithTracker(tracker *health.Tracker) Option {
	return func(a *Aggregator) {
		a.tracker = tracker
	}
}

// WithLogger 设置日志器。
func WithLogger(logger otel.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithMetrics 设置指标收集器。
func WithMetrics(metrics otel.Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = metrics
	}
}

// WithTracer 设置追踪器。
func WithTracer(tracer otel.Tracer) Option {
	return func(a *Aggregator) {
		a.tracer = tracer
	}
}

// Aggregator 上下文聚合编排器
//
// 持有流水线的全部组件；缓存与健康计数是仅有的跨请求
// 可变状态，其余组件启动后只读。
type Aggregator struct {
	fanout   *kb.Fanout
	limiter  *budget.Limiter
	cache    *cache.Cache
	compiler compiler.Compiler
	schema   *schema.Schema
	profiles *kb.ProfileFetcher
	tracker  *health.Tracker

	defaultSources []string
	defaultBudget  int

	logger  otel.Logger
	metrics otel.Metrics
	tracer  otel.Tracer

	flights singleflight.Group
}

// New 创建聚合器。
func New(fanout *kb.Fanout, limiter *budget.Limiter, c *cache.Cache, comp compiler.Compiler, s *schema.Schema, opts ...Option) *Aggregator {
	a := &Aggregator{
		fanout:         fanout,
		limiter:        limiter,
		cache:          c,
		compiler:       comp,
		schema:         s,
		defaultSources: []string{"mind", "soul"},
		defaultBudget:  2000,
		logger:         otel.NewNoopLogger(),
		metrics:        otel.NewNoopMetrics(),
		tracer:         otel.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GetContext 执行上下文聚合流水线。
//
// 缓存命中直接返回；未命中时并行取数、裁剪并编译，
// 成功结果写入缓存。相同缓存键的并发请求合并为一次执行，
// 全部合并方收到同一结果。调用方取消或超时返回 Timeout 错误。
func (a *Aggregator) GetContext(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := a.tracer.Start(ctx, "aggregator.GetContext",
		otel.WithSpanKind(otel.SpanKindServer),
		otel.WithAttributes(
			otel.RequestID(req.ID),
			otel.AgentType(string(req.AgentType)),
		))
	defer span.End()

	start := time.Now()
	a.metrics.Counter(otel.MetricContextRequests).Add(ctx, 1,
		otel.NewAttr("agent_type", string(req.AgentType)))

	resp, err := a.getContext(ctx, req)

	a.metrics.Histogram(otel.MetricContextRequestDuration).Record(ctx, float64(time.Since(start).Milliseconds()))
	if a.tracker != nil {
		a.tracker.RecordRequest(err != nil, err == nil && resp.Degraded)
	}

	if err != nil {
		a.metrics.Counter(otel.MetricContextErrors).Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(otel.StatusError, err.Error())
		return nil, err
	}

	if resp.Degraded {
		a.metrics.Counter(otel.MetricContextDegraded).Add(ctx, 1)
	}
	span.SetAttributes(otel.CacheHit(resp.CacheHit))
	span.SetStatus(otel.StatusOK, "")
	return resp, nil
}

func (a *Aggregator) getContext(ctx context.Context, req *Request) (*Response, error) {
	if !req.AgentType.Valid() {
		return nil, errors.WrapError(errors.ErrInvalidConfig, "unknown agent type: "+string(req.AgentType))
	}

	sources := req.Sources
	if len(sources) == 0 {
		sources = a.defaultSources
	}
	tokenBudget := a.defaultBudget
	if req.TokenBudget != nil {
		if *req.TokenBudget < 0 {
			return nil, errors.WrapError(errors.ErrInvalidConfig, "token budget must not be negative")
		}
		tokenBudget = *req.TokenBudget
	}

	key := cacheKey(req, sources, tokenBudget)

	// 缓存探测
	if compiled, ok := a.cache.Lookup(key); ok {
		a.metrics.Counter(otel.MetricCacheHits).Add(ctx, 1)
		if a.tracker != nil {
			a.tracker.RecordCacheHit()
		}
		a.logger.WithContext(ctx).Debug("缓存命中",
			"request_id", req.ID,
			"subject", req.Subject)
		return &Response{
			Compiled:  compiled,
			CacheHit:  true,
			RequestID: req.ID,
		}, nil
	}

	a.metrics.Counter(otel.MetricCacheMisses).Add(ctx, 1)
	if a.tracker != nil {
		a.tracker.RecordCacheMiss()
	}

	// 合并执行：相同缓存键的并发请求共用一次流水线
	ch := a.flights.DoChan(flightKey(key), func() (interface{}, error) {
		return a.execute(ctx, req, sources, tokenBudget, key)
	})

	select {
	case <-ctx.Done():
		// 调用方取消只影响自身及同组合并方，流水线错误由组内统一返回
		return nil, errors.WrapError(errors.ErrTimeout, ctx.Err().Error())
	case result := <-ch:
		if result.Err != nil {
			return nil, result.Err
		}
		resp := result.Val.(*Response)
		if result.Shared {
			// 合并方复用同一结果，仅替换请求标识
			shared := *resp
			shared.RequestID = req.ID
			return &shared, nil
		}
		return resp, nil
	}
}

// execute 执行一次完整的取数-裁剪-编译流水线。
func (a *Aggregator) execute(ctx context.Context, req *Request, sources []string, tokenBudget int, key cache.Key) (*Response, error) {
	// 画像与事实并行获取
	profileCh := make(chan kb.Profile, 1)
	if a.profiles != nil {
		go func() {
			profileCh <- a.profiles.Fetch(ctx, req.Subject)
		}()
	} else {
		profileCh <- kb.Profile{}
	}

	fragments, err := a.fanout.Fetch(ctx, sources, req.Subject, req.Hint)
	if err != nil {
		return nil, err
	}

	if kb.AllFailed(fragments) {
		// 发起方取消会让所有取数调用一起失败，按超时而非取数失败上报
		if ctx.Err() != nil {
			return nil, errors.WrapError(errors.ErrTimeout, ctx.Err().Error())
		}
		a.logger.WithContext(ctx).Error("所有知识源均失败",
			"request_id", req.ID,
			"sources", sources)
		return nil, errors.WrapError(errors.ErrTotalFanoutFailure, req.Subject)
	}

	profile := <-profileCh

	// 预算裁剪
	input := budget.Input{
		Fragments: fragments,
		Entities:  profile.Identity,
		Intent:    profile.Sentiment,
		AgentType: string(req.AgentType),
	}
	aggregated := a.limiter.Limit(input, tokenBudget)

	a.metrics.Histogram(otel.MetricBudgetTokensRetained).Record(ctx, float64(aggregated.TokenCount))
	if aggregated.DroppedFacts > 0 {
		a.metrics.Counter(otel.MetricBudgetFactsDropped).Add(ctx, int64(aggregated.DroppedFacts))
	}

	// 契约编译：没有降级路径，失败即整个请求失败
	compiled, err := a.compiler.Compile(ctx, aggregated, a.schema)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
			return nil, errors.WrapError(errors.ErrTimeout, err.Error())
		}
		return nil, err
	}

	// 成功结果写入缓存；失败从不缓存
	a.cache.Insert(key, compiled, a.limiter.Relevance(input))
	a.metrics.Gauge(otel.MetricCacheSize).Set(ctx, float64(a.cache.Len()))

	a.logger.WithContext(ctx).Info("上下文聚合完成",
		"request_id", req.ID,
		"subject", req.Subject,
		"facts", len(aggregated.Facts),
		"tokens", aggregated.TokenCount,
		"degraded", aggregated.Degraded())

	return &Response{
		Compiled:   compiled,
		Sources:    aggregated.Statuses,
		Degraded:   aggregated.Degraded(),
		CacheHit:   false,
		TokensUsed: aggregated.TokenCount,
		RequestID:  req.ID,
	}, nil
}

// Health 返回健康统计快照。未配置跟踪器时返回零值快照。
func (a *Aggregator) Health() health.Snapshot {
	if a.tracker == nil {
		return health.Snapshot{Status: health.StatusServing}
	}
	return a.tracker.Snapshot()
}

// RecentEntries 返回缓存中最近访问的条目元数据。
func (a *Aggregator) RecentEntries(limit int) []cache.Snapshot {
	return a.cache.Recent(limit)
}
