package aggregator

import (
	"fmt"
	"time"

	"github.com/easyops/contextcore/pkg/budget"
	"github.com/easyops/contextcore/pkg/cache"
	"github.com/easyops/contextcore/pkg/compiler"
	"github.com/easyops/contextcore/pkg/core/config"
	"github.com/easyops/contextcore/pkg/health"
	"github.com/easyops/contextcore/pkg/kb"
	"github.com/easyops/contextcore/pkg/otel"
	"github.com/easyops/contextcore/pkg/schema"
)

// FromConfig 从配置组装完整的聚合器。
//
// 知识源端点表、契约和编译协作方在此一次性构建，
// 返回后除缓存与健康计数外全部只读。
func FromConfig(cfg *config.Config) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := otel.GetLogger()
	metrics := otel.GetMetrics()
	tracer := otel.GetTracer()

	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	tracker := health.NewTracker()

	fanout := kb.NewFanout(registry,
		kb.WithCallTimeout(cfg.CallTimeout),
		kb.WithRecorder(tracker),
		kb.WithLogger(logger),
		kb.WithMetrics(metrics),
	)

	s, err := loadSchema(cfg)
	if err != nil {
		return nil, err
	}

	comp, err := buildCompiler(cfg, logger, metrics)
	if err != nil {
		return nil, err
	}

	c := cache.New(
		cache.WithCapacity(cfg.Cache.Capacity),
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithRecencyTau(time.Duration(cfg.Cache.RecencyTau*float64(time.Second))),
	)

	limiter := budget.NewLimiter(buildCounter(cfg, logger))

	opts := []Option{
		WithDefaultSources(cfg.DefaultSources...),
		WithDefaultBudget(cfg.TokenBudget),
		WithTracker(tracker),
		WithLogger(logger),
		WithMetrics(metrics),
		WithTracer(tracer),
	}

	if fetcher := buildProfileFetcher(cfg, registry, logger); fetcher != nil {
		opts = append(opts, WithProfileFetcher(fetcher))
	}

	return New(fanout, limiter, c, comp, s, opts...), nil
}

// buildCounter 选择令牌计数器。
//
// 配置了编译模型时用 tiktoken 精确计数，否则用空白分词，
// 保证离线环境下裁剪结果可复现。
func buildCounter(cfg *config.Config, logger otel.Logger) budget.TokenCounter {
	if cfg.Compiler.APIKey == "" {
		return nil
	}
	counter, err := budget.NewTiktokenCounter(budget.WithModel(cfg.Compiler.Model))
	if err != nil {
		logger.Warn("tiktoken 初始化失败，退回空白分词计数", "error", err)
		return nil
	}
	return counter
}

// buildRegistry 按端点表构建知识源注册表。
func buildRegistry(cfg *config.Config) (*kb.Registry, error) {
	registry := kb.NewRegistry()

	for _, src := range cfg.Sources {
		source, err := buildSource(src)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		registry.Register(source)
	}

	return registry, nil
}

// buildSource 根据后端类型创建知识源。
func buildSource(src config.SourceConfig) (kb.Source, error) {
	switch src.Kind {
	case config.SourceKindHTTP:
		return kb.NewHTTPSource(src.Name, src.Endpoint), nil
	case config.SourceKindSQLite:
		return kb.NewSQLiteSource(src.Name, src.Endpoint)
	case config.SourceKindNeo4j:
		return kb.NewNeo4jSource(src.Name, kb.Neo4jConfig{
			URI:      src.Endpoint,
			Username: src.Username,
			Password: src.Password,
		})
	case config.SourceKindStatic:
		return kb.NewStaticSource(src.Name), nil
	default:
		return nil, fmt.Errorf("unsupported source kind: %s", src.Kind)
	}
}

// loadSchema 加载上下文契约，未配置路径时使用内置契约。
func loadSchema(cfg *config.Config) (*schema.Schema, error) {
	if cfg.SchemaPath == "" {
		return schema.Default(), nil
	}
	return schema.Load(cfg.SchemaPath)
}

// buildCompiler 构建编译协作方。
//
// 未配置 API 密钥时使用本地确定性编译器，便于离线运行。
func buildCompiler(cfg *config.Config, logger otel.Logger, metrics otel.Metrics) (compiler.Compiler, error) {
	if cfg.Compiler.APIKey == "" {
		return compiler.NewTemplateCompiler(), nil
	}

	return compiler.NewOpenAICompiler(cfg.Compiler.APIKey, cfg.Compiler.BaseURL,
		compiler.WithCompilerModel(cfg.Compiler.Model),
		compiler.WithCompilerRetries(cfg.Compiler.MaxRetries),
		compiler.WithAgentPrompts(cfg.AgentPrompts),
		compiler.WithCompilerLogger(logger),
		compiler.WithCompilerMetrics(metrics),
	)
}

// buildProfileFetcher 构建主体画像获取器。
//
// 身份与情绪来源都未配置时返回 nil，画像能力不启用。
func buildProfileFetcher(cfg *config.Config, registry *kb.Registry, logger otel.Logger) *kb.ProfileFetcher {
	var identity kb.IdentityProvider
	var sentiment kb.SentimentProvider

	if cfg.IdentitySource != "" {
		if source, err := registry.Get(cfg.IdentitySource); err == nil {
			identity = kb.NewSourceProfileAdapter(source)
		}
	}
	if cfg.SentimentSource != "" {
		if source, err := registry.Get(cfg.SentimentSource); err == nil {
			sentiment = kb.NewSourceProfileAdapter(source)
		}
	}

	if identity == nil && sentiment == nil {
		return nil
	}
	return kb.NewProfileFetcher(identity, sentiment, kb.WithProfileLogger(logger))
}
