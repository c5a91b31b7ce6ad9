// Package config 提供配置加载和管理功能
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/easyops/contextcore/pkg/otel"
)

// SourceKind 知识源后端类型
type SourceKind string

const (
	// SourceKindHTTP 远程 HTTP 知识库服务
	SourceKindHTTP SourceKind = "http"
	// SourceKindSQLite 本地 SQLite 事实存储
	SourceKindSQLite SourceKind = "sqlite"
	// SourceKindNeo4j Neo4j 图知识库
	SourceKindNeo4j SourceKind = "neo4j"
	// SourceKindStatic 静态事实集（测试与演示场景）
	SourceKindStatic SourceKind = "static"
)

// SourceConfig 单个知识源的端点配置
type SourceConfig struct {
	// Name 逻辑知识源名称（如 "mind"、"soul"）
	Name string `koanf:"name"`
	// Kind 后端类型
	Kind SourceKind `koanf:"kind"`
	// Endpoint 端点地址（HTTP URL / SQLite 路径 / Neo4j URI）
	Endpoint string `koanf:"endpoint"`
	// Username 认证用户名（Neo4j）
	Username string `koanf:"username"`
	// Password 认证密码（Neo4j）
	Password string `koanf:"password"`
}

// CompilerConfig 模式编译协作方配置
type CompilerConfig struct {
	// APIKey 协作方 API 密钥
	APIKey string `koanf:"api_key"`
	// BaseURL 协作方端点（为空时使用官方端点）
	BaseURL string `koanf:"base_url"`
	// Model 结构化使用的模型
	Model string `koanf:"model"`
	// MaxRetries 最大重试次数
	MaxRetries int `koanf:"max_retries"`
	// Timeout 单次编译调用超时
	Timeout time.Duration `koanf:"timeout"`
}

// CacheConfig 相关性缓存配置
type CacheConfig struct {
	// Capacity 缓存容量（固定，默认 100）
	Capacity int `koanf:"capacity"`
	// TTL 条目新鲜期，超过视为未命中
	TTL time.Duration `koanf:"ttl"`
	// RecencyTau 新近性衰减时间常数（秒）
	RecencyTau float64 `koanf:"recency_tau"`
}

// Config 全局配置结构
type Config struct {
	// DefaultSources 未指定来源时查询的默认知识源集合
	DefaultSources []string `koanf:"default_sources"`
	// Sources 知识源端点表（启动后只读）
	Sources []SourceConfig `koanf:"sources"`
	// TokenBudget 默认 Token 预算
	TokenBudget int `koanf:"token_budget"`
	// CallTimeout 单个知识源调用超时
	CallTimeout time.Duration `koanf:"call_timeout"`
	// SchemaPath 上下文模式描述文件路径
	SchemaPath string `koanf:"schema_path"`
	// IdentitySource 身份信息来源名称（可为空）
	IdentitySource string `koanf:"identity_source"`
	// SentimentSource 情绪信息来源名称（可为空）
	SentimentSource string `koanf:"sentiment_source"`
	// AgentPrompts 按 Agent 类型划分的基础指令
	AgentPrompts map[string]string `koanf:"agent_prompts"`
	// Cache 缓存配置
	Cache CacheConfig `koanf:"cache"`
	// Compiler 编译协作方配置
	Compiler CompilerConfig `koanf:"compiler"`
	// Observability 可观测性配置
	Observability otel.Config `koanf:"observability"`
}

// Loader 配置加载器
type Loader struct {
	k *koanf.Koanf
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{
		k: koanf.New("."),
	}
}

// LoadEnv 从环境变量加载配置
//
// 双下划线表示层级: CONTEXTCORE_COMPILER__API_KEY -> compiler.api_key，
// 单下划线保留在键名内: CONTEXTCORE_TOKEN_BUDGET -> token_budget。
func (l *Loader) LoadEnv(prefix string) error {
	return l.k.Load(env.Provider(prefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, prefix)
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil)
}

// Unmarshal 解析配置到结构体
func (l *Loader) Unmarshal(cfg *Config) error {
	return l.k.Unmarshal("", cfg)
}

// Get 获取配置值
func (l *Loader) Get(key string) interface{} {
	return l.k.Get(key)
}

// GetString 获取字符串配置值
func (l *Loader) GetString(key string) string {
	return l.k.String(key)
}

// GetInt 获取整数配置值
func (l *Loader) GetInt(key string) int {
	return l.k.Int(key)
}

// GetDuration 获取时间间隔配置值
func (l *Loader) GetDuration(key string) time.Duration {
	return l.k.Duration(key)
}

// Load 加载完整配置（环境变量 + 默认值）
func Load() (*Config, error) {
	loader := NewLoader()

	if err := loader.LoadEnv("CONTEXTCORE_"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := loader.Unmarshal(cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults 应用默认配置值
func applyDefaults(cfg *Config) {
	if len(cfg.DefaultSources) == 0 {
		cfg.DefaultSources = []string{"mind", "soul"}
	}
	if cfg.TokenBudget == 0 {
		cfg.TokenBudget = 2000
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 5 * time.Second
	}

	// 缓存默认值
	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = 100
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 5 * time.Minute
	}
	if cfg.Cache.RecencyTau == 0 {
		cfg.Cache.RecencyTau = 3600 // 1 小时
	}

	// 编译协作方默认值
	if cfg.Compiler.Model == "" {
		cfg.Compiler.Model = "gpt-4o"
	}
	if cfg.Compiler.MaxRetries == 0 {
		cfg.Compiler.MaxRetries = 3
	}
	if cfg.Compiler.Timeout == 0 {
		cfg.Compiler.Timeout = 30 * time.Second
	}

	if cfg.AgentPrompts == nil {
		cfg.AgentPrompts = map[string]string{}
	}

	// 兼容旧部署的 PROMPT_* 环境变量
	legacyPrompts := map[string]string{
		"red-team":  os.Getenv("PROMPT_RED_TEAM"),
		"blue-team": os.Getenv("PROMPT_BLUE_TEAM"),
		"master":    os.Getenv("PROMPT_MASTER"),
	}
	for agentType, prompt := range legacyPrompts {
		if prompt != "" && cfg.AgentPrompts[agentType] == "" {
			cfg.AgentPrompts[agentType] = prompt
		}
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	known := make(map[string]struct{}, len(c.Sources))
	for _, src := range c.Sources {
		if src.Name == "" {
			return ErrSourceNameRequired
		}
		if _, dup := known[src.Name]; dup {
			return ErrDuplicateSource
		}
		known[src.Name] = struct{}{}

		switch src.Kind {
		case SourceKindHTTP, SourceKindSQLite, SourceKindNeo4j, SourceKindStatic:
		default:
			return ErrUnknownSourceKind
		}
	}

	if c.TokenBudget < 0 {
		return ErrInvalidTokenBudget
	}
	if c.Cache.Capacity <= 0 {
		return ErrInvalidCacheCapacity
	}
	if c.CallTimeout <= 0 {
		return ErrInvalidTimeout
	}

	return nil
}
