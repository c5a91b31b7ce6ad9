package config

import "errors"

// 配置验证相关错误
var (
	// ErrSourceNameRequired 知识源名称必填
	ErrSourceNameRequired = errors.New("knowledge source name is required")
	// ErrDuplicateSource 知识源名称重复
	ErrDuplicateSource = errors.New("duplicate knowledge source name")
	// ErrUnknownSourceKind 知识源后端类型未知
	ErrUnknownSourceKind = errors.New("unknown knowledge source kind")
	// ErrInvalidTokenBudget Token 预算无效
	ErrInvalidTokenBudget = errors.New("token budget must not be negative")
	// ErrInvalidCacheCapacity 缓存容量无效
	ErrInvalidCacheCapacity = errors.New("cache capacity must be positive")
	// ErrInvalidTimeout 超时时间无效
	ErrInvalidTimeout = errors.New("invalid timeout value")
)
