// Package errors 定义上下文聚合核心的通用错误类型
package errors

import (
	"errors"
	"fmt"
)

// 配置错误（致命，不重试）
var (
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrUnknownSource 未知的知识源名称
	ErrUnknownSource = errors.New("unknown knowledge source")
	// ErrInvalidSchema 上下文模式无效
	ErrInvalidSchema = errors.New("invalid context schema")
)

// 知识源获取相关错误
var (
	// ErrSourceTimeout 单个知识源调用超时
	ErrSourceTimeout = errors.New("knowledge source timed out")
	// ErrSourceUnavailable 知识源不可达
	ErrSourceUnavailable = errors.New("knowledge source unavailable")
	// ErrTotalFanoutFailure 所有知识源均失败（可重试）
	ErrTotalFanoutFailure = errors.New("all knowledge sources failed")
)

// 编译相关错误
var (
	// ErrCompilationFailure 模式编译失败（不可重试）
	ErrCompilationFailure = errors.New("context compilation failed")
	// ErrCompilerUnreachable 编译协作方不可达
	ErrCompilerUnreachable = errors.New("compiler collaborator unreachable")
	// ErrSchemaViolation 编译输出不符合模式
	ErrSchemaViolation = errors.New("compiled output violates schema")
)

// 请求生命周期错误
var (
	// ErrTimeout 调用方截止时间已到（区别于后端超时）
	ErrTimeout = errors.New("request deadline exceeded")
	// ErrContextCanceled 上下文被取消
	ErrContextCanceled = errors.New("context canceled")
)

// WrapError 包装错误并添加上下文信息
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTotalFanoutFailure) ||
		errors.Is(err, ErrSourceTimeout) ||
		errors.Is(err, ErrSourceUnavailable) ||
		errors.Is(err, ErrCompilerUnreachable)
}

// IsFatal 判断错误是否为致命错误（不可恢复）
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrUnknownSource) ||
		errors.Is(err, ErrInvalidSchema)
}

// IsCompilationFailure 判断错误是否属于编译失败
//
// 传输失败和校验失败都归入编译失败，但保留各自的哨兵错误以便观测区分。
func IsCompilationFailure(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrCompilationFailure) ||
		errors.Is(err, ErrCompilerUnreachable) ||
		errors.Is(err, ErrSchemaViolation)
}
