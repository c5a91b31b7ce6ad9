package compiler

import (
	"context"
	stderrors "errors"
	"net"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/easyops/contextcore/pkg/budget"
	"github.com/easyops/contextcore/pkg/core/errors"
	"github.com/easyops/contextcore/pkg/otel"
	"github.com/easyops/contextcore/pkg/schema"
)

// OpenAICompiler 基于 OpenAI 兼容接口的编译协作方
//
// 以 JSON 模式调用远端模型，返回载荷逐字段通过契约校验
// 后才交付；传输失败带指数退避重试，契约违规立即失败。
type OpenAICompiler struct {
	client     *openai.Client
	model      string
	maxRetries int
	retryDelay time.Duration
	prompts    map[string]string
	logger     otel.Logger
	metrics    otel.Metrics
}

// OpenAIOption OpenAICompiler 配置选项。
type OpenAIOption func(*OpenAICompiler)

// WithCompilerModel 设置模型名称。
func WithCompilerModel(model string) OpenAIOption {
	return func(c *OpenAICompiler) {
		c.model = model
	}
}

// WithCompilerRetries 设置传输失败的最大重试次数。
func WithCompilerRetries(n int) OpenAIOption {
	return func(c *OpenAICompiler) {
		c.maxRetries = n
	}
}

// WithAgentPrompts 设置按智能体类型划分的基础指令。
func WithAgentPrompts(prompts map[string]string) OpenAIOption {
	return func(c *OpenAICompiler) {
		c.prompts = prompts
	}
}

// WithCompilerLogger 设置日志器。
func WithCompilerLogger(logger otel.Logger) OpenAIOption {
	return func(c *OpenAICompiler) {
		c.logger = logger
	}
}

// WithCompilerMetrics 设置指标收集器。
func WithCompilerMetrics(metrics otel.Metrics) OpenAIOption {
	return func(c *OpenAICompiler) {
		c.metrics = metrics
	}
}

// NewOpenAICompiler 创建 OpenAI 编译协作方。
func NewOpenAICompiler(apiKey string, baseURL string, opts ...OpenAIOption) (*OpenAICompiler, error) {
	if apiKey == "" {
		return nil, errors.WrapError(errors.ErrInvalidConfig, "compiler api key is required")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	c := &OpenAICompiler{
		client:     openai.NewClientWithConfig(config),
		model:      "gpt-4o",
		maxRetries: 3,
		retryDelay: time.Second,
		logger:     otel.NewNoopLogger(),
		metrics:    otel.NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Compile 调用远端模型生成契约合规的结构化输出。
func (c *OpenAICompiler) Compile(ctx context.Context, aggregated *budget.Aggregated, s *schema.Schema) (*schema.Compiled, error) {
	prompt := RenderPrompt(aggregated, s, c.prompts)

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	start := time.Now()
	var compiled *schema.Compiled

	err := retry(ctx, c.maxRetries, c.retryDelay, func() error {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return mapTransportError(err)
		}
		if len(resp.Choices) == 0 {
			return errors.WrapError(errors.ErrCompilerUnreachable, "empty completion response")
		}

		compiled, err = schema.FromJSON(s, []byte(resp.Choices[0].Message.Content))
		return err
	})

	elapsed := time.Since(start)
	c.metrics.Histogram(otel.MetricCompileDuration).Record(ctx, float64(elapsed.Milliseconds()))
	c.metrics.Counter(otel.MetricCompileCalls).Add(ctx, 1)

	if err != nil {
		c.metrics.Counter(otel.MetricCompileErrors).Add(ctx, 1)
		if stderrors.Is(err, errors.ErrSchemaViolation) {
			c.metrics.Counter(otel.MetricCompileViolations).Add(ctx, 1)
			c.logger.WithContext(ctx).Error("编译输出不符合契约",
				"schema", s.ID,
				"error", err.Error())
		} else {
			c.logger.WithContext(ctx).Error("编译协作方调用失败",
				"schema", s.ID,
				"error", err.Error())
		}
		return nil, err
	}

	return compiled, nil
}

// mapTransportError 将远端调用错误映射为编译协作方错误。
func mapTransportError(err error) error {
	if err == nil {
		return nil
	}

	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return errors.WrapError(errors.ErrCompilerUnreachable, err.Error())
	}

	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		// 5xx 和限流视为传输失败，可重试
		if apiErr.HTTPStatusCode >= 500 || apiErr.HTTPStatusCode == 429 {
			return errors.WrapError(errors.ErrCompilerUnreachable, err.Error())
		}
		return errors.WrapError(errors.ErrCompilationFailure, err.Error())
	}

	return errors.WrapError(errors.ErrCompilerUnreachable, err.Error())
}

// compile-time interface check
var _ Compiler = (*OpenAICompiler)(nil)
