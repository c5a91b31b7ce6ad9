package kb

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPSource 远程知识库的 HTTP 客户端
//
// 调用远程知识库的 /query 接口；请求超时由调用方的 ctx 控制，
// 客户端自身仅做传输层兜底。
type HTTPSource struct {
	name   string
	client *resty.Client
}

// queryRequest HTTP 查询请求体。
type queryRequest struct {
	Subject string `json:"subject"`
	Hint    string `json:"hint,omitempty"`
}

// queryResponse HTTP 查询响应体。
type queryResponse struct {
	Facts     []string `json:"facts"`
	Relevance float64  `json:"relevance"`
}

// HTTPSourceOption HTTP 知识源配置选项。
type HTTPSourceOption func(*HTTPSource)

// WithHTTPTimeout 设置传输层兜底超时。
func WithHTTPTimeout(timeout time.Duration) HTTPSourceOption {
	return func(s *HTTPSource) {
		s.client.SetTimeout(timeout)
	}
}

// WithHTTPHeader 设置附加请求头（如认证令牌）。
func WithHTTPHeader(key, value string) HTTPSourceOption {
	return func(s *HTTPSource) {
		s.client.SetHeader(key, value)
	}
}

// WithHTTPRetry 设置传输层重试次数。
func WithHTTPRetry(count int) HTTPSourceOption {
	return func(s *HTTPSource) {
		s.client.SetRetryCount(count)
	}
}

// NewHTTPSource 创建 HTTP 知识源。
func NewHTTPSource(name string, endpoint string, opts ...HTTPSourceOption) *HTTPSource {
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")

	source := &HTTPSource{
		name:   name,
		client: client,
	}
	for _, opt := range opts {
		opt(source)
	}
	return source
}

// Name 返回知识源标识
func (s *HTTPSource) Name() string {
	return s.name
}

// Query 调用远程知识库查询接口。
//
// 连接失败映射为 ErrSourceClosed，以便上层归类为不可达。
func (s *HTTPSource) Query(ctx context.Context, subject string, hint string) (*QueryResult, error) {
	var result queryResponse

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(queryRequest{Subject: subject, Hint: hint}).
		SetResult(&result).
		Post("/query")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceClosed, s.name, err)
	}

	if resp.StatusCode() != http.StatusOK {
		if resp.StatusCode() == http.StatusServiceUnavailable {
			return nil, fmt.Errorf("%w: %s: status %d", ErrSourceClosed, s.name, resp.StatusCode())
		}
		return nil, fmt.Errorf("kb: source %s returned status %d", s.name, resp.StatusCode())
	}

	return &QueryResult{Facts: result.Facts, Relevance: result.Relevance}, nil
}

// compile-time interface check
var _ Source = (*HTTPSource)(nil)
