// Package budget 实现令牌预算裁剪。
//
// 在固定令牌预算内按相关性优先保留事实，
// 保证输出的令牌总数不超过预算上限。
package budget

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter 定义 Token 计数接口。
type TokenCounter interface {
	// Count 返回给定文本的 Token 数量。
	Count(text string) int
}

// WhitespaceCounter 按空白分词计数
//
// 确定性计数器，同一事实在任何环境下得到相同的计数，
// 预算裁剪结果因此可复现。默认使用该实现。
type WhitespaceCounter struct{}

// NewWhitespaceCounter 创建空白分词计数器。
func NewWhitespaceCounter() *WhitespaceCounter {
	return &WhitespaceCounter{}
}

// Count 返回文本按空白切分后的词数。
func (c *WhitespaceCounter) Count(text string) int {
	return len(strings.Fields(text))
}

// TiktokenCounter 使用 tiktoken 实现精确的 Token 计数。
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

// TiktokenOption 配置 TiktokenCounter。
type TiktokenOption func(*TiktokenCounter)

// WithModel 设置 Token 编码使用的模型。
// 支持的模型：gpt-4、gpt-4o、gpt-3.5-turbo 等。
func WithModel(model string) TiktokenOption {
	return func(c *TiktokenCounter) {
		c.model = model
	}
}

// NewTiktokenCounter 创建新的 TiktokenCounter。
// 默认使用 cl100k_base 编码（GPT-4、GPT-4o 等使用）。
func NewTiktokenCounter(opts ...TiktokenOption) (*TiktokenCounter, error) {
	c := &TiktokenCounter{
		model: "gpt-4o",
	}

	for _, opt := range opts {
		opt(c)
	}

	encoding, err := tiktoken.EncodingForModel(c.model)
	if err != nil {
		// 降级到 cl100k_base 编码
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	c.encoding = encoding
	return c, nil
}

// Count 返回给定文本的 Token 数量。
func (c *TiktokenCounter) Count(text string) int {
	if c.encoding == nil {
		return len(strings.Fields(text))
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// DefaultTokenCounter 返回默认的 TokenCounter。
//
// 使用空白分词计数保证结果可复现；需要精确计数时
// 显式传入 TiktokenCounter。
func DefaultTokenCounter() TokenCounter {
	return NewWhitespaceCounter()
}

// compile-time interface check
var _ TokenCounter = (*WhitespaceCounter)(nil)
var _ TokenCounter = (*TiktokenCounter)(nil)
