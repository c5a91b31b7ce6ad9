// Package compiler 将合并上下文编译为契约合规的结构化输出。
//
// 实际的语言结构化工作委托给外部编译协作方完成；
// 返回的载荷必须通过逐字段契约校验，本步骤没有降级路径。
package compiler

import (
	"context"

	"github.com/easyops/contextcore/pkg/budget"
	"github.com/easyops/contextcore/pkg/schema"
)

// Compiler 模式编译协作方接口。
type Compiler interface {
	// Compile 将合并上下文编译为契约合规的结构化输出
	Compile(ctx context.Context, aggregated *budget.Aggregated, s *schema.Schema) (*schema.Compiled, error)
}
