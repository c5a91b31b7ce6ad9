package compiler

import (
	"context"
	"strings"

	"github.com/easyops/contextcore/pkg/budget"
	"github.com/easyops/contextcore/pkg/schema"
)

// TemplateCompiler 本地确定性编译实现
//
// 不依赖外部协作方，按固定规则将合并上下文映射到契约字段。
// 用于测试、演示和协作方不可用时的离线场景。
type TemplateCompiler struct{}

// NewTemplateCompiler 创建本地编译器。
func NewTemplateCompiler() *TemplateCompiler {
	return &TemplateCompiler{}
}

// Compile 按字段名约定填充契约字段。
//
// facts/entities/tools 映射到同名列表字段，intent/summary
// 映射到同名字符串字段，其余字段以空值补齐。
func (c *TemplateCompiler) Compile(ctx context.Context, aggregated *budget.Aggregated, s *schema.Schema) (*schema.Compiled, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	values := make(map[string]schema.Value, len(s.Fields))
	for _, field := range s.Fields {
		switch field.Name {
		case "facts":
			values[field.Name] = schema.ListValue(aggregated.Facts)
		case "entities":
			values[field.Name] = schema.ListValue(aggregated.Entities)
		case "tools":
			values[field.Name] = schema.ListValue(aggregated.Tools)
		case "intent":
			values[field.Name] = schema.StringValue(aggregated.Intent)
		case "summary":
			values[field.Name] = schema.StringValue(c.summarize(aggregated))
		}
	}

	return schema.NewCompiled(s, values), nil
}

// summarize 生成单段确定性摘要。
func (c *TemplateCompiler) summarize(aggregated *budget.Aggregated) string {
	var parts []string
	if len(aggregated.Facts) > 0 {
		parts = append(parts, strings.Join(aggregated.Facts, "; "))
	}
	if aggregated.Intent != "" {
		parts = append(parts, "意图: "+aggregated.Intent)
	}
	return strings.Join(parts, " | ")
}

// compile-time interface check
var _ Compiler = (*TemplateCompiler)(nil)
