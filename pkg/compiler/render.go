package compiler

import (
	"strings"

	"github.com/easyops/contextcore/pkg/budget"
	"github.com/easyops/contextcore/pkg/schema"
)

// 内置的各智能体类型基础指令，可由配置覆盖。
var defaultAgentPrompts = map[string]string{
	"red-team":  "你是红队推演智能体，以对抗视角评估局势并寻找薄弱环节。",
	"blue-team": "你是蓝队防守智能体，以防护视角评估局势并给出加固建议。",
	"master":    "你是主控智能体，综合各方信息做出裁决与调度。",
	"other":     "你是通用辅助智能体。",
}

// AgentPrompt 返回指定智能体类型的基础指令。
//
// overrides 优先；未知类型降级到 other 的指令。
func AgentPrompt(agentType string, overrides map[string]string) string {
	if p, ok := overrides[agentType]; ok && p != "" {
		return p
	}
	if p, ok := defaultAgentPrompts[agentType]; ok {
		return p
	}
	return defaultAgentPrompts["other"]
}

// RenderPrompt 将合并上下文渲染为分段提示词。
//
// 分段顺序固定，输出对相同输入完全可复现。
func RenderPrompt(aggregated *budget.Aggregated, s *schema.Schema, prompts map[string]string) string {
	var sections []string

	// [Role] 智能体基础指令
	sections = append(sections, "[Role]\n"+AgentPrompt(aggregated.AgentType, prompts))

	// [Facts] 预算裁剪后保留的事实
	if len(aggregated.Facts) > 0 {
		section := "[Facts]\n"
		for _, fact := range aggregated.Facts {
			section += "- " + fact + "\n"
		}
		sections = append(sections, strings.TrimRight(section, "\n"))
	}

	// [Entities] 关键实体
	if len(aggregated.Entities) > 0 {
		sections = append(sections, "[Entities]\n"+strings.Join(aggregated.Entities, ", "))
	}

	// [Intent] 最近已知的用户意图
	if aggregated.Intent != "" {
		sections = append(sections, "[Intent]\n"+aggregated.Intent)
	}

	// [Tools] 可用工具引用
	if len(aggregated.Tools) > 0 {
		sections = append(sections, "[Tools]\n"+strings.Join(aggregated.Tools, ", "))
	}

	// [Output] 输出契约说明
	sections = append(sections, "[Output]\n"+renderSchemaContract(s))

	return strings.Join(sections, "\n\n")
}

// renderSchemaContract 渲染契约字段说明，指导协作方输出合规 JSON。
func renderSchemaContract(s *schema.Schema) string {
	var b strings.Builder
	b.WriteString("返回一个 JSON 对象，必须包含以下全部字段：\n")
	for _, field := range s.Fields {
		b.WriteString("- " + field.Name + " (")
		if field.Shape == schema.ShapeList {
			b.WriteString("字符串列表")
		} else {
			b.WriteString("字符串")
		}
		b.WriteString(")")
		if field.Description != "" {
			b.WriteString("：" + field.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("即使某个字段没有内容也必须以空值出现。")
	return b.String()
}
