// Package schema 定义上下文输出的字段契约。
//
// Schema 在启动时加载一次，进程生命周期内只读；
// 编译结果必须逐字段符合契约。
package schema

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/easyops/contextcore/pkg/core/errors"
)

// FieldShape 字段形状。
type FieldShape string

const (
	// ShapeString 单个字符串
	ShapeString FieldShape = "string"

	// ShapeList 有序字符串列表
	ShapeList FieldShape = "list"
)

// Valid 返回字段形状是否合法。
func (s FieldShape) Valid() bool {
	return s == ShapeString || s == ShapeList
}

// Field 字段定义。
type Field struct {
	// Name 字段名
	Name string `json:"name"`

	// Shape 字段形状（string | list）
	Shape FieldShape `json:"shape"`

	// Description 字段说明
	Description string `json:"description,omitempty"`
}

// Schema 上下文输出契约
//
// 有序字段定义的命名、带版本的集合。加载后不可变。
type Schema struct {
	// ID 契约标识
	ID string `json:"id"`

	// Version 契约版本
	Version string `json:"version"`

	// Description 契约说明
	Description string `json:"description,omitempty"`

	// Fields 有序字段定义
	Fields []Field `json:"fields"`
}

// Load 从 JSON 文件加载契约并校验。
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapError(errors.ErrInvalidSchema, err.Error())
	}
	return Parse(data)
}

// Parse 从 JSON 字节解析契约并校验。
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.WrapError(errors.ErrInvalidSchema, err.Error())
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate 校验契约结构。
func (s *Schema) Validate() error {
	if s.ID == "" {
		return errors.WrapError(errors.ErrInvalidSchema, "schema id is required")
	}
	if len(s.Fields) == 0 {
		return errors.WrapError(errors.ErrInvalidSchema, "schema must declare at least one field")
	}

	seen := make(map[string]bool, len(s.Fields))
	for _, field := range s.Fields {
		if field.Name == "" {
			return errors.WrapError(errors.ErrInvalidSchema, "field name is required")
		}
		if seen[field.Name] {
			return errors.WrapError(errors.ErrInvalidSchema, fmt.Sprintf("duplicate field: %s", field.Name))
		}
		seen[field.Name] = true
		if !field.Shape.Valid() {
			return errors.WrapError(errors.ErrInvalidSchema,
				fmt.Sprintf("field %s has unknown shape: %s", field.Name, field.Shape))
		}
	}
	return nil
}

// FieldNames 返回有序字段名列表。
func (s *Schema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

// Default 返回内置的默认契约。
//
// 外部未提供契约文件时使用。
func Default() *Schema {
	return &Schema{
		ID:          "context.v1",
		Version:     "1",
		Description: "Structured agent context",
		Fields: []Field{
			{Name: "summary", Shape: ShapeString, Description: "One-paragraph context summary"},
			{Name: "facts", Shape: ShapeList, Description: "Retained knowledge facts"},
			{Name: "entities", Shape: ShapeList, Description: "Key entities"},
			{Name: "intent", Shape: ShapeString, Description: "Last known user intent"},
		},
	}
}
