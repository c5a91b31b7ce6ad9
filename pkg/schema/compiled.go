package schema

import (
	"encoding/json"
	"fmt"

	"github.com/easyops/contextcore/pkg/core/errors"
)

// Value 编译结果的单字段值。
//
// Shape 为 string 时使用 Str，为 list 时使用 List。
type Value struct {
	Shape FieldShape
	Str   string
	List  []string
}

// StringValue 创建字符串值。
func StringValue(s string) Value {
	return Value{Shape: ShapeString, Str: s}
}

// ListValue 创建列表值。
func ListValue(items []string) Value {
	copied := make([]string, len(items))
	copy(copied, items)
	return Value{Shape: ShapeList, List: copied}
}

// Compiled 契约合规的编译输出
//
// 契约声明的每个字段都必须出现，即使值为空。
// 创建后不可变，可在缓存中跨请求共享。
type Compiled struct {
	// SchemaID 生成该结果的契约标识
	SchemaID string

	// fields 按契约字段名索引的值
	fields map[string]Value

	// order 契约声明的字段顺序
	order []string
}

// NewCompiled 按契约与字段值构建编译结果，缺失字段以空值补齐。
func NewCompiled(s *Schema, values map[string]Value) *Compiled {
	c := &Compiled{
		SchemaID: s.ID,
		fields:   make(map[string]Value, len(s.Fields)),
		order:    s.FieldNames(),
	}
	for _, field := range s.Fields {
		value, ok := values[field.Name]
		if !ok || value.Shape != field.Shape {
			value = emptyValue(field.Shape)
		}
		c.fields[field.Name] = value
	}
	return c
}

// emptyValue 返回指定形状的空值。
func emptyValue(shape FieldShape) Value {
	if shape == ShapeList {
		return Value{Shape: ShapeList, List: []string{}}
	}
	return Value{Shape: ShapeString}
}

// Get 返回指定字段的值。
func (c *Compiled) Get(name string) (Value, bool) {
	v, ok := c.fields[name]
	return v, ok
}

// FieldNames 返回契约声明顺序的字段名。
func (c *Compiled) FieldNames() []string {
	names := make([]string, len(c.order))
	copy(names, c.order)
	return names
}

// MarshalJSON 按契约字段输出 JSON 对象。
func (c *Compiled) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(c.fields))
	for name, value := range c.fields {
		if value.Shape == ShapeList {
			out[name] = value.List
		} else {
			out[name] = value.Str
		}
	}
	return json.Marshal(out)
}

// FromJSON 校验外部编译方返回的 JSON 并构建编译结果。
//
// 逐字段严格校验：缺失字段、形状不符或列表元素非字符串
// 都会返回指明问题字段的契约违规错误。
func FromJSON(s *Schema, data []byte) (*Compiled, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.WrapError(errors.ErrSchemaViolation, fmt.Sprintf("payload is not a JSON object: %v", err))
	}

	values := make(map[string]Value, len(s.Fields))
	for _, field := range s.Fields {
		payload, ok := raw[field.Name]
		if !ok {
			return nil, errors.WrapError(errors.ErrSchemaViolation,
				fmt.Sprintf("missing field: %s", field.Name))
		}

		switch field.Shape {
		case ShapeString:
			var str string
			if err := json.Unmarshal(payload, &str); err != nil {
				return nil, errors.WrapError(errors.ErrSchemaViolation,
					fmt.Sprintf("field %s must be a string", field.Name))
			}
			values[field.Name] = StringValue(str)
		case ShapeList:
			var list []string
			if err := json.Unmarshal(payload, &list); err != nil {
				return nil, errors.WrapError(errors.ErrSchemaViolation,
					fmt.Sprintf("field %s must be a list of strings", field.Name))
			}
			if list == nil {
				list = []string{}
			}
			values[field.Name] = Value{Shape: ShapeList, List: list}
		}
	}

	return NewCompiled(s, values), nil
}
