package schema

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/easyops/contextcore/pkg/core/errors"
)

func twoFieldSchema() *Schema {
	return &Schema{
		ID:      "test.v1",
		Version: "1",
		Fields: []Field{
			{Name: "summary", Shape: ShapeString},
			{Name: "facts", Shape: ShapeList},
		},
	}
}

func TestParse_Valid(t *testing.T) {
	data := []byte(`{
		"id": "ctx.v1",
		"version": "2",
		"fields": [
			{"name": "summary", "shape": "string"},
			{"name": "facts", "shape": "list"}
		]
	}`)

	s, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ID != "ctx.v1" || len(s.Fields) != 2 {
		t.Errorf("unexpected schema: %+v", s)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{{`},
		{"missing id", `{"fields": [{"name": "a", "shape": "string"}]}`},
		{"no fields", `{"id": "x"}`},
		{"empty field name", `{"id": "x", "fields": [{"name": "", "shape": "string"}]}`},
		{"duplicate field", `{"id": "x", "fields": [{"name": "a", "shape": "string"}, {"name": "a", "shape": "list"}]}`},
		{"unknown shape", `{"id": "x", "fields": [{"name": "a", "shape": "map"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if !stderrors.Is(err, errors.ErrInvalidSchema) {
				t.Errorf("expected ErrInvalidSchema, got %v", err)
			}
		})
	}
}

func TestNewCompiled_FillsEveryField(t *testing.T) {
	s := twoFieldSchema()

	c := NewCompiled(s, map[string]Value{
		"summary": StringValue("hello"),
	})

	// 契约声明的每个字段都必须出现，缺失的以空值补齐
	for _, name := range s.FieldNames() {
		if _, ok := c.Get(name); !ok {
			t.Errorf("field %s missing from compiled output", name)
		}
	}

	facts, _ := c.Get("facts")
	if facts.Shape != ShapeList || facts.List == nil || len(facts.List) != 0 {
		t.Errorf("missing list field must be an empty list, got %+v", facts)
	}
}

func TestFromJSON_RoundTrip(t *testing.T) {
	s := twoFieldSchema()

	c, err := FromJSON(s, []byte(`{"summary": "short", "facts": ["a", "b"]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	summary, _ := c.Get("summary")
	if summary.Str != "short" {
		t.Errorf("unexpected summary: %q", summary.Str)
	}
	facts, _ := c.Get("facts")
	if len(facts.List) != 2 {
		t.Errorf("unexpected facts: %v", facts.List)
	}
}

func TestFromJSON_MissingFieldNamesField(t *testing.T) {
	s := twoFieldSchema()

	_, err := FromJSON(s, []byte(`{"summary": "x"}`))
	if err == nil {
		t.Fatal("expected violation for missing field")
	}
	if !stderrors.Is(err, errors.ErrSchemaViolation) {
		t.Errorf("expected ErrSchemaViolation, got %v", err)
	}
	if !strings.Contains(err.Error(), "facts") {
		t.Errorf("violation must name the offending field, got: %v", err)
	}
}

func TestFromJSON_WrongShape(t *testing.T) {
	s := twoFieldSchema()

	tests := []struct {
		name    string
		payload string
		field   string
	}{
		{"list where string expected", `{"summary": ["a"], "facts": []}`, "summary"},
		{"string where list expected", `{"summary": "x", "facts": "not a list"}`, "facts"},
		{"numbers in list", `{"summary": "x", "facts": [1, 2]}`, "facts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromJSON(s, []byte(tt.payload))
			if err == nil {
				t.Fatal("expected violation")
			}
			if !stderrors.Is(err, errors.ErrSchemaViolation) {
				t.Errorf("expected ErrSchemaViolation, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("violation must name field %s, got: %v", tt.field, err)
			}
		})
	}
}

func TestFromJSON_ExtraFieldsIgnored(t *testing.T) {
	s := twoFieldSchema()

	c, err := FromJSON(s, []byte(`{"summary": "x", "facts": [], "extra": 42}`))
	if err != nil {
		t.Fatalf("extra fields should be ignored: %v", err)
	}
	if _, ok := c.Get("extra"); ok {
		t.Error("undeclared field must not appear in compiled output")
	}
}

func TestCompiled_MarshalJSON(t *testing.T) {
	s := twoFieldSchema()
	c := NewCompiled(s, map[string]Value{
		"summary": StringValue("hi"),
		"facts":   ListValue([]string{"f1"}),
	})

	data, err := c.MarshalJSON()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 序列化后再经过契约校验必须可以还原
	back, err := FromJSON(s, data)
	if err != nil {
		t.Fatalf("marshal output must satisfy the schema: %v", err)
	}
	summary, _ := back.Get("summary")
	if summary.Str != "hi" {
		t.Errorf("round trip lost data: %q", summary.Str)
	}
}

func TestDefault(t *testing.T) {
	s := Default()
	if err := s.Validate(); err != nil {
		t.Fatalf("default schema must be valid: %v", err)
	}
}
