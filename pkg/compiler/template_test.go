package compiler

import (
	"context"
	"strings"
	"testing"

	"github.com/easyops/contextcore/pkg/budget"
	"github.com/easyops/contextcore/pkg/schema"
)

func sampleAggregated() *budget.Aggregated {
	return &budget.Aggregated{
		Facts:     []string{"likes go", "works late"},
		Entities:  []string{"user:alice", "role:admin"},
		Intent:    "emotion:joy (0.8)",
		AgentType: "master",
	}
}

func TestTemplateCompiler_EveryFieldPresent(t *testing.T) {
	comp := NewTemplateCompiler()
	s := schema.Default()

	compiled, err := comp.Compile(context.Background(), sampleAggregated(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, name := range s.FieldNames() {
		if _, ok := compiled.Get(name); !ok {
			t.Errorf("field %s missing from compiled output", name)
		}
	}
}

func TestTemplateCompiler_MapsAggregatedFields(t *testing.T) {
	comp := NewTemplateCompiler()
	s := schema.Default()

	compiled, err := comp.Compile(context.Background(), sampleAggregated(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	facts, _ := compiled.Get("facts")
	if len(facts.List) != 2 {
		t.Errorf("expected 2 facts, got %v", facts.List)
	}
	intent, _ := compiled.Get("intent")
	if intent.Str != "emotion:joy (0.8)" {
		t.Errorf("unexpected intent: %q", intent.Str)
	}
	entities, _ := compiled.Get("entities")
	if len(entities.List) != 2 {
		t.Errorf("expected 2 entities, got %v", entities.List)
	}
}

func TestTemplateCompiler_Deterministic(t *testing.T) {
	comp := NewTemplateCompiler()
	s := schema.Default()

	first, err := comp.Compile(context.Background(), sampleAggregated(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := comp.Compile(context.Background(), sampleAggregated(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, _ := first.MarshalJSON()
	b, _ := second.MarshalJSON()
	if string(a) != string(b) {
		t.Error("identical input must compile to identical output")
	}
}

func TestTemplateCompiler_CanceledContext(t *testing.T) {
	comp := NewTemplateCompiler()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := comp.Compile(ctx, sampleAggregated(), schema.Default()); err == nil {
		t.Fatal("expected error on canceled context")
	}
}

func TestRenderPrompt_Sections(t *testing.T) {
	prompt := RenderPrompt(sampleAggregated(), schema.Default(), nil)

	for _, section := range []string{"[Role]", "[Facts]", "[Entities]", "[Intent]", "[Output]"} {
		if !strings.Contains(prompt, section) {
			t.Errorf("prompt missing section %s", section)
		}
	}
	if !strings.Contains(prompt, "likes go") {
		t.Error("prompt must include retained facts")
	}
}

func TestRenderPrompt_OmitsEmptySections(t *testing.T) {
	empty := &budget.Aggregated{AgentType: "other"}
	prompt := RenderPrompt(empty, schema.Default(), nil)

	for _, section := range []string{"[Facts]", "[Entities]", "[Intent]", "[Tools]"} {
		if strings.Contains(prompt, section) {
			t.Errorf("prompt must omit empty section %s", section)
		}
	}
}

func TestAgentPrompt_OverridesAndFallback(t *testing.T) {
	overrides := map[string]string{"red-team": "custom red instructions"}

	if got := AgentPrompt("red-team", overrides); got != "custom red instructions" {
		t.Errorf("override must win, got %q", got)
	}
	if got := AgentPrompt("blue-team", overrides); got == "" {
		t.Error("expected built-in prompt for blue-team")
	}
	if got := AgentPrompt("unknown-type", nil); got != defaultAgentPrompts["other"] {
		t.Errorf("unknown type must fall back to other, got %q", got)
	}
}
