package cel

import (
	"strings"
	"testing"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(0)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

func TestEngine_EvaluateBoolean(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name string
		expr string
		ctx  *EvalContext
		want bool
	}{
		{
			name: "admin role via spread attribute",
			expr: `"admin" in principal.roles`,
			ctx: &EvalContext{
				Principal: map[string]interface{}{"id": "u1", "roles": []interface{}{"admin"}},
			},
			want: true,
		},
		{
			name: "admin role via request.principal path yields same result",
			expr: `"admin" in request.principal.roles`,
			ctx: &EvalContext{
				Principal: map[string]interface{}{"id": "u1", "roles": []interface{}{"admin"}},
			},
			want: true,
		},
		{
			name: "attribute access both spread and request-qualified agree",
			expr: `resource.attributes.visibility == request.resource.attr.visibility`,
			ctx: &EvalContext{
				Resource: map[string]interface{}{"attributes": map[string]interface{}{"visibility": "public"}},
			},
			want: true,
		},
		{
			name: "auxData access",
			expr: `request.auxData.source == "mobile"`,
			ctx: &EvalContext{
				AuxData: map[string]interface{}{"source": "mobile"},
			},
			want: true,
		},
		{
			name: "variables access",
			expr: `variables.isBusinessHours`,
			ctx: &EvalContext{
				Variables: map[string]interface{}{"isBusinessHours": true},
			},
			want: true,
		},
		{
			name: "missing path fails closed",
			expr: `resource.attributes.missing.deeper == "x"`,
			ctx:  &EvalContext{Resource: map[string]interface{}{}},
			want: false,
		},
		{
			name: "parse error fails closed",
			expr: `this is not valid CEL`,
			ctx:  &EvalContext{},
			want: false,
		},
		{
			name: "built-in startsWith",
			expr: `resource.id.startsWith("doc-")`,
			ctx:  &EvalContext{Resource: map[string]interface{}{"id": "doc-1"}},
			want: true,
		},
		{
			name: "built-in size",
			expr: `size(principal.roles) == 2`,
			ctx:  &EvalContext{Principal: map[string]interface{}{"roles": []interface{}{"a", "b"}}},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engine.EvaluateBoolean(tt.expr, tt.ctx); got != tt.want {
				t.Errorf("EvaluateBoolean(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEngine_ValidateExpression(t *testing.T) {
	engine := newTestEngine(t)

	if ok, errs := engine.ValidateExpression(`principal.id == "x"`); !ok {
		t.Fatalf("expected valid, got errors: %v", errs)
	}
	if ok, _ := engine.ValidateExpression(``); ok {
		t.Fatal("expected empty expression to be invalid")
	}
	if ok, errs := engine.ValidateExpression(`undefinedFunc(1, 2)`); !ok {
		t.Fatalf("expected unknown function call to pass the syntax-only check, got errors: %v", errs)
	}
}

func TestEngine_CompileExpressionWarmsCache(t *testing.T) {
	engine := newTestEngine(t)
	expr := `principal.id == "x"`

	if err := engine.CompileExpression(expr); err != nil {
		t.Fatalf("CompileExpression: %v", err)
	}
	stats := engine.CacheStats()
	if stats.Size != 1 {
		t.Fatalf("expected cache size 1 after warmup, got %d", stats.Size)
	}

	engine.EvaluateBoolean(expr, &EvalContext{Principal: map[string]interface{}{"id": "x"}})
	stats = engine.CacheStats()
	if stats.Hits == 0 {
		t.Fatal("expected cache hit on warmed expression")
	}
}

func TestEngine_RejectsOversizedNesting(t *testing.T) {
	engine := newTestEngine(t)
	expr := strings.Repeat("(", 100) + "true" + strings.Repeat(")", 100)

	result := engine.Evaluate(expr, &EvalContext{})
	if result.Success {
		t.Fatal("expected deeply nested expression to be rejected")
	}
	if result.ErrorType != ErrorTypeParse {
		t.Fatalf("expected parse error classification, got %v", result.ErrorType)
	}
}
