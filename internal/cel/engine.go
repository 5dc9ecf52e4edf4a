// Package cel provides CEL expression compilation and evaluation for
// policy conditions, backed by the bounded expression cache in
// internal/cache.
package cel

import (
	"context"
	"errors"
	"fmt"
	"time"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"

	"github.com/authz-engine/go-core/internal/cache"
)

// ErrorType classifies a failed evaluation.
type ErrorType string

const (
	ErrorTypeParse      ErrorType = "parse"
	ErrorTypeEvaluation ErrorType = "evaluation"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// maxExpressionLength bounds the source a caller may submit for
// compilation, guarding against pathological inputs.
const maxExpressionLength = 4096

// maxNestingDepth bounds bracket/paren/brace nesting.
const maxNestingDepth = 64

// maxCostBudget is the CEL runtime cost limit (fail-closed on overrun).
const maxCostBudget = 100_000

// evalTimeout bounds a single evaluation's wall-clock time.
const evalTimeout = 2 * time.Second

const interruptCheckFreq = 100

// EvalContext is the frozen variable set available to a condition.
// Principal and resource are exposed both as spread attributes and,
// identically, via request.principal.attr.* / request.resource.attr.*.
type EvalContext struct {
	Principal map[string]interface{}
	Resource  map[string]interface{}
	AuxData   map[string]interface{}
	Variables map[string]interface{}
	Now       time.Time
}

// Result is the outcome of Evaluate.
type Result struct {
	Success   bool
	Value     interface{}
	Error     error
	ErrorType ErrorType
}

// Engine compiles and evaluates CEL expressions, consulting the
// expression cache on every call.
type Engine struct {
	env   *celgo.Env
	cache *cache.ExpressionCache
}

// NewEngine creates a CEL engine over an expression cache of the given
// capacity (0 uses cache.DefaultCapacity).
func NewEngine(cacheCapacity int) (*Engine, error) {
	env, err := celgo.NewEnv(
		celgo.Declarations(
			decls.NewVar("principal", decls.NewMapType(decls.String, decls.Dyn)),
			decls.NewVar("resource", decls.NewMapType(decls.String, decls.Dyn)),
			decls.NewVar("request", decls.NewMapType(decls.String, decls.Dyn)),
			decls.NewVar("variables", decls.NewMapType(decls.String, decls.Dyn)),
			decls.NewVar("now", decls.Timestamp),
			decls.NewVar("nowTimestamp", decls.Int),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:   env,
		cache: cache.New(cacheCapacity),
	}, nil
}

// CacheStats exposes the underlying expression cache's counters.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}

// ClearCache empties the expression cache. Callers are responsible for
// quiescence; clearing mid-evaluation only costs recompilation.
func (e *Engine) ClearCache() {
	e.cache.Clear()
}

// compile is the shared path used by CompileExpression and Evaluate:
// look up the cache, compiling and storing on miss.
func (e *Engine) compile(src string) (celgo.Program, error) {
	if entry, ok := e.cache.Get(src); ok {
		return entry.Compiled.(celgo.Program), nil
	}

	ast, issues := e.env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}

	prog, err := e.env.Program(ast,
		celgo.EvalOptions(celgo.OptOptimize),
		celgo.CostLimit(maxCostBudget),
		celgo.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, err
	}

	entry := e.cache.Put(src, prog, time.Now().UnixMilli())
	return entry.Compiled.(celgo.Program), nil
}

// CompileExpression pre-warms the cache for src.
func (e *Engine) CompileExpression(src string) error {
	if err := structuralCheck(src); err != nil {
		return err
	}
	_, err := e.compile(src)
	return err
}

// ValidateExpression checks syntax only; undefined identifiers are not
// syntax errors.
func (e *Engine) ValidateExpression(src string) (bool, []string) {
	if err := structuralCheck(src); err != nil {
		return false, []string{err.Error()}
	}
	ast, issues := e.env.Parse(src)
	if issues != nil && issues.Err() != nil {
		return false, []string{issues.Err().Error()}
	}
	_ = ast
	return true, nil
}

// Evaluate compiles (if needed) and evaluates src against ctx,
// returning a structured result with error classification.
func (e *Engine) Evaluate(src string, ctx *EvalContext) *Result {
	if err := structuralCheck(src); err != nil {
		return &Result{ErrorType: ErrorTypeParse, Error: err}
	}

	prog, err := e.compile(src)
	if err != nil {
		return &Result{ErrorType: ErrorTypeParse, Error: err}
	}

	vars := activation(ctx)

	evalCtx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	out, _, err := prog.ContextEval(evalCtx, vars)
	if err != nil {
		return &Result{ErrorType: ErrorTypeEvaluation, Error: fmt.Errorf("CEL evaluation failed: %w", err)}
	}

	return &Result{Success: true, Value: out.Value()}
}

// EvaluateBoolean evaluates src and coerces the result to bool,
// fail-closed: any parse or evaluation error, or a non-boolean result,
// yields false.
func (e *Engine) EvaluateBoolean(src string, ctx *EvalContext) bool {
	result := e.Evaluate(src, ctx)
	if !result.Success {
		return false
	}
	b, ok := result.Value.(bool)
	return ok && b
}

func activation(ctx *EvalContext) map[string]interface{} {
	principal := ctx.Principal
	resource := ctx.Resource
	if principal == nil {
		principal = map[string]interface{}{}
	}
	if resource == nil {
		resource = map[string]interface{}{}
	}
	auxData := ctx.AuxData
	if auxData == nil {
		auxData = map[string]interface{}{}
	}
	variables := ctx.Variables
	if variables == nil {
		variables = map[string]interface{}{}
	}

	now := ctx.Now
	if now.IsZero() {
		now = time.Now()
	}

	request := map[string]interface{}{
		"principal": map[string]interface{}{
			"id":    principal["id"],
			"roles": principal["roles"],
			"attr":  principalAttrs(principal),
		},
		"resource": map[string]interface{}{
			"kind": resource["kind"],
			"id":   resource["id"],
			"attr": resourceAttrs(resource),
		},
		"auxData": auxData,
	}

	return map[string]interface{}{
		"principal":    principal,
		"resource":     resource,
		"request":      request,
		"variables":    variables,
		"now":          now,
		"nowTimestamp": now.UnixMilli(),
	}
}

func principalAttrs(principal map[string]interface{}) interface{} {
	if attrs, ok := principal["attributes"]; ok {
		return attrs
	}
	return map[string]interface{}{}
}

func resourceAttrs(resource map[string]interface{}) interface{} {
	if attrs, ok := resource["attributes"]; ok {
		return attrs
	}
	return map[string]interface{}{}
}

// structuralCheck rejects empty expressions and pathological nesting
// before they reach the CEL parser.
func structuralCheck(src string) error {
	if src == "" {
		return errors.New("expression is empty")
	}
	if len(src) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(src), maxExpressionLength)
	}

	depth, max := 0, 0
	for _, r := range src {
		switch r {
		case '(', '[', '{':
			depth++
			if depth > max {
				max = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if max > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", max, maxNestingDepth)
	}
	return nil
}
