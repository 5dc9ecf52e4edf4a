// Package engine implements the decision engine: it orchestrates scope
// resolution, derived-role computation, action-pattern matching and CEL
// evaluation into a single deny-override decision per requested action,
// with span and audit-event emission.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/authz-engine/go-core/internal/cel"
	"github.com/authz-engine/go-core/internal/derivedroles"
	"github.com/authz-engine/go-core/internal/matcher"
	"github.com/authz-engine/go-core/internal/policy"
	"github.com/authz-engine/go-core/internal/principal"
	"github.com/authz-engine/go-core/internal/scope"
	"github.com/authz-engine/go-core/internal/telemetry"
	"github.com/authz-engine/go-core/pkg/types"
)

// Config configures the decision engine. There is no global singleton:
// every engine is an explicitly-constructed value wired with its own
// store, logger and tracer.
type Config struct {
	// ExpressionCacheCapacity bounds the CEL expression cache; 0 uses
	// cache.DefaultCapacity.
	ExpressionCacheCapacity int
	// Logger receives the engine's structured diagnostics: derived-role
	// and variable resolution failures and recovered panics. The policy
	// package does not log; validator warnings are returned in
	// ParseResult.Warnings. Defaults to zap.NewNop().
	Logger *zap.Logger
	// Tracer emits the authz.check/authz.derived_roles/authz.policy_match/
	// authz.cel_evaluate spans. Defaults to a no-op tracer.
	Tracer telemetry.Tracer
}

// DefaultConfig returns a Config with nop logging/tracing and the
// default expression cache size.
func DefaultConfig() Config {
	return Config{
		Logger: zap.NewNop(),
		Tracer: telemetry.NoopTracer{},
	}
}

// Engine is the core authorization decision engine. It is safe for
// concurrent use by multiple goroutines: the policy store, expression
// cache and scope-chain cache all manage their own internal
// synchronization.
type Engine struct {
	store        *policy.Store
	cel          *cel.Engine
	scope        *scope.Resolver
	derivedRoles *derivedroles.Resolver
	derivedMemo  *derivedroles.Memo
	principalEv  *principal.Evaluator

	logger *zap.Logger
	tracer telemetry.Tracer

	auditLogger  atomic.Pointer[types.AuditLogger]
	auditEnabled atomic.Bool

	requestSeq atomic.Uint64
}

// New creates a decision engine over store, filling in zero-valued
// Config fields from DefaultConfig.
func New(cfg Config, store *policy.Store) (*Engine, error) {
	def := DefaultConfig()
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	if cfg.Tracer == nil {
		cfg.Tracer = def.Tracer
	}

	celEngine, err := cel.NewEngine(cfg.ExpressionCacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("engine: creating CEL engine: %w", err)
	}

	return &Engine{
		store:        store,
		cel:          celEngine,
		scope:        scope.NewResolver(scope.DefaultConfig()),
		derivedRoles: derivedroles.NewResolver(celEngine),
		derivedMemo:  derivedroles.NewMemo(),
		principalEv:  principal.NewEvaluator(store.Principal, celEngine),
		logger:       cfg.Logger,
		tracer:       cfg.Tracer,
	}, nil
}

// SetAuditLogger installs the logger that receives a DecisionEvent
// after every check while auditing is enabled.
func (e *Engine) SetAuditLogger(logger types.AuditLogger) {
	e.auditLogger.Store(&logger)
}

// SetAuditEnabled toggles audit-event emission.
func (e *Engine) SetAuditEnabled(enabled bool) {
	e.auditEnabled.Store(enabled)
}

// Stats reports current document counts.
type Stats = policy.Stats

// GetStats returns the engine's policy-store statistics.
func (e *Engine) GetStats() Stats {
	return e.store.Stats()
}

// LoadResourcePolicies is additive: it never mutates a previously
// loaded entry.
func (e *Engine) LoadResourcePolicies(docs []*types.ResourcePolicy) {
	e.store.LoadResourcePolicies(docs)
}

// LoadScopedResourcePolicies loads ResourcePolicy documents carrying a
// scope; scope lives on each document's Metadata.Scope.
func (e *Engine) LoadScopedResourcePolicies(docs []*types.ResourcePolicy) {
	e.store.LoadScopedResourcePolicies(docs)
}

// LoadDerivedRolesPolicies loads DerivedRoles documents. Cycle
// detection runs across the combined (already-loaded + new) definition
// set before anything is committed: a cycle is a load-time failure, not
// a per-request one.
func (e *Engine) LoadDerivedRolesPolicies(docs []*types.DerivedRolesPolicy) error {
	var incoming []*types.DerivedRoleDefinition
	for _, d := range docs {
		incoming = append(incoming, d.Definitions...)
	}
	combined := append(append([]*types.DerivedRoleDefinition{}, e.store.DerivedRoleDefinitions()...), incoming...)
	if err := derivedroles.ValidateAll(combined); err != nil {
		return err
	}
	e.store.LoadDerivedRolesPolicies(docs)
	e.derivedMemo.Clear()
	return nil
}

// LoadPrincipalPolicies loads PrincipalPolicy documents.
func (e *Engine) LoadPrincipalPolicies(docs []*types.PrincipalPolicy) {
	e.store.LoadPrincipalPolicies(docs)
}

// LoadExportVariables registers named ExportVariables documents for
// policies to import.
func (e *Engine) LoadExportVariables(docs []*types.ExportVariables) error {
	return e.store.LoadExportVariables(docs)
}

// LoadExportConstants registers named ExportConstants documents.
func (e *Engine) LoadExportConstants(docs []*types.ExportConstants) error {
	return e.store.LoadExportConstants(docs)
}

// ClearPolicies purges every store, the derived-role memo and the
// expression cache.
func (e *Engine) ClearPolicies() {
	e.store.ClearPolicies()
	e.derivedMemo.Clear()
	e.cel.ClearCache()
}

// nextRequestID assigns a monotonic-counter + UUID-suffixed request id.
func (e *Engine) nextRequestID() string {
	seq := e.requestSeq.Add(1)
	return fmt.Sprintf("%d-%s", seq, uuid.NewString())
}

// Check evaluates an authorization request for every requested action
// and returns the combined decision.
func (e *Engine) Check(ctx context.Context, req *types.CheckRequest) (*types.CheckResponse, error) {
	if req == nil || req.Principal == nil || req.Resource == nil {
		return nil, fmt.Errorf("engine: request must carry a principal and a resource")
	}

	start := time.Now()

	if req.RequestID == "" {
		req.RequestID = e.nextRequestID()
	}

	ctx, rootSpan := e.tracer.Start(ctx, "authz.check",
		telemetry.PrincipalIDKey.String(principalID(req.Principal)),
		telemetry.ResourceKindKey.String(resourceKind(req.Resource)),
		telemetry.ResourceIDKey.String(resourceID(req.Resource)),
		telemetry.ActionCountKey.Int(len(req.Actions)),
	)
	defer rootSpan.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("engine: internal invariant violation: %v", r)
			rootSpan.SetError(err)
			e.logger.Error("check panicked", zap.String("requestId", req.RequestID), zap.Any("recover", r))
			panic(r)
		}
	}()

	derivedRoleSet, addedRoles := e.resolveDerivedRoles(ctx, req)
	effectiveRoles := unionRoles(req.Principal.Roles, derivedRoleSet)

	var scopeResult *types.ScopeResolutionResult
	var resourcePolicies []*types.ResourcePolicy
	if req.Scope != nil {
		effectiveScope := e.scope.ComputeEffectiveScope(req.Scope.Principal, req.Scope.Resource)
		resourcePolicies, scopeResult = e.resolveScopedPolicies(ctx, effectiveScope, req.Resource.Kind)
	} else {
		resourcePolicies = e.store.FindResourcePolicies("", req.Resource.Kind)
	}

	results := make(map[string]types.ActionResult, len(req.Actions))
	var policiesEvaluated []string
	policyCount := len(resourcePolicies) + len(e.store.Principal.PoliciesFor(req.Principal.ID))

	for _, action := range req.Actions {
		principalVerdict, resourceVerdict := e.evaluateActionTiers(ctx, resourcePolicies, req, action, derivedRoleSet, effectiveRoles)

		result := combine(principalVerdict, resourceVerdict)
		result.EffectiveDerivedRoles = addedRoles
		results[action] = result

		if result.Policy != types.DefaultDenyPolicy {
			policiesEvaluated = append(policiesEvaluated, result.Policy)
		}
	}

	rootSpan.SetAttributes(telemetry.PolicyCountKey.Int(policyCount))

	resp := &types.CheckResponse{
		RequestID: req.RequestID,
		Results:   results,
		Meta: types.ResponseMeta{
			EvaluationDurationMs: float64(time.Since(start)) / float64(time.Millisecond),
			PoliciesEvaluated:    policiesEvaluated,
		},
		ScopeResolution: scopeResult,
	}

	e.emitAudit(req, resp)

	return resp, nil
}

// CheckWithScope evaluates a scoped request. It is the same algorithm
// as Check, which already honors req.Scope when present; the separate
// name mirrors the scoped entry point callers expect alongside Check.
func (e *Engine) CheckWithScope(ctx context.Context, req *types.CheckRequest) (*types.CheckResponse, error) {
	return e.Check(ctx, req)
}

// resolveDerivedRoles resolves the principal's derived-role set,
// consulting the per-(principal,resource) memo first. The memo only
// helps across repeated Check calls with the same principal/resource
// pair, since a single Check already resolves derived roles once
// regardless of action count. Requests carrying auxData bypass the
// memo entirely: they are neither served from it nor stored in it.
func (e *Engine) resolveDerivedRoles(ctx context.Context, req *types.CheckRequest) ([]string, []string) {
	_, span := e.tracer.Start(ctx, "authz.derived_roles",
		telemetry.PrincipalIDKey.String(principalID(req.Principal)),
	)
	defer span.End()

	if len(req.AuxData) == 0 {
		if resolved, ok := e.derivedMemo.Get(req.Principal, req.Resource); ok {
			span.SetAttributes(telemetry.DerivedRoleCount.Int(len(resolved)))
			return resolved, subtract(resolved, req.Principal.Roles)
		}
	}

	defs := e.store.DerivedRoleDefinitions()
	resolved, err := e.derivedRoles.Resolve(req.Principal, req.Resource, req.AuxData, defs)
	if err != nil {
		span.SetError(err)
		e.logger.Warn("derived role resolution failed, falling back to base roles",
			zap.String("requestId", req.RequestID), zap.Error(err))
		resolved = append([]string{}, req.Principal.Roles...)
	} else if len(req.AuxData) == 0 {
		e.derivedMemo.Set(req.Principal, req.Resource, resolved)
	}
	span.SetAttributes(telemetry.DerivedRoleCount.Int(len(resolved)))

	added := subtract(resolved, req.Principal.Roles)
	return resolved, added
}

func (e *Engine) resolveScopedPolicies(ctx context.Context, effectiveScope, resourceKind string) ([]*types.ResourcePolicy, *types.ScopeResolutionResult) {
	_, span := e.tracer.Start(ctx, "authz.policy_match",
		telemetry.ResourceKindKey.String(resourceKind),
	)
	defer span.End()

	match, err := e.scope.FindMatchingPolicy(func(s, kind string) bool {
		return e.store.HasResourcePolicySet(s, kind)
	}, resourceKind, effectiveScope)
	if err != nil {
		span.SetError(err)
		return nil, &types.ScopeResolutionResult{EffectiveScope: effectiveScope}
	}

	policies := e.store.FindResourcePolicies(match.MatchedScope, resourceKind)
	return policies, &types.ScopeResolutionResult{
		EffectiveScope:      effectiveScope,
		InheritanceChain:    match.Chain,
		ScopedPolicyMatched: match.Found && match.MatchedScope != "",
	}
}

// evaluateActionTiers computes the principal verdict and the resource
// verdict for one action concurrently: the principal tier runs on its
// own goroutine while the resource tier runs inline, joined before
// combining.
func (e *Engine) evaluateActionTiers(ctx context.Context, resourcePolicies []*types.ResourcePolicy, req *types.CheckRequest, action string, derivedRoleSet, effectiveRoles []string) (principal.Verdict, resourceVerdict) {
	var principalVerdict principal.Verdict

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		principalVerdict = e.principalEv.Evaluate(req.Principal, req.Resource, action, derivedRoleSet)
	}()

	resVerdict := e.evaluateResourcePolicies(ctx, resourcePolicies, req, action, derivedRoleSet, effectiveRoles)
	wg.Wait()

	return principalVerdict, resVerdict
}

// evaluateResourcePolicies scans candidate resource policies in load
// order, each rule in declaration order. A matching deny returns
// immediately; a matching allow is kept but scanning continues in case
// a later rule denies.
func (e *Engine) evaluateResourcePolicies(ctx context.Context, policies []*types.ResourcePolicy, req *types.CheckRequest, action string, derivedRoles, effectiveRoles []string) resourceVerdict {
	_, span := e.tracer.Start(ctx, "authz.policy_match", telemetry.ActionKey.String(action))
	defer span.End()

	var allow *resourceVerdict

	for _, pol := range policies {
		variablesMap := e.resolvePolicyVariables(ctx, pol, req)

		for _, rule := range pol.Rules {
			if !matcher.MatchAnyAction(rule.Actions, action) {
				continue
			}
			if len(rule.Roles) > 0 && !hasOverlap(rule.Roles, effectiveRoles) {
				continue
			}
			if len(rule.DerivedRoles) > 0 && !hasOverlap(rule.DerivedRoles, derivedRoles) {
				continue
			}
			if rule.Condition != "" {
				_, condSpan := e.tracer.Start(ctx, "authz.cel_evaluate",
					telemetry.PolicyNameKey.String(pol.Name),
					telemetry.ExpressionLenKey.Int(len(rule.Condition)),
				)
				ok := e.cel.EvaluateBoolean(rule.Condition, &cel.EvalContext{
					Principal: req.Principal.ToMap(),
					Resource:  req.Resource.ToMap(),
					AuxData:   req.AuxData,
					Variables: variablesMap,
				})
				condSpan.End()
				if !ok {
					continue
				}
			}

			if rule.Effect == types.EffectDeny {
				span.SetAttributes(telemetry.EffectKey.String(string(types.EffectDeny)), telemetry.PolicyNameKey.String(pol.Name))
				return resourceVerdict{present: true, explicitDeny: true, effect: types.EffectDeny, policyName: pol.Name, ruleName: rule.Name}
			}
			if allow == nil {
				v := resourceVerdict{present: true, effect: types.EffectAllow, policyName: pol.Name, ruleName: rule.Name}
				allow = &v
			}
		}
	}

	if allow != nil {
		span.SetAttributes(telemetry.EffectKey.String(string(types.EffectAllow)), telemetry.PolicyNameKey.String(allow.policyName))
		return *allow
	}
	return resourceVerdict{}
}

// resolvePolicyVariables resolves pol's variable/constant bindings and
// evaluates the variable expressions against the request's
// principal/resource/auxData, producing the "variables.*" map a rule
// condition sees.
func (e *Engine) resolvePolicyVariables(ctx context.Context, pol *types.ResourcePolicy, req *types.CheckRequest) map[string]interface{} {
	if pol.Variables == nil {
		return nil
	}

	resolution, err := e.store.Variables.Resolve(pol.Variables)
	if err != nil {
		e.logger.Warn("variable resolution failed", zap.String("policy", pol.Name), zap.Error(err))
		return nil
	}

	values := make(map[string]interface{}, len(resolution.Variables)+len(resolution.Constants))
	for name, v := range resolution.Constants {
		values[name] = v
	}

	// Variable expressions may reference constants (and alphabetically
	// earlier variables) through variables.*; evaluating in sorted name
	// order keeps the result deterministic.
	names := make([]string, 0, len(resolution.Variables))
	for name := range resolution.Variables {
		names = append(names, name)
	}
	sort.Strings(names)

	principalMap := req.Principal.ToMap()
	resourceMap := req.Resource.ToMap()
	for _, name := range names {
		_, span := e.tracer.Start(ctx, "authz.cel_evaluate", telemetry.PolicyNameKey.String(pol.Name))
		result := e.cel.Evaluate(resolution.Variables[name], &cel.EvalContext{
			Principal: principalMap,
			Resource:  resourceMap,
			AuxData:   req.AuxData,
			Variables: values,
		})
		span.End()
		if result.Success {
			values[name] = result.Value
		}
	}
	return values
}

// emitAudit delivers a DecisionEvent to the injected audit logger,
// fire-and-forget: the engine must never block on it.
func (e *Engine) emitAudit(req *types.CheckRequest, resp *types.CheckResponse) {
	if !e.auditEnabled.Load() {
		return
	}
	loggerPtr := e.auditLogger.Load()
	if loggerPtr == nil {
		return
	}
	logger := *loggerPtr

	event := &types.DecisionEvent{Request: req}
	event.Response.Results = resp.Results
	event.Response.DurationMs = resp.Meta.EvaluationDurationMs
	event.Response.PoliciesEvaluated = resp.Meta.PoliciesEvaluated

	go func() {
		defer func() { _ = recover() }()
		logger.LogDecision(event)
	}()
}

// resourceVerdict is the outcome of scanning a tier of resource
// policies for one action.
type resourceVerdict struct {
	present      bool
	explicitDeny bool
	effect       types.Effect
	policyName   string
	ruleName     string
}

// combine applies the deny-override combining table:
// a principal-side explicit deny always wins; otherwise a resource-side
// explicit deny wins; otherwise a principal allow wins; otherwise a
// resource allow; otherwise default-deny.
func combine(principalVerdict principal.Verdict, resourceVerdict resourceVerdict) types.ActionResult {
	switch {
	case principalVerdict.Present && principalVerdict.Effect == types.EffectDeny:
		return types.ActionResult{Effect: types.EffectDeny, Policy: principalVerdict.PolicyName}
	case resourceVerdict.explicitDeny:
		return types.ActionResult{Effect: types.EffectDeny, Policy: resourceVerdict.policyName, MatchedRule: resourceVerdict.ruleName}
	case principalVerdict.Present && principalVerdict.Effect == types.EffectAllow:
		return types.ActionResult{Effect: types.EffectAllow, Policy: principalVerdict.PolicyName}
	case resourceVerdict.present && resourceVerdict.effect == types.EffectAllow:
		return types.ActionResult{Effect: types.EffectAllow, Policy: resourceVerdict.policyName, MatchedRule: resourceVerdict.ruleName}
	default:
		return types.ActionResult{Effect: types.EffectDeny, Policy: types.DefaultDenyPolicy}
	}
}

func hasOverlap(a, b []string) bool {
	set := make(map[string]bool, len(b))
	for _, x := range b {
		set[x] = true
	}
	for _, x := range a {
		if set[x] {
			return true
		}
	}
	return false
}

func unionRoles(base, derived []string) []string {
	set := make(map[string]bool, len(base)+len(derived))
	out := make([]string, 0, len(base)+len(derived))
	for _, r := range base {
		if !set[r] {
			set[r] = true
			out = append(out, r)
		}
	}
	for _, r := range derived {
		if !set[r] {
			set[r] = true
			out = append(out, r)
		}
	}
	return out
}

// subtract returns the entries of resolved not present in base, sorted
// for deterministic ActionResult.EffectiveDerivedRoles output.
func subtract(resolved, base []string) []string {
	present := make(map[string]bool, len(base))
	for _, r := range base {
		present[r] = true
	}
	var out []string
	for _, r := range resolved {
		if !present[r] {
			out = append(out, r)
		}
	}
	sort.Strings(out)
	return out
}

func principalID(p *types.Principal) string {
	if p == nil {
		return ""
	}
	return p.ID
}

func resourceKind(r *types.Resource) string {
	if r == nil {
		return ""
	}
	return r.Kind
}

func resourceID(r *types.Resource) string {
	if r == nil {
		return ""
	}
	return r.ID
}
