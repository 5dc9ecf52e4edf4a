package policy

import (
	"fmt"
	"regexp"

	"github.com/authz-engine/go-core/internal/cel"
	"github.com/authz-engine/go-core/internal/derivedroles"
	"github.com/authz-engine/go-core/internal/matcher"
	"github.com/authz-engine/go-core/pkg/types"
)

// identifierPattern governs role/variable/derived-role identifiers:
// no hyphen, must start with a letter or underscore.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// policyNamePattern governs policy and resource-kind names, which allow
// hyphens and a leading digit.
var policyNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// reservedKeywords lists tokens an identifier may not equal, plus the
// CEL activation's own top-level bindings since a derived-role or
// variable name matching one of those would silently shadow it inside
// a condition.
var reservedKeywords = map[string]bool{
	"true": true, "false": true, "null": true, "undefined": true, "NaN": true,
	"principal": true, "resource": true, "request": true, "variables": true, "now": true,
}

const maxExportDefinitions = 100

// Validator runs semantic checks after a document has parsed
// structurally.
type Validator struct {
	store *Store
	cel   *cel.Engine
}

// NewValidator builds a Validator. store supplies cross-document
// context (known derived-role names) for reference checks.
func NewValidator(store *Store, celEngine *cel.Engine) *Validator {
	return &Validator{store: store, cel: celEngine}
}

// ValidateParsed dispatches to the kind-specific validation pass.
func (v *Validator) ValidateParsed(r *ParseResult) *types.PolicyParseError {
	var errs []*types.FieldError

	switch r.Kind {
	case types.KindResourcePolicy:
		errs = v.validateResourcePolicy(r.ResourcePolicy, &r.Warnings)
	case types.KindPrincipalPolicy:
		errs = v.validatePrincipalPolicy(r.PrincipalPolicy)
	case types.KindDerivedRoles:
		errs = v.validateDerivedRolesPolicy(r.DerivedRoles)
	case types.KindExportVariables:
		errs = v.validateExportVariables(r.ExportVariables)
	case types.KindExportConstants:
		errs = v.validateExportConstants(r.ExportConstants)
	}

	if len(errs) == 0 {
		return nil
	}
	return &types.PolicyParseError{
		Message: fmt.Sprintf("%s failed semantic validation", r.Kind),
		Errors:  errs,
	}
}

func (v *Validator) validateResourcePolicy(rp *types.ResourcePolicy, warnings *[]string) []*types.FieldError {
	var errs []*types.FieldError

	if !policyNamePattern.MatchString(rp.Metadata.Name) {
		errs = append(errs, &types.FieldError{Path: "metadata.name", Code: types.ErrInvalidPolicyName, Message: "policy name must match " + policyNamePattern.String()})
	}
	if !policyNamePattern.MatchString(rp.Resource) {
		errs = append(errs, &types.FieldError{Path: "spec.resource", Code: types.ErrInvalidResourceName, Message: "resource kind must match " + policyNamePattern.String()})
	}
	if len(rp.Rules) == 0 {
		errs = append(errs, &types.FieldError{Path: "spec.rules", Code: types.ErrEmptyArray, Message: "rules must not be empty"})
	}

	if rp.Variables != nil {
		for _, imp := range rp.Variables.Import {
			if !v.store.Variables.HasExport(imp) {
				errs = append(errs, &types.FieldError{
					Path: "spec.variables.import", Code: types.ErrUnknownExport,
					Message: fmt.Sprintf("unknown export %q", imp),
				})
			}
		}
		for name, expr := range rp.Variables.Local {
			path := "spec.variables.local." + name
			if !identifierPattern.MatchString(name) {
				errs = append(errs, &types.FieldError{Path: path, Code: types.ErrInvalidRoleName, Message: "invalid identifier"})
				continue
			}
			if reservedKeywords[name] {
				errs = append(errs, &types.FieldError{Path: path, Code: types.ErrReservedKeyword, Message: fmt.Sprintf("%q is a reserved keyword", name)})
				continue
			}
			if expr == "" {
				errs = append(errs, &types.FieldError{Path: path, Code: types.ErrEmptyExpression, Message: "expression must not be empty"})
				continue
			}
			if ok, syntaxErrs := v.cel.ValidateExpression(expr); !ok {
				errs = append(errs, &types.FieldError{Path: path, Code: types.ErrInvalidCelSyntax, Message: joinErrs(syntaxErrs)})
			}
		}
	}

	knownDerivedRoles := v.derivedRoleNameSet()

	for i, rule := range rp.Rules {
		path := fmt.Sprintf("spec.rules[%d]", i)
		errs = append(errs, v.validateRuleActionsAndEffect(path, rule.Actions, rule.Effect)...)

		if len(rule.Roles) == 0 && len(rule.DerivedRoles) == 0 {
			*warnings = append(*warnings, fmt.Sprintf("%s: applies to all principals (no roles or derivedRoles)", path))
		}

		for _, name := range rule.DerivedRoles {
			if !knownDerivedRoles[name] {
				errs = append(errs, &types.FieldError{
					Path: path + ".derivedRoles", Code: types.ErrUndefinedDerivedRole,
					Message: fmt.Sprintf("undefined derived role %q", name),
				})
			}
		}

		if rule.Condition != "" {
			if ok, syntaxErrs := v.cel.ValidateExpression(rule.Condition); !ok {
				errs = append(errs, &types.FieldError{
					Path: path + ".condition", Code: types.ErrInvalidCelSyntax,
					Message: joinErrs(syntaxErrs),
				})
			}
		}
	}

	return errs
}

func (v *Validator) validatePrincipalPolicy(pp *types.PrincipalPolicy) []*types.FieldError {
	var errs []*types.FieldError

	if pp.Principal == "" {
		errs = append(errs, &types.FieldError{Path: "spec.principal", Code: types.ErrMissingRequiredField, Message: "principal is required"})
	}
	if len(pp.Rules) == 0 {
		errs = append(errs, &types.FieldError{Path: "spec.rules", Code: types.ErrEmptyArray, Message: "rules must not be empty"})
	}

	for i, rule := range pp.Rules {
		path := fmt.Sprintf("spec.rules[%d]", i)
		if rule.Resource == "" {
			errs = append(errs, &types.FieldError{Path: path + ".resource", Code: types.ErrMissingRequiredField, Message: "resource is required"})
		}
		if len(rule.Actions) == 0 {
			errs = append(errs, &types.FieldError{Path: path + ".actions", Code: types.ErrEmptyArray, Message: "actions must not be empty"})
		}
		for j, ar := range rule.Actions {
			actionPath := fmt.Sprintf("%s.actions[%d]", path, j)
			if !matcher.IsValidActionPattern(ar.Action) {
				errs = append(errs, &types.FieldError{Path: actionPath + ".action", Code: types.ErrInvalidActionName, Message: fmt.Sprintf("invalid action pattern %q", ar.Action)})
			}
			if ar.Effect != types.EffectAllow && ar.Effect != types.EffectDeny {
				errs = append(errs, &types.FieldError{Path: actionPath + ".effect", Code: types.ErrInvalidEffect, Message: fmt.Sprintf("invalid effect %q", ar.Effect), Suggestion: suggestEffect(string(ar.Effect))})
			}
		}
		if rule.Condition != "" {
			if ok, syntaxErrs := v.cel.ValidateExpression(rule.Condition); !ok {
				errs = append(errs, &types.FieldError{Path: path + ".condition", Code: types.ErrInvalidCelSyntax, Message: joinErrs(syntaxErrs)})
			}
		}
	}

	return errs
}

func (v *Validator) validateDerivedRolesPolicy(dr *types.DerivedRolesPolicy) []*types.FieldError {
	var errs []*types.FieldError

	if len(dr.Definitions) == 0 {
		errs = append(errs, &types.FieldError{Path: "spec.definitions", Code: types.ErrEmptyArray, Message: "definitions must not be empty"})
		return errs
	}

	for i, def := range dr.Definitions {
		path := fmt.Sprintf("spec.definitions[%d]", i)
		if !identifierPattern.MatchString(def.Name) {
			errs = append(errs, &types.FieldError{Path: path + ".name", Code: types.ErrInvalidRoleName, Message: "derived role name must match " + identifierPattern.String()})
		}
		if reservedKeywords[def.Name] {
			errs = append(errs, &types.FieldError{Path: path + ".name", Code: types.ErrReservedKeyword, Message: fmt.Sprintf("%q is a reserved keyword", def.Name)})
		}
		if len(def.ParentRoles) == 0 {
			errs = append(errs, &types.FieldError{Path: path + ".parentRoles", Code: types.ErrEmptyArray, Message: "parentRoles must not be empty"})
		}
		if def.Condition != "" {
			if ok, syntaxErrs := v.cel.ValidateExpression(def.Condition); !ok {
				errs = append(errs, &types.FieldError{Path: path + ".condition", Code: types.ErrInvalidCelSyntax, Message: joinErrs(syntaxErrs)})
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}

	combined := append(append([]*types.DerivedRoleDefinition{}, v.store.DerivedRoleDefinitions()...), dr.Definitions...)
	if err := derivedroles.ValidateAll(combined); err != nil {
		switch e := err.(type) {
		case *types.CircularDependencyError:
			errs = append(errs, &types.FieldError{Path: "spec.definitions", Code: types.ErrCircularDependency, Message: e.Error()})
		case *types.DuplicateDefinitionError:
			errs = append(errs, &types.FieldError{Path: "spec.definitions", Code: types.ErrDuplicateDefinition, Message: e.Error()})
		default:
			errs = append(errs, &types.FieldError{Path: "spec.definitions", Message: err.Error()})
		}
	}

	return errs
}

func (v *Validator) validateExportVariables(ev *types.ExportVariables) []*types.FieldError {
	var errs []*types.FieldError
	if len(ev.Definitions) > maxExportDefinitions {
		errs = append(errs, &types.FieldError{Path: "spec.definitions", Message: fmt.Sprintf("at most %d definitions allowed", maxExportDefinitions)})
	}
	for name, expr := range ev.Definitions {
		if !identifierPattern.MatchString(name) {
			errs = append(errs, &types.FieldError{Path: "spec.definitions." + name, Code: types.ErrInvalidRoleName, Message: "invalid identifier"})
			continue
		}
		if expr == "" {
			errs = append(errs, &types.FieldError{Path: "spec.definitions." + name, Code: types.ErrEmptyExpression, Message: "expression must not be empty"})
			continue
		}
		if ok, syntaxErrs := v.cel.ValidateExpression(expr); !ok {
			errs = append(errs, &types.FieldError{Path: "spec.definitions." + name, Code: types.ErrInvalidCelSyntax, Message: joinErrs(syntaxErrs)})
		}
	}
	return errs
}

// validateExportConstants checks identifier legality and that each
// definition's top-level literal is JSON-shaped: a constant decoded from
// YAML/JSON as anything else (types.ValueFromInterface falls back to
// null for concrete types it doesn't recognize) is rejected rather than
// silently passed through as an opaque value the CEL evaluator would
// later stringify unpredictably. Elements nested inside a list or map
// value are not checked.
func (v *Validator) validateExportConstants(ec *types.ExportConstants) []*types.FieldError {
	var errs []*types.FieldError
	if len(ec.Definitions) > maxExportDefinitions {
		errs = append(errs, &types.FieldError{Path: "spec.definitions", Message: fmt.Sprintf("at most %d definitions allowed", maxExportDefinitions)})
	}
	for name, value := range ec.Definitions {
		if !identifierPattern.MatchString(name) {
			errs = append(errs, &types.FieldError{Path: "spec.definitions." + name, Code: types.ErrInvalidRoleName, Message: "invalid identifier"})
			continue
		}
		if value != nil && types.ValueFromInterface(value).IsNull() {
			errs = append(errs, &types.FieldError{
				Path:    "spec.definitions." + name,
				Message: "constant value must be JSON-shaped (null, bool, number, string, list, or map)",
			})
		}
	}
	return errs
}

func (v *Validator) validateRuleActionsAndEffect(path string, actions []string, effect types.Effect) []*types.FieldError {
	var errs []*types.FieldError
	if len(actions) == 0 {
		errs = append(errs, &types.FieldError{Path: path + ".actions", Code: types.ErrEmptyArray, Message: "actions must not be empty"})
	}
	for j, action := range actions {
		if !matcher.IsValidActionPattern(action) {
			errs = append(errs, &types.FieldError{Path: fmt.Sprintf("%s.actions[%d]", path, j), Code: types.ErrInvalidActionName, Message: fmt.Sprintf("invalid action pattern %q", action)})
		}
	}
	if effect != types.EffectAllow && effect != types.EffectDeny {
		errs = append(errs, &types.FieldError{Path: path + ".effect", Code: types.ErrInvalidEffect, Message: fmt.Sprintf("invalid effect %q", effect), Suggestion: suggestEffect(string(effect))})
	}
	return errs
}

func (v *Validator) derivedRoleNameSet() map[string]bool {
	set := make(map[string]bool)
	for _, d := range v.store.DerivedRoleDefinitions() {
		set[d.Name] = true
	}
	return set
}

func suggestEffect(given string) string {
	best, bestDist := "", 4
	for _, candidate := range []string{string(types.EffectAllow), string(types.EffectDeny)} {
		if d := levenshtein(given, candidate); d < bestDist {
			bestDist = d
			best = candidate
		}
	}
	return best
}

func joinErrs(errs []string) string {
	if len(errs) == 0 {
		return "invalid expression"
	}
	msg := errs[0]
	for _, e := range errs[1:] {
		msg += "; " + e
	}
	return msg
}

// levenshtein computes edit distance, used for close-match suggestions
// (only offered within distance 3).
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	n, m := len(ra), len(rb)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}

	prev := make([]int, m+1)
	curr := make([]int, m+1)
	for j := 0; j <= m; j++ {
		prev[j] = j
	}

	for i := 1; i <= n; i++ {
		curr[0] = i
		for j := 1; j <= m; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			min := del
			if ins < min {
				min = ins
			}
			if sub < min {
				min = sub
			}
			curr[j] = min
		}
		prev, curr = curr, prev
	}
	return prev[m]
}
