package policy

import (
	"fmt"

	"github.com/authz-engine/go-core/pkg/types"
	"gopkg.in/yaml.v3"
)

// Loader parses raw YAML/JSON policy documents into typed policy
// structs. YAML accepts JSON as a subset, so one path serves both
// encodings.
type Loader struct {
	validator *Validator
}

// NewLoader creates a Loader that runs semantic validation (via v)
// immediately after parsing each document.
func NewLoader(v *Validator) *Loader {
	return &Loader{validator: v}
}

type envelope struct {
	APIVersion string        `yaml:"apiVersion"`
	Kind       string        `yaml:"kind"`
	Metadata   types.Metadata `yaml:"metadata"`
	Spec       yaml.Node     `yaml:"spec"`
}

// ParseResult is the typed outcome of parsing one document.
type ParseResult struct {
	Kind            types.PolicyKind
	ResourcePolicy  *types.ResourcePolicy
	PrincipalPolicy *types.PrincipalPolicy
	DerivedRoles    *types.DerivedRolesPolicy
	ExportVariables *types.ExportVariables
	ExportConstants *types.ExportConstants
	Warnings        []string
}

// ParseDocument parses and semantically validates one policy document.
// Ingestion is all-or-nothing: any structural or semantic error aborts
// the document's load with every collected FieldError attached.
func (l *Loader) ParseDocument(raw []byte) (*ParseResult, error) {
	var env envelope
	if err := yaml.Unmarshal(raw, &env); err != nil {
		return nil, &types.PolicyParseError{
			Message: "malformed policy document",
			Errors:  []*types.FieldError{{Path: "", Message: err.Error()}},
			Source:  string(raw),
		}
	}

	var fieldErrs []*types.FieldError

	if env.APIVersion != types.APIVersion {
		fieldErrs = append(fieldErrs, &types.FieldError{
			Path: "apiVersion", Code: types.ErrInvalidAPIVersion,
			Message: fmt.Sprintf("unsupported apiVersion %q", env.APIVersion),
		})
	}
	if env.Metadata.Name == "" {
		fieldErrs = append(fieldErrs, &types.FieldError{
			Path: "metadata.name", Code: types.ErrMissingRequiredField,
			Message: "metadata.name is required",
		})
	}

	kind := types.PolicyKind(env.Kind)
	result := &ParseResult{Kind: kind}

	switch kind {
	case types.KindResourcePolicy:
		var rp types.ResourcePolicy
		if err := env.Spec.Decode(&rp); err != nil {
			fieldErrs = append(fieldErrs, &types.FieldError{Path: "spec", Code: types.ErrMissingRequiredField, Message: err.Error()})
			break
		}
		rp.Metadata = env.Metadata
		result.ResourcePolicy = &rp
	case types.KindPrincipalPolicy:
		var pp types.PrincipalPolicy
		if err := env.Spec.Decode(&pp); err != nil {
			fieldErrs = append(fieldErrs, &types.FieldError{Path: "spec", Code: types.ErrMissingRequiredField, Message: err.Error()})
			break
		}
		pp.Metadata = env.Metadata
		result.PrincipalPolicy = &pp
	case types.KindDerivedRoles:
		var dr types.DerivedRolesPolicy
		if err := env.Spec.Decode(&dr); err != nil {
			fieldErrs = append(fieldErrs, &types.FieldError{Path: "spec", Code: types.ErrMissingRequiredField, Message: err.Error()})
			break
		}
		dr.Metadata = env.Metadata
		result.DerivedRoles = &dr
	case types.KindExportVariables:
		var ev types.ExportVariables
		if err := env.Spec.Decode(&ev); err != nil {
			fieldErrs = append(fieldErrs, &types.FieldError{Path: "spec", Code: types.ErrMissingRequiredField, Message: err.Error()})
			break
		}
		ev.Metadata = env.Metadata
		result.ExportVariables = &ev
	case types.KindExportConstants:
		var ec types.ExportConstants
		if err := env.Spec.Decode(&ec); err != nil {
			fieldErrs = append(fieldErrs, &types.FieldError{Path: "spec", Code: types.ErrMissingRequiredField, Message: err.Error()})
			break
		}
		ec.Metadata = env.Metadata
		result.ExportConstants = &ec
	default:
		fieldErrs = append(fieldErrs, &types.FieldError{
			Path: "kind", Code: types.ErrInvalidKind,
			Message:    fmt.Sprintf("unknown kind %q", env.Kind),
			Suggestion: closestKind(env.Kind),
		})
	}

	if len(fieldErrs) > 0 {
		return nil, &types.PolicyParseError{
			Message: fmt.Sprintf("failed to parse %s document", env.Kind),
			Errors:  fieldErrs,
			Source:  string(raw),
		}
	}

	if l.validator != nil {
		if err := l.validator.ValidateParsed(result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

var knownKinds = []string{
	string(types.KindResourcePolicy),
	string(types.KindPrincipalPolicy),
	string(types.KindDerivedRoles),
	string(types.KindExportVariables),
	string(types.KindExportConstants),
}

func closestKind(given string) string {
	best := ""
	bestDist := 4 // suggest only within Levenshtein distance 3
	for _, k := range knownKinds {
		if d := levenshtein(given, k); d < bestDist {
			bestDist = d
			best = k
		}
	}
	return best
}
