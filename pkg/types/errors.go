package types

import "fmt"

// ErrorCode enumerates the stable error kinds policy ingestion reports.
type ErrorCode string

const (
	// Parse/Schema
	ErrInvalidKind         ErrorCode = "InvalidKind"
	ErrInvalidAPIVersion   ErrorCode = "InvalidApiVersion"
	ErrMissingRequiredField ErrorCode = "MissingRequiredField"
	ErrInvalidEffect       ErrorCode = "InvalidEffect"
	ErrInvalidRoleName     ErrorCode = "InvalidRoleName"
	ErrInvalidActionName   ErrorCode = "InvalidActionName"
	ErrEmptyArray          ErrorCode = "EmptyArray"
	ErrEmptyExpression     ErrorCode = "EmptyExpression"
	ErrReservedKeyword     ErrorCode = "ReservedKeyword"
	ErrInvalidPolicyName   ErrorCode = "InvalidPolicyName"
	ErrInvalidResourceName ErrorCode = "InvalidResourceName"

	// Semantic
	ErrUndefinedDerivedRole ErrorCode = "UndefinedDerivedRole"
	ErrCircularDependency   ErrorCode = "CircularDependency"
	ErrDuplicateDefinition  ErrorCode = "DuplicateDefinition"
	ErrUnknownExport        ErrorCode = "UnknownExport"
	ErrDuplicateExport      ErrorCode = "DuplicateExport"

	// Expression
	ErrInvalidCelSyntax ErrorCode = "InvalidCelSyntax"

	// Scope
	ErrInvalidScope ErrorCode = "InvalidScope"
)

// FieldError is one structured failure inside a PolicyParseError, carrying
// a JSON-ish path to the offending field and an optional close-match
// suggestion.
type FieldError struct {
	Path       string    `json:"path"`
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	Line       int       `json:"line,omitempty"`
}

func (e *FieldError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s: %s (did you mean %q?)", e.Path, e.Message, e.Suggestion)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// PolicyParseError aggregates every FieldError found while parsing and
// validating a single policy document. Policy ingestion is all-or-nothing
// per document: any error aborts that document's load with
// every collected error attached.
type PolicyParseError struct {
	Message string
	Errors  []*FieldError
	Source  string
}

func (e *PolicyParseError) Error() string {
	if len(e.Errors) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (%d error(s), first: %s)", e.Message, len(e.Errors), e.Errors[0].Error())
}

// CircularDependencyError reports a derived-role dependency cycle found at
// policy load time, with the cycle given in path form.
type CircularDependencyError struct {
	Path []string
}

func (e *CircularDependencyError) Error() string {
	msg := "circular derived-role dependency: "
	for i, p := range e.Path {
		if i > 0 {
			msg += " -> "
		}
		msg += p
	}
	return msg
}

// UnknownExportError reports a PolicyVariables.Import entry with no
// matching registered ExportVariables/ExportConstants.
type UnknownExportError struct {
	Name string
}

func (e *UnknownExportError) Error() string {
	return fmt.Sprintf("unknown export: %q", e.Name)
}

// DuplicateExportError reports an export name registered more than once
// across ExportVariables and ExportConstants.
type DuplicateExportError struct {
	Name string
}

func (e *DuplicateExportError) Error() string {
	return fmt.Sprintf("duplicate export name: %q", e.Name)
}

// DuplicateDefinitionError reports two derived-role definitions sharing
// a name within the loaded definition set.
type DuplicateDefinitionError struct {
	Name string
}

func (e *DuplicateDefinitionError) Error() string {
	return fmt.Sprintf("duplicate derived-role definition: %q", e.Name)
}

// ScopeErrorReason sub-classifies an InvalidScope error.
type ScopeErrorReason string

const (
	ScopeReasonDepth          ScopeErrorReason = "depth"
	ScopeReasonEmpty          ScopeErrorReason = "empty"
	ScopeReasonIllegalChar    ScopeErrorReason = "illegal_character"
	ScopeReasonEmptySegment   ScopeErrorReason = "empty_segment"
)

// InvalidScopeError reports a malformed scope string.
type InvalidScopeError struct {
	Scope  string
	Reason ScopeErrorReason
}

func (e *InvalidScopeError) Error() string {
	return fmt.Sprintf("invalid scope %q: %s", e.Scope, e.Reason)
}
