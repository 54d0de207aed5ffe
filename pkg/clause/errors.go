// Package clause provides custom error types for template validation and rendering.
package clause

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks against the typed errors below.
var (
	ErrSyntax         = errors.New("template syntax error")
	ErrAmbiguousScope = errors.New("ambiguous placeholder scope")
	ErrMissingField   = errors.New("missing field")
	ErrUnknownField   = errors.New("unknown field")
)

// Position locates a placeholder in the template source.
// Offset is a byte offset; Line and Column are 1-based.
type Position struct {
	Offset int
	Line   int
	Column int
}

func (p Position) String() string {
	if p.Line == 0 {
		return fmt.Sprintf("offset %d", p.Offset)
	}
	return fmt.Sprintf("line %d, column %d", p.Line, p.Column)
}

// SyntaxError represents malformed placeholder structure: an unterminated
// block, a mismatched or orphaned end marker, a re-opened or nested block,
// or a template without placeholders.
type SyntaxError struct {
	Message string
	Token   string
	Pos     Position
}

func (e *SyntaxError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("syntax error at %s near '%s': %s", e.Pos, e.Token, e.Message)
	}
	return fmt.Sprintf("syntax error: %s", e.Message)
}

func (e *SyntaxError) Is(target error) bool {
	return target == ErrSyntax
}

// NewSyntaxError creates a new syntax error
func NewSyntaxError(message, token string, pos Position) error {
	return &SyntaxError{
		Message: message,
		Token:   token,
		Pos:     pos,
	}
}

// AmbiguousScopeError reports a field name used both at top level and inside
// a party block.
type AmbiguousScopeError struct {
	Name  string
	Party string
	Pos   Position
}

func (e *AmbiguousScopeError) Error() string {
	return fmt.Sprintf("ambiguous scope at %s: field '%s' is used both at top level and inside block '%s'",
		e.Pos, e.Name, e.Party)
}

func (e *AmbiguousScopeError) Is(target error) bool {
	return target == ErrAmbiguousScope
}

// MissingFieldError reports a placeholder the render context could not
// resolve. Party is empty for top-level fields.
type MissingFieldError struct {
	Name     string
	Party    string
	Instance int
	Pos      Position
}

func (e *MissingFieldError) Error() string {
	if e.Party == "" {
		return fmt.Sprintf("missing field '%s' at %s", e.Name, e.Pos)
	}
	return fmt.Sprintf("missing field '%s' in %s instance %d at %s", e.Name, e.Party, e.Instance, e.Pos)
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

// UnknownFieldError reports a context key the template never declares.
// It is only raised in strict mode.
type UnknownFieldError struct {
	Name     string
	Party    string
	Instance int
}

func (e *UnknownFieldError) Error() string {
	if e.Party == "" {
		return fmt.Sprintf("unknown field '%s'", e.Name)
	}
	return fmt.Sprintf("unknown field '%s' in %s instance %d", e.Name, e.Party, e.Instance)
}

func (e *UnknownFieldError) Is(target error) bool {
	return target == ErrUnknownField
}

// DocumentError represents an error during document operations
type DocumentError struct {
	Operation string
	Path      string
	Cause     error
}

func (e *DocumentError) Error() string {
	if e.Path != "" && e.Cause != nil {
		return fmt.Sprintf("document error during %s of '%s': %v", e.Operation, e.Path, e.Cause)
	} else if e.Path != "" {
		return fmt.Sprintf("document error during %s of '%s'", e.Operation, e.Path)
	} else if e.Cause != nil {
		return fmt.Sprintf("document error during %s: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("document error during %s", e.Operation)
}

func (e *DocumentError) Unwrap() error {
	return e.Cause
}

// NewDocumentError creates a new document error
func NewDocumentError(operation, path string, cause error) error {
	return &DocumentError{
		Operation: operation,
		Path:      path,
		Cause:     cause,
	}
}

// BatchError wraps the failure of one item in a batch render.
type BatchError struct {
	Index int
	Cause error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("render %d: %v", e.Index, e.Cause)
}

func (e *BatchError) Unwrap() error {
	return e.Cause
}

// RecoverError converts a panic recovery value to an error
func RecoverError(r interface{}) error {
	switch v := r.(type) {
	case error:
		return fmt.Errorf("panic recovered: %w", v)
	case string:
		return fmt.Errorf("panic recovered: %s", v)
	default:
		return fmt.Errorf("panic recovered: %v", v)
	}
}

// IsSyntaxError checks if an error is a syntax error
func IsSyntaxError(err error) bool {
	return errors.Is(err, ErrSyntax)
}

// IsAmbiguousScopeError checks if an error is an ambiguous scope error
func IsAmbiguousScopeError(err error) bool {
	return errors.Is(err, ErrAmbiguousScope)
}

// IsMissingFieldError checks if an error is a missing field error
func IsMissingFieldError(err error) bool {
	return errors.Is(err, ErrMissingField)
}

// IsDocumentError checks if an error is a document error
func IsDocumentError(err error) bool {
	var de *DocumentError
	return errors.As(err, &de)
}

// IsValidationError reports whether err means the template itself was
// rejected, as opposed to an incomplete render request.
func IsValidationError(err error) bool {
	return IsSyntaxError(err) || IsAmbiguousScopeError(err)
}

