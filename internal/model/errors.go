package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks caller bugs: unknown dataset kinds, conflicting specs,
	// missing column mappings. Never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransformation marks invalid inputs to a single derivation call.
	ErrTransformation = errors.New("transformation error")
)

// PipelineError carries the failing operation and column alongside its kind.
type PipelineError struct {
	Kind   error
	Op     string
	Column string
	Msg    string
	Cause  error
}

func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	parts := []string{e.Kind.Error()}
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Column != "" {
		parts = append(parts, fmt.Sprintf("column %q", e.Column))
	}
	if e.Msg != "" {
		parts = append(parts, e.Msg)
	}
	msg := strings.Join(parts, ": ")
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *PipelineError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// ConfigErrorf builds an ErrConfiguration-kind error for op.
func ConfigErrorf(op, format string, args ...any) error {
	return &PipelineError{Kind: ErrConfiguration, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// ColumnConfigErrorf is ConfigErrorf scoped to a column.
func ColumnConfigErrorf(op, column, format string, args ...any) error {
	return &PipelineError{Kind: ErrConfiguration, Op: op, Column: column, Msg: fmt.Sprintf(format, args...)}
}

// TransformErrorf builds an ErrTransformation-kind error for op on column.
func TransformErrorf(op, column, format string, args ...any) error {
	return &PipelineError{Kind: ErrTransformation, Op: op, Column: column, Msg: fmt.Sprintf(format, args...)}
}

// WrapConfig attaches cause to a configuration error.
func WrapConfig(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &PipelineError{Kind: ErrConfiguration, Op: op, Cause: cause}
}

func IsConfiguration(err error) bool  { return errors.Is(err, ErrConfiguration) }
func IsTransformation(err error) bool { return errors.Is(err, ErrTransformation) }
