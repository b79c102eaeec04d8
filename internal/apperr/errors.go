// Package apperr defines the error kinds shared by the store, the changeset
// engine and the CLI.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrFormat            = errors.New("format error")
	ErrDanglingReference = errors.New("dangling reference")
	ErrSplitMismatch     = errors.New("split mismatch")
	ErrNonIntegerID      = errors.New("non-integer id")
	ErrAlreadyApplied    = errors.New("already applied")
	ErrDuplicateID       = errors.New("duplicate id")
)

// FormatError reports malformed input: a missing id column, an unreadable
// row, an unsupported changeset extension.
type FormatError struct {
	Path string
	Line int // 1-based, 0 when unknown
	Msg  string
	Err  error
}

func (e *FormatError) Error() string {
	loc := e.Path
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	msg := e.Msg
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	if loc == "" {
		return "format error: " + msg
	}
	return fmt.Sprintf("format error in %s: %s", loc, msg)
}

func (e *FormatError) Unwrap() error { return e.Err }

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// Formatf builds a FormatError without an underlying cause.
func Formatf(path string, line int, format string, args ...any) error {
	return &FormatError{Path: path, Line: line, Msg: fmt.Sprintf(format, args...)}
}

// DanglingReferenceError reports a changeset operation against an id that is
// not in the working set, or an operation whose type is not recognised.
type DanglingReferenceError struct {
	Op   string
	ID   string
	Line int // position of the operation in its changeset, 0 when unknown
}

func (e *DanglingReferenceError) Error() string {
	msg := fmt.Sprintf("%s: dangling id %s", e.Op, e.ID)
	if e.ID == "" {
		msg = fmt.Sprintf("unsupported operation %q", e.Op)
	}
	if e.Line > 0 {
		return fmt.Sprintf("changeset line %d: %s", e.Line, msg)
	}
	return msg
}

func (e *DanglingReferenceError) Is(target error) bool { return target == ErrDanglingReference }

// SplitMismatchError reports split parts whose amounts do not add up to the
// amount of the record being split.
type SplitMismatchError struct {
	ID       string
	Original string
	Total    string
}

func (e *SplitMismatchError) Error() string {
	return fmt.Sprintf("split %s: amounts %s != original %s", e.ID, e.Total, e.Original)
}

func (e *SplitMismatchError) Is(target error) bool { return target == ErrSplitMismatch }

// NonIntegerIDError is returned when auto-increment is requested on a store
// holding ids that are not integers.
type NonIntegerIDError struct {
	ID string
}

func (e *NonIntegerIDError) Error() string {
	return fmt.Sprintf("non-integer id %q found in index; cannot auto-increment", e.ID)
}

func (e *NonIntegerIDError) Is(target error) bool { return target == ErrNonIntegerID }
