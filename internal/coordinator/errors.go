package coordinator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/bullion/internal/ir"
)

// ErrorCode categorizes coordinator errors for callers that report them
// (CLI exit codes, JSON output).
type ErrorCode string

const (
	// ErrCodeValidation indicates the request was rejected before any write.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeNotFound indicates a referenced row was absent at lookup time.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeWriteFailure indicates a storage write failed mid-chain.
	ErrCodeWriteFailure ErrorCode = "WRITE_FAILURE"

	// ErrCodeInternal covers everything else (read failures, cancelled contexts).
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Stage identifies a step of a compensation chain.
type Stage string

const (
	StageItem             Stage = "item"
	StageSubCategoryDelta Stage = "subcategory_delta"
	StageCategoryDelta    Stage = "category_delta"
)

// ValidationError is returned when a request is malformed. No writes happen.
type ValidationError struct {
	// Op is the operation that rejected the request ("insert", "delete", "update").
	Op string

	// Fields lists every failed check in a fixed order.
	Fields []ir.FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("%s: %s: %s", ErrCodeValidation, e.Op, strings.Join(parts, "; "))
}

// NotFoundError is returned when a referenced category, subcategory or item
// does not exist in the caller's scope.
type NotFoundError struct {
	Kind  string // "category", "subcategory" or "item"
	ID    string
	Scope ir.Scope

	// Detail explains a mismatch, e.g. a subcategory under another category.
	Detail string
}

func (e *NotFoundError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s %s in %s: %s", ErrCodeNotFound, e.Kind, e.ID, e.Scope, e.Detail)
	}
	return fmt.Sprintf("%s: %s %s in %s", ErrCodeNotFound, e.Kind, e.ID, e.Scope)
}

// WriteFailure is returned when a store write failed at an identified stage.
// When Stage is past StageItem the item write (or delete) has committed and
// the rollups need a RecalcAll.
type WriteFailure struct {
	Op     string
	Stage  Stage
	ItemID string
	Err    error
}

func (e *WriteFailure) Error() string {
	return fmt.Sprintf("%s: %s item %s failed at stage %s: %v", ErrCodeWriteFailure, e.Op, e.ItemID, e.Stage, e.Err)
}

func (e *WriteFailure) Unwrap() error {
	return e.Err
}

// NeedsRecalc reports whether the item row committed before the failure.
func (e *WriteFailure) NeedsRecalc() bool {
	return e.Stage != StageItem
}

// IsValidation returns true if err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound returns true if err is (or wraps) a *NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsWriteFailure returns true if err is (or wraps) a *WriteFailure.
func IsWriteFailure(err error) bool {
	var wf *WriteFailure
	return errors.As(err, &wf)
}

// StageOf returns the failed stage of a *WriteFailure.
func StageOf(err error) (Stage, bool) {
	var wf *WriteFailure
	if errors.As(err, &wf) {
		return wf.Stage, true
	}
	return "", false
}

// CodeOf maps err onto an ErrorCode. A nil error has no code.
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case IsValidation(err):
		return ErrCodeValidation
	case IsNotFound(err):
		return ErrCodeNotFound
	case IsWriteFailure(err):
		return ErrCodeWriteFailure
	default:
		return ErrCodeInternal
	}
}
