package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is. Concrete error types below carry
// detail and unwrap to one of these.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidPosition = errors.New("invalid position")
	ErrCellOccupied    = errors.New("cell occupied")
	ErrInvalidType     = errors.New("invalid intervention type")
	ErrInvalidDocument = errors.New("invalid document")
	ErrInvalidInput    = errors.New("invalid input")
)

// NotFoundError reports a missing farm, tree, intervention or photo.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Is matches ErrNotFound.
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// PositionError reports a malformed or out-of-grid position code.
type PositionError struct {
	Code   string
	Reason string
}

func (e PositionError) Error() string {
	return fmt.Sprintf("invalid position %q: %s", e.Code, e.Reason)
}

// Is matches ErrInvalidPosition.
func (e PositionError) Is(target error) bool { return target == ErrInvalidPosition }

// CellOccupiedError reports a placement on a cell that already holds a tree.
type CellOccupiedError struct {
	FarmID   string
	Position string
	TreeID   string
}

func (e CellOccupiedError) Error() string {
	return fmt.Sprintf("cell %s on farm %s is occupied by tree %s", e.Position, e.FarmID, e.TreeID)
}

// Is matches ErrCellOccupied.
func (e CellOccupiedError) Is(target error) bool { return target == ErrCellOccupied }

// InvalidTypeError reports an unknown intervention type.
type InvalidTypeError struct {
	Value string
}

func (e InvalidTypeError) Error() string {
	return fmt.Sprintf("unknown intervention type %q", e.Value)
}

// Is matches ErrInvalidType.
func (e InvalidTypeError) Is(target error) bool { return target == ErrInvalidType }

// DocumentError lists every problem found while validating an import document.
type DocumentError struct {
	Problems []string
}

func (e DocumentError) Error() string {
	switch len(e.Problems) {
	case 0:
		return "invalid document"
	case 1:
		return "invalid document: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid document: %s (and %d more)", e.Problems[0], len(e.Problems)-1)
}

// Is matches ErrInvalidDocument.
func (e DocumentError) Is(target error) bool { return target == ErrInvalidDocument }

// InputError reports a field that failed validation.
type InputError struct {
	Field  string
	Reason string
}

func (e InputError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is matches ErrInvalidInput.
func (e InputError) Is(target error) bool { return target == ErrInvalidInput }

// ErrorKind is a stable, transport-neutral classification of errors.
type ErrorKind string

// Error kinds.
const (
	KindNotFound        ErrorKind = "not_found"
	KindInvalidPosition ErrorKind = "invalid_position"
	KindCellOccupied    ErrorKind = "cell_occupied"
	KindInvalidType     ErrorKind = "invalid_type"
	KindInvalidDocument ErrorKind = "invalid_document"
	KindInvalidInput    ErrorKind = "invalid_input"
	KindRuleViolation   ErrorKind = "rule_violation"
	KindInternal        ErrorKind = "internal"
)

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) ErrorKind {
	var rv RuleViolationError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidPosition):
		return KindInvalidPosition
	case errors.Is(err, ErrCellOccupied):
		return KindCellOccupied
	case errors.Is(err, ErrInvalidType):
		return KindInvalidType
	case errors.Is(err, ErrInvalidDocument):
		return KindInvalidDocument
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.As(err, &rv):
		return KindRuleViolation
	}
	return KindInternal
}

// Problems returns the document problems carried by err, if any.
func Problems(err error) []string {
	var de DocumentError
	if errors.As(err, &de) {
		return append([]string(nil), de.Problems...)
	}
	return nil
}
