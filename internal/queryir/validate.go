package queryir

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/bullion/internal/ir"
)

// Validate checks that every node references a known field with values of
// the field's kind, and that ranges are not inverted.
//
// Validate is a pure function with no side effects. It returns all
// problems found, joined.
func Validate(p Predicate) error {
	v := &validator{}
	v.validatePredicate(p)
	return errors.Join(v.errs...)
}

// validator accumulates errors during traversal.
type validator struct {
	errs []error
}

func (v *validator) addError(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) validatePredicate(p Predicate) {
	if p == nil {
		return // nil predicate = no filter
	}

	switch pred := p.(type) {
	case Equals:
		v.validateEquals(pred)
	case *Equals:
		v.validateEquals(*pred)
	case Range:
		v.validateRange(pred)
	case *Range:
		v.validateRange(*pred)
	case And:
		v.validateAnd(pred)
	case *And:
		v.validateAnd(*pred)
	default:
		v.addError("unknown predicate type %T", p)
	}
}

func (v *validator) validateEquals(eq Equals) {
	kind, ok := KindOf(eq.Field)
	if !ok {
		v.addError("unknown field %q", eq.Field)
		return
	}
	if eq.Value == nil {
		v.addError("field %q compared to nil", eq.Field)
		return
	}
	if !valueMatches(kind, eq.Value) {
		v.addError("field %q: value %v (%T) has wrong type", eq.Field, eq.Value, eq.Value)
	}
}

func (v *validator) validateRange(r Range) {
	kind, ok := KindOf(r.Field)
	if !ok {
		v.addError("unknown field %q", r.Field)
		return
	}
	if kind == KindString {
		v.addError("field %q does not support ranges", r.Field)
		return
	}
	for _, bound := range []any{r.Min, r.Max} {
		if bound != nil && !valueMatches(kind, bound) {
			v.addError("field %q: bound %v (%T) has wrong type", r.Field, bound, bound)
			return
		}
		if f, isFloat := bound.(float64); isFloat && !ir.Finite(f) {
			v.addError("field %q: bound %v is not a finite number", r.Field, f)
			return
		}
	}
	if r.Min != nil && r.Max != nil && less(r.Max, r.Min) {
		v.addError("field %q: range min %v is greater than max %v", r.Field, r.Min, r.Max)
	}
}

func (v *validator) validateAnd(and And) {
	for _, sub := range and.Predicates {
		v.validatePredicate(sub)
	}
}

func valueMatches(kind Kind, val any) bool {
	switch kind {
	case KindString:
		_, ok := val.(string)
		return ok
	case KindInt:
		_, ok := val.(int64)
		return ok
	case KindFloat:
		_, ok := val.(float64)
		return ok
	case KindTime:
		_, ok := val.(time.Time)
		return ok
	}
	return false
}

// less reports a < b for two values of the same kind.
func less(a, b any) bool {
	switch x := a.(type) {
	case int64:
		return x < b.(int64)
	case float64:
		return x < b.(float64)
	case time.Time:
		return x.Before(b.(time.Time))
	}
	return false
}
