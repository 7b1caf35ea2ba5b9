package params

import (
	"fmt"
	"math"
)

// Result is the outcome of a successful Check.
type Result struct {
	// Value is the coerced value to store. For nearest-kind parameters it is
	// the snapped grid value.
	Value any
	// Snapped is set when Value differs from the candidate because of
	// nearest-kind snapping.
	Snapped bool
}

// Check coerces v to the declared type of def and evaluates the constraint.
// It returns a *TypeMismatchError when coercion fails and a
// *ConstraintViolationError when the bound check fails. A nil v is accepted
// only for parameters without a default.
func Check(def *Definition, v any) (Result, error) {
	if v == nil {
		if def.HasDefault() {
			return Result{}, &TypeMismatchError{Name: def.Name, Type: def.Type, Value: v}
		}
		return Result{}, nil
	}

	cv, err := Coerce(def.Type, v)
	if err != nil {
		return Result{}, &TypeMismatchError{Name: def.Name, Type: def.Type, Value: v}
	}

	violation := func(format string, args ...any) error {
		return &ConstraintViolationError{Name: def.Name, Value: cv, Reason: fmt.Sprintf(format, args...)}
	}

	switch def.Kind {
	case KindRange:
		r := def.Bound.(Range)
		f, _ := toFloat(cv)
		if f < r.Min {
			return Result{}, violation("below minimum %v", r.Min)
		}
		if f > r.Max {
			return Result{}, violation("above maximum %v", r.Max)
		}

	case KindChoice, KindFlag:
		allowed := def.Bound.([]any)
		if !contains(allowed, cv) {
			return Result{}, violation("must be one of %v", allowed)
		}

	case KindNearest:
		f, _ := toFloat(cv)
		snapped := Nearest(def.Bound.([]float64), f)
		out, err := Coerce(def.Type, snapped)
		if err != nil {
			return Result{}, &TypeMismatchError{Name: def.Name, Type: def.Type, Value: snapped}
		}
		return Result{Value: out, Snapped: snapped != f}, nil

	case KindGreaterThan:
		bound := def.Bound.(float64)
		f, _ := toFloat(cv)
		if !(f > bound) {
			return Result{}, violation("must be greater than %v", bound)
		}

	case KindNoCheck:
	}

	return Result{Value: cv}, nil
}

// Nearest returns the member of the ascending set closest to v. Ties resolve
// to the lower member.
func Nearest(set []float64, v float64) float64 {
	best := set[0]
	bestDist := math.Abs(v - best)
	for _, candidate := range set[1:] {
		// Strict comparison keeps the lower member on ties.
		if d := math.Abs(v - candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}

func contains(allowed []any, v any) bool {
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}

func cloneBound(b any) any {
	switch v := b.(type) {
	case []any:
		return append([]any(nil), v...)
	case []float64:
		return append([]float64(nil), v...)
	}
	return b
}
