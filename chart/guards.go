package chart

import "reflect"

// Guard is a pure predicate gating whether a transition is enabled. It
// receives the current context and the triggering event and must not mutate
// either.
type Guard func(ctx any, event Event) bool

// Selector extracts a value from the context for a value guard. The event is
// deliberately not passed: value guards inspect context only.
type Selector func(ctx any) any

// And returns a guard that is true when every operand is true. Evaluation
// short-circuits on the first false operand.
func And(guards ...Guard) Guard {
	return func(ctx any, event Event) bool {
		for _, g := range guards {
			if !g(ctx, event) {
				return false
			}
		}

		return true
	}
}

// Or returns a guard that is true when any operand is true. Evaluation
// short-circuits on the first true operand.
func Or(guards ...Guard) Guard {
	return func(ctx any, event Event) bool {
		for _, g := range guards {
			if g(ctx, event) {
				return true
			}
		}

		return false
	}
}

// Not returns the negation of a guard.
func Not(guard Guard) Guard {
	return func(ctx any, event Event) bool {
		return !guard(ctx, event)
	}
}

// Xor returns a guard that is true iff exactly one operand is true.
func Xor(left, right Guard) Guard {
	return func(ctx any, event Event) bool {
		return left(ctx, event) != right(ctx, event)
	}
}

// Eq returns a guard that is true when the selected value equals want.
// Comparison uses host value equality; no coercion across types.
func Eq(sel Selector, want any) Guard {
	return func(ctx any, _ Event) bool {
		return reflect.DeepEqual(sel(ctx), want)
	}
}

// GreaterThan returns a guard that is true when the selected numeric value is
// strictly greater than want. Non-numeric values are never greater.
func GreaterThan(sel Selector, want float64) Guard {
	return func(ctx any, _ Event) bool {
		v, ok := asFloat(sel(ctx))

		return ok && v > want
	}
}

// LessThan returns a guard that is true when the selected numeric value is
// strictly less than want.
func LessThan(sel Selector, want float64) Guard {
	return func(ctx any, _ Event) bool {
		v, ok := asFloat(sel(ctx))

		return ok && v < want
	}
}

// InRange returns a guard that is true when min <= value <= max. Both bounds
// are inclusive.
func InRange(sel Selector, minVal, maxVal float64) Guard {
	return func(ctx any, _ Event) bool {
		v, ok := asFloat(sel(ctx))

		return ok && v >= minVal && v <= maxVal
	}
}

// IsNil returns a guard that is true when the selected value is nil.
func IsNil(sel Selector) Guard {
	return func(ctx any, _ Event) bool {
		return isNilValue(sel(ctx))
	}
}

// NotNil returns a guard that is true when the selected value is non-nil.
func NotNil(sel Selector) Guard {
	return Not(IsNil(sel))
}

// IsEmpty returns a guard that is true when the selected collection (slice,
// map, array, channel or string) has length zero, or is nil.
func IsEmpty(sel Selector) Guard {
	return func(ctx any, _ Event) bool {
		n, ok := lengthOf(sel(ctx))

		return !ok || n == 0
	}
}

// NotEmpty returns a guard that is true when the selected collection has at
// least one element.
func NotEmpty(sel Selector) Guard {
	return func(ctx any, _ Event) bool {
		n, ok := lengthOf(sel(ctx))

		return ok && n > 0
	}
}

// asFloat widens any numeric value to float64 for comparison guards.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

func lengthOf(v any) (int, bool) {
	if v == nil {
		return 0, false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.Chan, reflect.String:
		return rv.Len(), true
	default:
		return 0, false
	}
}
