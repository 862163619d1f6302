// Package try provides a minimal result carrier pairing a value with an
// error, used to move (value, error) tuples through channels and futures.
package try

// Try holds either a successful value or an error.
type Try[A any] struct {
	Value A
	Error error
}

// Ok creates a successful Try.
func Ok[A any](value A) Try[A] {
	return Try[A]{Value: value}
}

// Fail creates a failed Try.
func Fail[A any](err error) Try[A] {
	return Try[A]{Error: err}
}

// IsSuccess reports whether the Try holds a value.
func (t Try[A]) IsSuccess() bool {
	return t.Error == nil
}

// IsFailure reports whether the Try holds an error.
func (t Try[A]) IsFailure() bool {
	return t.Error != nil
}

// Get unpacks the Try into Go's usual (value, error) shape.
func (t Try[A]) Get() (A, error) { //nolint:ireturn
	if t.IsFailure() {
		var zero A

		return zero, t.Error
	}

	return t.Value, nil
}

// GetOrElse returns the value, or the default when the Try failed.
func (t Try[A]) GetOrElse(defaultValue A) A { //nolint:ireturn
	if t.IsFailure() {
		return defaultValue
	}

	return t.Value
}

// Fold applies onSuccess or onFailure depending on the Try's state.
func Fold[A, B any](t Try[A], onSuccess func(A) B, onFailure func(error) B) B { //nolint:ireturn
	if t.IsFailure() {
		return onFailure(t.Error)
	}

	return onSuccess(t.Value)
}

// Map transforms a successful Try with f, passing failures through.
func Map[A, B any](t Try[A], f func(A) (B, error)) Try[B] {
	if t.IsFailure() {
		return Try[B]{Error: t.Error}
	}

	value, err := f(t.Value)

	return Try[B]{Value: value, Error: err}
}
