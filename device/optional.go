package device

import "fmt"

// Optional holds a value that may be absent. The zero value is absent, which keeps
// "not reported" distinct from a reported zero.
type Optional[T any] struct {
  value T
  set bool
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
  return Optional[T]{value: v, set: true}
}

// None returns an absent Optional, the same as the zero value.
func None[T any]() Optional[T] {
  return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
  return o.value, o.set
}

// IsSet reports whether a value is present.
func (o Optional[T]) IsSet() bool {
  return o.set
}

func (o Optional[T]) String() string {
  if !o.set {
    return "<none>"
  }

  return fmt.Sprint(o.value)
}
