package cmp

// BiPredicator tells a relation between two values.
type BiPredicator[A, B any] func(A, B) bool

// a == b as BiPredicator function
func EqEq[T comparable](a, b T) bool {
	return a == b
}
