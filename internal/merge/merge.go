package merge

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Merge is a possibly-unresolved conflict between values of type T.
//
// Terms are stored interleaved as add, remove, add, remove, ..., add, so the
// length is always odd. The i-th remove pairs with the (i+1)-th add as a
// diff; the zeroth add is a diff from nothing. A Merge with a single term is
// resolved.
type Merge[T any] struct {
	values []T
}

// New builds a Merge from interleaved terms. It panics on an even number of
// terms, which can only come from a caller bug.
func New[T any](values []T) Merge[T] {
	if len(values)%2 != 1 {
		panic(fmt.Sprintf("merge: must have an odd number of terms, got %d", len(values)))
	}
	return Merge[T]{values: values}
}

// Resolved returns a Merge with the single term v.
func Resolved[T any](v T) Merge[T] {
	return Merge[T]{values: []T{v}}
}

// FromRemovesAdds builds a Merge from separate removes and adds.
// len(adds) must be len(removes)+1.
func FromRemovesAdds[T any](removes, adds []T) Merge[T] {
	if len(adds) != len(removes)+1 {
		panic(fmt.Sprintf("merge: %d adds do not match %d removes", len(adds), len(removes)))
	}
	values := make([]T, 0, len(removes)+len(adds))
	for i, r := range removes {
		values = append(values, adds[i], r)
	}
	values = append(values, adds[len(adds)-1])
	return Merge[T]{values: values}
}

// Repeated returns a Merge of numSides sides where every term is v.
func Repeated[T any](v T, numSides int) Merge[T] {
	values := make([]T, numSides*2-1)
	for i := range values {
		values[i] = v
	}
	return Merge[T]{values: values}
}

// Values returns the interleaved terms. Callers must not modify the slice.
func (m Merge[T]) Values() []T {
	return m.values
}

// Len returns the number of terms.
func (m Merge[T]) Len() int {
	return len(m.values)
}

// Removes returns the negative terms in order.
func (m Merge[T]) Removes() []T {
	out := make([]T, 0, len(m.values)/2)
	for i := 1; i < len(m.values); i += 2 {
		out = append(out, m.values[i])
	}
	return out
}

// Adds returns the positive terms in order.
func (m Merge[T]) Adds() []T {
	out := make([]T, 0, len(m.values)/2+1)
	for i := 0; i < len(m.values); i += 2 {
		out = append(out, m.values[i])
	}
	return out
}

// Add returns the i-th add.
func (m Merge[T]) Add(i int) T {
	return m.values[i*2]
}

// Remove returns the i-th remove.
func (m Merge[T]) Remove(i int) T {
	return m.values[i*2+1]
}

// First returns the first add.
func (m Merge[T]) First() T {
	return m.values[0]
}

// NumSides returns the number of adds.
func (m Merge[T]) NumSides() int {
	return len(m.values)/2 + 1
}

// IsResolved reports whether the merge has a single term.
func (m Merge[T]) IsResolved() bool {
	return len(m.values) == 1
}

// AsResolved returns the single term if the merge is resolved.
func (m Merge[T]) AsResolved() (T, bool) {
	if len(m.values) == 1 {
		return m.values[0], true
	}
	var zero T
	return zero, false
}

// Map applies f to every term.
func Map[T, U any](m Merge[T], f func(T) U) Merge[U] {
	out := make([]U, len(m.values))
	for i, v := range m.values {
		out[i] = f(v)
	}
	return Merge[U]{values: out}
}

// TryMap applies f to every term and stops at the first error.
func TryMap[T, U any](m Merge[T], f func(T) (U, error)) (Merge[U], error) {
	out := make([]U, len(m.values))
	for i, v := range m.values {
		u, err := f(v)
		if err != nil {
			return Merge[U]{}, err
		}
		out[i] = u
	}
	return Merge[U]{values: out}, nil
}

// Flatten turns a merge of merges into a single merge. Each nested remove
// term has its own adds and removes swapped so the diffs keep their sign.
func Flatten[T any](mm Merge[Merge[T]]) Merge[T] {
	var result []T
	result = append(result, mm.values[0].values...)
	for i := 1; i < len(mm.values); i += 2 {
		remove := append([]T(nil), mm.values[i].values...)
		// Rotate left by one and swap adjacent pairs: [a0 r0 a1] becomes
		// [a1 r0 a0], which negates the nested merge in place.
		if len(remove) > 1 {
			first := remove[0]
			copy(remove, remove[1:])
			remove[len(remove)-1] = first
			for j := 0; j+1 < len(remove); j += 2 {
				remove[j], remove[j+1] = remove[j+1], remove[j]
			}
		}
		result = append(result, remove...)
		result = append(result, mm.values[i+1].values...)
	}
	return Merge[T]{values: result}
}

// PadTo extends the merge to numSides sides by appending diffs from v to v.
// Merges that are already that wide are returned unchanged.
func PadTo[T any](m Merge[T], numSides int, v T) Merge[T] {
	if m.NumSides() >= numSides {
		return m
	}
	values := append([]T(nil), m.values...)
	for len(values) < numSides*2-1 {
		values = append(values, v, v)
	}
	return Merge[T]{values: values}
}

// MarshalJSON encodes the interleaved terms as a JSON array.
func (m Merge[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.values)
}

// UnmarshalJSON decodes a JSON array, rejecting an even number of terms.
func (m *Merge[T]) UnmarshalJSON(data []byte) error {
	var values []T
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	if len(values)%2 != 1 {
		return fmt.Errorf("merge: decoded %d terms, want an odd number", len(values))
	}
	m.values = values
	return nil
}

func (m Merge[T]) String() string {
	if v, ok := m.AsResolved(); ok {
		return fmt.Sprintf("Resolved(%v)", v)
	}
	var b strings.Builder
	b.WriteString("Conflicted(")
	for i, v := range m.values {
		if i > 0 {
			b.WriteString(", ")
		}
		if i%2 == 0 {
			b.WriteString("+")
		} else {
			b.WriteString("-")
		}
		fmt.Fprintf(&b, "%v", v)
	}
	b.WriteString(")")
	return b.String()
}
