package merge

import (
	"fmt"
	"slices"
)

// SameChange controls whether a conflict where every side made the same
// change is resolved to that change.
type SameChange int

const (
	// SameChangeAccept resolves identical changes on all sides.
	SameChangeAccept SameChange = iota
	// SameChangeKeep leaves identical changes conflicted.
	SameChangeKeep
)

func (s SameChange) String() string {
	switch s {
	case SameChangeAccept:
		return "accept"
	case SameChangeKeep:
		return "keep"
	default:
		return fmt.Sprintf("SameChange(%d)", int(s))
	}
}

// ParseSameChange parses the config spelling of a SameChange.
func ParseSameChange(s string) (SameChange, error) {
	switch s {
	case "", "accept":
		return SameChangeAccept, nil
	case "keep":
		return SameChangeKeep, nil
	default:
		return 0, fmt.Errorf("invalid same-change policy %q", s)
	}
}

// Equal reports whether two merges have identical terms.
func Equal[T comparable](a, b Merge[T]) bool {
	return slices.Equal(a.values, b.values)
}

// Simplify cancels every add that is equal to some remove. The relative order
// of the remaining diffs is preserved so the result can still be matched up
// with the input.
func Simplify[T comparable](m Merge[T]) Merge[T] {
	mapping := simplifiedMapping(m.values)
	out := make([]T, len(mapping))
	for i, idx := range mapping {
		out[i] = m.values[idx]
	}
	return Merge[T]{values: out}
}

// SimplifyFunc is Simplify for terms that are compared by key.
func SimplifyFunc[T any, K comparable](m Merge[T], key func(T) K) Merge[T] {
	keys := make([]K, len(m.values))
	for i, v := range m.values {
		keys[i] = key(v)
	}
	mapping := simplifiedMapping(keys)
	out := make([]T, len(mapping))
	for i, idx := range mapping {
		out[i] = m.values[idx]
	}
	return Merge[T]{values: out}
}

// simplifiedMapping returns the indices of the terms that survive
// simplification.
func simplifiedMapping[T comparable](values []T) []int {
	indices := make([]int, len(values))
	for i := range indices {
		indices[i] = i
	}
	addIndex := 0
	for addIndex < len(indices) {
		add := values[indices[addIndex]]
		found := -1
		for removeIndex := 1; removeIndex < len(indices); removeIndex += 2 {
			if values[indices[removeIndex]] == add {
				found = removeIndex
				break
			}
		}
		if found < 0 {
			addIndex += 2
			continue
		}
		// Align the add with the matching remove's diff, then drop the pair.
		indices[found+1], indices[addIndex] = indices[addIndex], indices[found+1]
		indices = append(indices[:found], indices[found+2:]...)
	}
	return indices
}

// UpdateFromSimplified writes the terms of simplified back into the
// positions they came from in m. simplified must have been produced by
// Simplify(m) followed by a shape-preserving transformation.
func UpdateFromSimplified[T comparable](m, simplified Merge[T]) Merge[T] {
	mapping := simplifiedMapping(m.values)
	if len(mapping) != len(simplified.values) {
		panic(fmt.Sprintf("merge: simplified has %d terms, mapping has %d", len(simplified.values), len(mapping)))
	}
	values := append([]T(nil), m.values...)
	for i, idx := range mapping {
		values[idx] = simplified.values[i]
	}
	return Merge[T]{values: values}
}

// ResolveTrivial returns the resolved value if the merge can be resolved
// without looking inside the terms.
func ResolveTrivial[T comparable](m Merge[T], sameChange SameChange) (T, bool) {
	return TrivialMerge(m.values, sameChange)
}

// TrivialMerge resolves interleaved terms when every diff cancels out except
// one, or, under SameChangeAccept, when all remaining sides agree.
func TrivialMerge[T comparable](values []T, sameChange SameChange) (T, bool) {
	if len(values)%2 != 1 {
		panic("merge: TrivialMerge requires an odd number of terms")
	}
	var zero T
	switch len(values) {
	case 1:
		return values[0], true
	case 3:
		add0, remove, add1 := values[0], values[1], values[2]
		switch {
		case add0 == add1 && sameChange == SameChangeAccept:
			return add0, true
		case add0 == remove:
			return add1, true
		case add1 == remove:
			return add0, true
		default:
			return zero, false
		}
	}

	// Count adds as +1 and removes as -1 so equal terms cancel. Keys are kept
	// in first-seen order for determinism.
	counts := make(map[T]int)
	var order []T
	for i, v := range values {
		n := 1
		if i%2 == 1 {
			n = -1
		}
		if _, ok := counts[v]; !ok {
			order = append(order, v)
		}
		counts[v] += n
	}
	var remaining []T
	for _, v := range order {
		if counts[v] != 0 {
			remaining = append(remaining, v)
		}
	}
	switch {
	case len(remaining) == 1:
		if counts[remaining[0]] != 1 {
			panic(fmt.Sprintf("merge: single surviving term has count %d", counts[remaining[0]]))
		}
		return remaining[0], true
	case len(remaining) == 2 && sameChange == SameChangeAccept:
		v1, v2 := remaining[0], remaining[1]
		if counts[v1]+counts[v2] != 1 {
			panic("merge: surviving counts must sum to one")
		}
		if counts[v1] > 0 {
			return v1, true
		}
		return v2, true
	default:
		return zero, false
	}
}

// Diff is a before/after pair.
type Diff[T any] struct {
	Before T
	After  T
}

// IsChanged reports whether before and after differ.
func IsChanged[T comparable](d Diff[T]) bool {
	return d.Before != d.After
}
