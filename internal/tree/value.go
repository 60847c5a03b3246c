// Package tree implements possibly-conflicted directory trees: lookup,
// iteration, recursive merging, diffing and building.
package tree

import (
	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/merge"
)

// Value is the possibly-conflicted value at one path.
type Value = merge.Merge[backend.TreeValue]

// AbsentValue is the resolved value of a path that does not exist.
func AbsentValue() Value {
	return merge.Resolved(backend.Absent)
}

// IsAbsent reports whether v is resolved to absent.
func IsAbsent(v Value) bool {
	r, ok := v.AsResolved()
	return ok && r.IsAbsent()
}

// IsPresent is the negation of IsAbsent. A conflict is present even if
// some of its terms are absent.
func IsPresent(v Value) bool {
	return !IsAbsent(v)
}

// IsTree reports whether v should be recursed into during walks: it is
// present and every term is a tree or absent.
func IsTree(v Value) bool {
	if !IsPresent(v) {
		return false
	}
	for _, term := range v.Values() {
		if term.IsPresent() && !term.IsTree() {
			return false
		}
	}
	return true
}

// IsFileLike reports whether v is present and not a tree.
func IsFileLike(v Value) bool {
	return IsPresent(v) && !IsTree(v)
}

func withoutTree(v Value) Value {
	if IsTree(v) {
		return AbsentValue()
	}
	return v
}

// fileTerms extracts the file ids of v. ok is false if any term is not a
// file.
func fileTerms(v Value) (ids merge.Merge[backend.FileID], executable merge.Merge[bool], copyIDs merge.Merge[backend.CopyID], ok bool) {
	for _, term := range v.Values() {
		if !term.IsFile() {
			return ids, executable, copyIDs, false
		}
	}
	ids = merge.Map(v, backend.TreeValue.FileID)
	executable = merge.Map(v, func(t backend.TreeValue) bool { return t.Executable })
	copyIDs = merge.Map(v, func(t backend.TreeValue) backend.CopyID { return t.CopyID })
	return ids, executable, copyIDs, true
}
