package tree

import (
	"fmt"
	"strings"

	"github.com/systemshift/splice/internal/backend"
)

// DescribeConflict lists the removed and added terms of v, one per line.
func DescribeConflict(v Value) string {
	var b strings.Builder
	b.WriteString("Conflict:\n")
	for _, term := range v.Removes() {
		if term.IsPresent() {
			fmt.Fprintf(&b, "  Removing %s\n", describeTerm(term))
		}
	}
	for _, term := range v.Adds() {
		if term.IsPresent() {
			fmt.Fprintf(&b, "  Adding %s\n", describeTerm(term))
		}
	}
	return b.String()
}

func describeTerm(v backend.TreeValue) string {
	switch {
	case v.IsFile() && v.Executable:
		return "executable file with id " + v.ID.String()
	case v.IsFile():
		return "file with id " + v.ID.String()
	case v.Kind == backend.KindSymlink:
		return "symlink with id " + v.ID.String()
	default:
		return "tree with id " + v.ID.String()
	}
}

// SummarizeConflict is a one-line description such as
// "2-sided conflict including 1 deletion".
func SummarizeConflict(v Value) string {
	summary := fmt.Sprintf("%d-sided conflict", v.NumSides())
	deletions := 0
	for _, term := range v.Adds() {
		if term.IsAbsent() {
			deletions++
		}
	}
	var extras []string
	switch deletions {
	case 0:
	case 1:
		extras = append(extras, "1 deletion")
	default:
		extras = append(extras, fmt.Sprintf("%d deletions", deletions))
	}
	if IsFileLike(v) && hasTreeTerm(v) {
		extras = append(extras, "a directory")
	}
	if len(extras) > 0 {
		summary += " including " + strings.Join(extras, " and ")
	}
	return summary
}

func hasTreeTerm(v Value) bool {
	for _, term := range v.Values() {
		if term.IsTree() {
			return true
		}
	}
	return false
}
