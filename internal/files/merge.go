// Package files merges file contents line by line.
package files

import (
	"strings"

	"github.com/ianbruene/go-difflib/difflib"

	"github.com/systemshift/splice/internal/merge"
)

// Hunk is a run of lines that is either resolved or still conflicted.
type Hunk = merge.Merge[string]

// SplitLines splits content after every newline. The final line keeps its
// missing terminator, so joining the result yields content again.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// MergeHunks merges the inputs line by line. The first remove is the base;
// every other input is diffed against it, and base lines that match in all
// inputs become sync points. Regions between sync points are resolved
// trivially when possible and left conflicted otherwise. Adjacent resolved
// regions are coalesced.
func MergeHunks(inputs merge.Merge[string], sameChange merge.SameChange) []Hunk {
	if v, ok := inputs.AsResolved(); ok {
		return []Hunk{merge.Resolved(v)}
	}
	removes, adds := inputs.Removes(), inputs.Adds()
	numRemoves := len(removes)
	texts := append(append([]string(nil), removes...), adds...)

	lines := make([][]string, len(texts))
	for i, text := range texts {
		lines[i] = SplitLines(text)
	}
	base := lines[0]

	// matches[k][i] is the line in input k matched to base line i, or -1.
	matches := make([][]int, len(lines))
	for k := range lines {
		m := make([]int, len(base))
		if k == 0 {
			for i := range m {
				m[i] = i
			}
			matches[k] = m
			continue
		}
		for i := range m {
			m[i] = -1
		}
		matcher := difflib.NewMatcherWithJunk(base, lines[k], false, nil)
		for _, op := range matcher.GetOpCodes() {
			if op.Tag != 'e' {
				continue
			}
			for off := 0; off < op.I2-op.I1; off++ {
				m[op.I1+off] = op.J1 + off
			}
		}
		matches[k] = m
	}

	var hunks []Hunk
	var resolved strings.Builder
	flush := func() {
		if resolved.Len() > 0 {
			hunks = append(hunks, merge.Resolved(resolved.String()))
			resolved.Reset()
		}
	}
	pos := make([]int, len(lines))
	emitRegion := func(ends []int) {
		parts := make([]string, len(lines))
		empty := true
		for k := range lines {
			parts[k] = strings.Join(lines[k][pos[k]:ends[k]], "")
			if ends[k] > pos[k] {
				empty = false
			}
		}
		if empty {
			return
		}
		hunk := merge.FromRemovesAdds(parts[:numRemoves], parts[numRemoves:])
		if v, ok := merge.ResolveTrivial(hunk, sameChange); ok {
			resolved.WriteString(v)
			return
		}
		flush()
		hunks = append(hunks, hunk)
	}

	ends := make([]int, len(lines))
	for i := range base {
		synced := true
		for k := range lines {
			if matches[k][i] < 0 {
				synced = false
				break
			}
			ends[k] = matches[k][i]
		}
		if !synced {
			continue
		}
		emitRegion(ends)
		resolved.WriteString(base[i])
		for k := range lines {
			pos[k] = ends[k] + 1
		}
	}
	for k := range lines {
		ends[k] = len(lines[k])
	}
	emitRegion(ends)
	flush()
	if len(hunks) == 0 {
		hunks = append(hunks, merge.Resolved(""))
	}
	return hunks
}

// TryMerge returns the merged content if every hunk resolves.
func TryMerge(inputs merge.Merge[string], sameChange merge.SameChange) (string, bool) {
	if v, ok := merge.ResolveTrivial(inputs, sameChange); ok {
		return v, true
	}
	var b strings.Builder
	for _, hunk := range MergeHunks(inputs, sameChange) {
		v, ok := hunk.AsResolved()
		if !ok {
			return "", false
		}
		b.WriteString(v)
	}
	return b.String(), true
}
