package files

import (
	"fmt"
	"strings"

	"github.com/systemshift/splice/internal/merge"
)

const (
	markerLen   = 7
	conflictBeg = "<"
	conflictEnd = ">"
	sideMark    = "+"
	baseMark    = "-"
)

func marker(ch string, label string) string {
	return strings.Repeat(ch, markerLen) + " " + label + "\n"
}

// Materialize renders hunks as text, writing conflicted hunks between
// conflict markers. Each side is listed in full, followed by the base it
// was changed from.
func Materialize(hunks []Hunk) string {
	numConflicts := 0
	for _, h := range hunks {
		if !h.IsResolved() {
			numConflicts++
		}
	}
	var b strings.Builder
	n := 0
	for _, h := range hunks {
		if v, ok := h.AsResolved(); ok {
			b.WriteString(v)
			continue
		}
		n++
		writeConflict(&b, h, n, numConflicts)
	}
	return b.String()
}

func writeConflict(b *strings.Builder, h Hunk, n, total int) {
	b.WriteString(marker(conflictBeg, fmt.Sprintf("conflict %d of %d", n, total)))
	writeTerm(b, marker(sideMark, "side #1"), h.Add(0))
	for i, remove := range h.Removes() {
		writeTerm(b, marker(baseMark, fmt.Sprintf("base #%d", i+1)), remove)
		writeTerm(b, marker(sideMark, fmt.Sprintf("side #%d", i+2)), h.Add(i+1))
	}
	b.WriteString(marker(conflictEnd, fmt.Sprintf("conflict %d of %d ends", n, total)))
}

func writeTerm(b *strings.Builder, header, content string) {
	b.WriteString(header)
	b.WriteString(content)
	if content != "" && !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
}

// MaterializeMerge merges contents and renders the result, with markers
// around any hunks that did not resolve.
func MaterializeMerge(contents merge.Merge[string], sameChange merge.SameChange) string {
	return Materialize(MergeHunks(contents, sameChange))
}
