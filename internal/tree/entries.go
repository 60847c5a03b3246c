package tree

import (
	"context"
	"iter"

	"github.com/systemshift/splice/internal/merge"
	"github.com/systemshift/splice/internal/repopath"
)

// Entry is a non-directory value found while walking a tree.
type Entry struct {
	Path  repopath.Path
	Value Value
}

type walkDir struct {
	entries []Entry // reversed, so the next entry is last
}

func (d *walkDir) pop() (Entry, bool) {
	if len(d.entries) == 0 {
		return Entry{}, false
	}
	e := d.entries[len(d.entries)-1]
	d.entries = d.entries[:len(d.entries)-1]
	return e, true
}

func reversed(entries []Entry) []Entry {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries
}

func (m *MergedTree) entriesDir(trees merge.Merge[Tree], matcher repopath.Matcher) *walkDir {
	dir := trees.First().Dir
	var entries []Entry
	for _, e := range allTreeEntries(trees, m.store.MergeOptions().SameChange) {
		path := dir.Join(e.name)
		if IsTree(e.value) {
			if !matcher.Visit(path) {
				continue
			}
		} else if !matcher.Matches(path) {
			continue
		}
		entries = append(entries, Entry{Path: path, Value: e.value})
	}
	return &walkDir{entries: reversed(entries)}
}

// Entries walks every non-directory entry selected by matcher, in path
// order. Subtrees that differ between terms are merged on the fly and
// missing terms count as empty directories. A subtree that conflicts with
// a non-tree is reported as a single entry and not descended into.
func (m *MergedTree) Entries(ctx context.Context, matcher repopath.Matcher) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		stack := []*walkDir{m.entriesDir(m.trees, matcher)}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			e, ok := top.pop()
			if !ok {
				stack = stack[:len(stack)-1]
				continue
			}
			trees, isTree, err := toTreeMerge(ctx, m.store, e.Path, e.Value)
			if err != nil {
				if !yield(e, err) {
					return
				}
				continue
			}
			if isTree {
				stack = append(stack, m.entriesDir(trees, matcher))
				continue
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (m *MergedTree) conflictsDir(trees merge.Merge[Tree]) *walkDir {
	if trees.IsResolved() {
		return &walkDir{}
	}
	dir := trees.First().Dir
	var entries []Entry
	for _, e := range allTreeEntries(trees, m.store.MergeOptions().SameChange) {
		if !e.value.IsResolved() {
			entries = append(entries, Entry{Path: dir.Join(e.name), Value: e.value})
		}
	}
	return &walkDir{entries: reversed(entries)}
}

// Conflicts walks the conflicted paths in path order. It descends only into
// directories where every term is a tree, so a file/directory conflict is
// reported once rather than for every path inside the directory.
func (m *MergedTree) Conflicts(ctx context.Context) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		stack := []*walkDir{m.conflictsDir(m.trees)}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			e, ok := top.pop()
			if !ok {
				stack = stack[:len(stack)-1]
				continue
			}
			trees, isTree, err := toTreeMerge(ctx, m.store, e.Path, e.Value)
			switch {
			case err != nil:
				if !yield(e, err) {
					return
				}
			case isTree:
				stack = append(stack, m.conflictsDir(trees))
			default:
				if !yield(e, nil) {
					return
				}
			}
		}
	}
}
